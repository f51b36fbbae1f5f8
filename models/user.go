package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// UserRole enum
type UserRole string

const (
	Citizen          UserRole = "citizen"
	Admin            UserRole = "admin"
	DepartmentHead   UserRole = "department_head"
	MunicipalOfficer UserRole = "municipal_officer"
)

func ValidUserRole(r string) bool {
	switch UserRole(r) {
	case Citizen, Admin, DepartmentHead, MunicipalOfficer:
		return true
	}
	return false
}

// IsElevated reports whether the role carries municipal-staff privileges.
func (r UserRole) IsElevated() bool {
	return r == Admin || r == DepartmentHead || r == MunicipalOfficer
}

type User struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name       string              `bson:"name" json:"name"`
	Email      string              `bson:"email" json:"email"`
	Password   string              `bson:"password,omitempty" json:"-"`
	Role       UserRole            `bson:"role" json:"role"`
	Department *primitive.ObjectID `bson:"department,omitempty" json:"department,omitempty"`
	CreatedAt  time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time           `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) HashPassword() error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashed)
	return nil
}

func (u *User) ComparePassword(candidate string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(candidate))
	return err == nil
}
