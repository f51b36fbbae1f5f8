package models

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"citypulse-be/apperrors"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// StaffRole enum
type StaffRole string

const (
	Officer    StaffRole = "officer"
	Supervisor StaffRole = "supervisor"
	Manager    StaffRole = "manager"
	Specialist StaffRole = "specialist"
)

func ValidStaffRole(r string) bool {
	switch StaffRole(r) {
	case Officer, Supervisor, Manager, Specialist:
		return true
	}
	return false
}

// StaffMember is a roster entry; it references a user by id only.
type StaffMember struct {
	User     primitive.ObjectID `bson:"user" json:"user"`
	Role     StaffRole          `bson:"role" json:"role"`
	JoinedAt time.Time          `bson:"joinedAt" json:"joinedAt"`
	IsActive bool               `bson:"isActive" json:"isActive"`
}

// DaySchedule is the working window for one weekday.
type DaySchedule struct {
	Start     string `bson:"start,omitempty" json:"start,omitempty"`
	End       string `bson:"end,omitempty" json:"end,omitempty"`
	IsWorking bool   `bson:"isWorking" json:"isWorking"`
}

// WorkingHours is the weekly schedule.
type WorkingHours struct {
	Monday    DaySchedule `bson:"monday" json:"monday"`
	Tuesday   DaySchedule `bson:"tuesday" json:"tuesday"`
	Wednesday DaySchedule `bson:"wednesday" json:"wednesday"`
	Thursday  DaySchedule `bson:"thursday" json:"thursday"`
	Friday    DaySchedule `bson:"friday" json:"friday"`
	Saturday  DaySchedule `bson:"saturday" json:"saturday"`
	Sunday    DaySchedule `bson:"sunday" json:"sunday"`
}

// DefaultWorkingHours marks weekdays working and the weekend off.
func DefaultWorkingHours() WorkingHours {
	working := DaySchedule{IsWorking: true}
	off := DaySchedule{IsWorking: false}
	return WorkingHours{
		Monday:    working,
		Tuesday:   working,
		Wednesday: working,
		Thursday:  working,
		Friday:    working,
		Saturday:  off,
		Sunday:    off,
	}
}

// ContactAddress is the department's physical address.
type ContactAddress struct {
	Street  string `bson:"street,omitempty" json:"street,omitempty"`
	City    string `bson:"city,omitempty" json:"city,omitempty"`
	State   string `bson:"state,omitempty" json:"state,omitempty"`
	ZipCode string `bson:"zipCode,omitempty" json:"zipCode,omitempty"`
}

// ContactInfo holds how to reach the department.
type ContactInfo struct {
	Email   string         `bson:"email" json:"email" validate:"required,email"`
	Phone   string         `bson:"phone" json:"phone" validate:"required"`
	Address ContactAddress `bson:"address,omitempty" json:"address,omitempty"`
}

// Performance holds the running department counters. The average
// resolution time is a weighted running average in hours.
type Performance struct {
	TotalIssuesAssigned   int64     `bson:"totalIssuesAssigned" json:"totalIssuesAssigned"`
	TotalIssuesResolved   int64     `bson:"totalIssuesResolved" json:"totalIssuesResolved"`
	AverageResolutionTime float64   `bson:"averageResolutionTime" json:"averageResolutionTime"`
	SatisfactionRating    float64   `bson:"satisfactionRating" json:"satisfactionRating"`
	LastUpdated           time.Time `bson:"lastUpdated" json:"lastUpdated"`
}

// EscalationRule escalates issues of a priority after a number of hours.
type EscalationRule struct {
	Priority       IssuePriority      `bson:"priority" json:"priority"`
	EscalationTime int                `bson:"escalationTime" json:"escalationTime"` // hours
	EscalateTo     primitive.ObjectID `bson:"escalateTo" json:"escalateTo"`
}

// NotificationPreferences for the notification collaborator.
type NotificationPreferences struct {
	Email bool `bson:"email" json:"email"`
	SMS   bool `bson:"sms" json:"sms"`
	Push  bool `bson:"push" json:"push"`
}

// DepartmentSettings groups optional behavior knobs.
type DepartmentSettings struct {
	AutoAssignIssues        bool                    `bson:"autoAssignIssues" json:"autoAssignIssues"`
	NotificationPreferences NotificationPreferences `bson:"notificationPreferences" json:"notificationPreferences"`
	EscalationRules         []EscalationRule        `bson:"escalationRules,omitempty" json:"escalationRules,omitempty"`
}

// Department is an organizational unit with a staff roster and running
// performance counters.
type Department struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name             string             `bson:"name" json:"name" validate:"required,max=100"`
	Description      string             `bson:"description" json:"description" validate:"required,max=500"`
	Code             string             `bson:"code" json:"code"`
	Head             primitive.ObjectID `bson:"head" json:"head"`
	ContactInfo      ContactInfo        `bson:"contactInfo" json:"contactInfo"`
	Responsibilities []string           `bson:"responsibilities,omitempty" json:"responsibilities,omitempty"`
	Categories       []IssueCategory    `bson:"categories,omitempty" json:"categories,omitempty"`
	Staff            []StaffMember      `bson:"staff" json:"staff"`
	WorkingHours     WorkingHours       `bson:"workingHours" json:"workingHours"`
	Performance      Performance        `bson:"performance" json:"performance"`
	IsActive         bool               `bson:"isActive" json:"isActive"`
	Settings         DepartmentSettings `bson:"settings" json:"settings"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

var deptCodeRe = regexp.MustCompile(`^[A-Z]{2,10}$`)

func departmentFieldMessage(fe validator.FieldError) string {
	switch fe.StructField() {
	case "Name":
		if fe.Tag() == "required" {
			return "Department name is required"
		}
		return "Department name cannot exceed 100 characters"
	case "Description":
		if fe.Tag() == "required" {
			return "Department description is required"
		}
		return "Description cannot exceed 500 characters"
	case "Email":
		if fe.Tag() == "required" {
			return "Department email is required"
		}
		return "Please provide a valid email address"
	case "Phone":
		return "Department phone is required"
	}
	return fmt.Sprintf("Invalid value for %s", fe.StructField())
}

func departmentFieldName(fe validator.FieldError) string {
	switch fe.StructField() {
	case "Name":
		return "name"
	case "Description":
		return "description"
	case "Email":
		return "contactInfo.email"
	case "Phone":
		return "contactInfo.phone"
	}
	return fe.StructField()
}

// Validate checks every field constraint and reports all violations
// together.
func (d *Department) Validate() error {
	var fields []apperrors.FieldError

	if err := validate.Struct(d); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, apperrors.FieldError{
					Field:   departmentFieldName(fe),
					Message: departmentFieldMessage(fe),
					Value:   fe.Value(),
				})
			}
		} else {
			return err
		}
	}

	if !deptCodeRe.MatchString(d.Code) {
		fields = append(fields, apperrors.FieldError{
			Field:   "code",
			Message: "Department code must be 2-10 uppercase letters",
			Value:   d.Code,
		})
	}
	if d.Head.IsZero() {
		fields = append(fields, apperrors.FieldError{
			Field:   "head",
			Message: "Department head is required",
		})
	}
	for _, c := range d.Categories {
		if !ValidCategory(string(c)) {
			fields = append(fields, apperrors.FieldError{
				Field:   "categories",
				Message: "Invalid category",
				Value:   string(c),
			})
		}
	}

	if len(fields) > 0 {
		return apperrors.Validation(fields)
	}
	return nil
}

// AddStaffMember is idempotent: re-adding an existing user updates the
// role and reactivates the entry instead of duplicating it.
func (d *Department) AddStaffMember(user primitive.ObjectID, role StaffRole) {
	for idx := range d.Staff {
		if d.Staff[idx].User == user {
			d.Staff[idx].Role = role
			d.Staff[idx].IsActive = true
			return
		}
	}
	d.Staff = append(d.Staff, StaffMember{
		User:     user,
		Role:     role,
		JoinedAt: time.Now(),
		IsActive: true,
	})
}

// RemoveStaffMember drops the matching roster entry; no-op if absent.
func (d *Department) RemoveStaffMember(user primitive.ObjectID) {
	kept := d.Staff[:0]
	for _, m := range d.Staff {
		if m.User != user {
			kept = append(kept, m)
		}
	}
	d.Staff = kept
}

// ActiveStaffCount is derived, never stored.
func (d *Department) ActiveStaffCount() int {
	count := 0
	for _, m := range d.Staff {
		if m.IsActive {
			count++
		}
	}
	return count
}

// ResolutionRate is derived as resolved/assigned as a percentage; 0 when
// nothing has been assigned.
func (d *Department) ResolutionRate() float64 {
	if d.Performance.TotalIssuesAssigned == 0 {
		return 0
	}
	return float64(d.Performance.TotalIssuesResolved) / float64(d.Performance.TotalIssuesAssigned) * 100
}

// ApplyPerformanceUpdate folds a batch of resolved issues into the
// counters: total goes up by delta, and the average resolution time is a
// weighted blend of the old average and the new sample. Guards the
// zero-denominator case by leaving the average at 0.
func (d *Department) ApplyPerformanceUpdate(issuesResolvedDelta int64, resolutionTimeHours float64) {
	p := &d.Performance
	oldTotal := p.TotalIssuesResolved
	newTotal := oldTotal + issuesResolvedDelta
	p.TotalIssuesResolved = newTotal
	if newTotal > 0 {
		p.AverageResolutionTime = (p.AverageResolutionTime*float64(oldTotal) +
			resolutionTimeHours*float64(issuesResolvedDelta)) / float64(newTotal)
	} else {
		p.AverageResolutionTime = 0
	}
	p.LastUpdated = time.Now()
}

// EnsureDepartmentIndexes creates unique name/code indexes plus the
// common query indexes
func EnsureDepartmentIndexes(collection *mongo.Collection) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "head", Value: 1}}},
		{Keys: bson.D{{Key: "staff.user", Value: 1}}},
		{Keys: bson.D{{Key: "categories", Value: 1}}},
		{Keys: bson.D{{Key: "isActive", Value: 1}}},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
