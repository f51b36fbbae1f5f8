package authUtils

import (
	"fmt"
	"os"
	"time"

	"citypulse-be/models"

	"github.com/dgrijalva/jwt-go"
)

// GenerateToken mints a JWT carrying the principal the engine trusts:
// user id, role, and optional department affiliation.
func GenerateToken(user *models.User) (string, error) {
	secretStr := os.Getenv("JWT_SECRET")
	if secretStr == "" {
		return "", fmt.Errorf("JWT_SECRET environment variable is not set")
	}

	jwtSecret := []byte(secretStr)

	claims := jwt.MapClaims{
		"user_id": user.ID.Hex(),
		"role":    string(user.Role),
		"exp":     time.Now().Add(time.Hour * 72).Unix(), // Token expires in 72 hours
	}
	if user.Department != nil {
		claims["department_id"] = user.Department.Hex()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}
