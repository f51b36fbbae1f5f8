package controllers

import (
	"net/http"

	"citypulse-be/apperrors"
	"citypulse-be/config"
	"citypulse-be/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// principal is the authenticated identity attached by the auth middleware.
type principal struct {
	ID   primitive.ObjectID
	Role models.UserRole
}

// getPrincipal pulls the authenticated principal out of the gin context.
func getPrincipal(c *gin.Context) (principal, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		return principal{}, false
	}
	userIDStr, ok := userIDVal.(string)
	if !ok {
		return principal{}, false
	}
	userID, err := primitive.ObjectIDFromHex(userIDStr)
	if err != nil {
		return principal{}, false
	}

	role := models.Citizen
	if roleVal, exists := c.Get("role"); exists {
		if roleStr, ok := roleVal.(string); ok && models.ValidUserRole(roleStr) {
			role = models.UserRole(roleStr)
		}
	}

	return principal{ID: userID, Role: role}, true
}

// respondError renders a failure through the shared envelope. Typed
// errors map to their HTTP status; anything else is a masked 500.
func respondError(c *gin.Context, err error) {
	if appErr, ok := apperrors.As(err); ok {
		body := gin.H{
			"success": false,
			"error":   string(appErr.Kind),
			"message": appErr.Message,
		}
		if len(appErr.Fields) > 0 {
			body["errors"] = appErr.Fields
		}
		for k, v := range appErr.Meta {
			body[k] = v
		}
		c.JSON(appErr.StatusCode(), body)
		return
	}

	config.Logger().Error("unhandled server error",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"message": "Server error",
	})
}
