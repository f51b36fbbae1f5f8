package middlewares

import (
	"net/http"

	"citypulse-be/models"

	"github.com/gin-gonic/gin"
)

// RequireRoles rejects requests whose principal role is not in the
// allowed set. Must run after AuthMiddleware.
func RequireRoles(allowed ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, exists := c.Get("role")
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Access denied"})
			c.Abort()
			return
		}

		roleStr, ok := roleVal.(string)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Access denied"})
			c.Abort()
			return
		}

		for _, r := range allowed {
			if models.UserRole(roleStr) == r {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Access denied for role " + roleStr})
		c.Abort()
	}
}
