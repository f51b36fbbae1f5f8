package routes

import (
	"os"
	"strconv"

	"citypulse-be/controllers"
	"citypulse-be/middlewares"
	"citypulse-be/models"

	"github.com/gin-gonic/gin"
)

func issueCreateLimit() int {
	limit := 10
	if v := os.Getenv("ISSUE_CREATE_DAILY_LIMIT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}

// IssueRoutes sets up the issue routes
func IssueRoutes(r *gin.Engine) {
	issue := r.Group("/api/issues")
	issue.Use(middlewares.AuthMiddleware())
	{
		issue.GET("", controllers.GetAllIssues)
		issue.POST("", middlewares.IssueRateLimiter(issueCreateLimit()), controllers.CreateIssue)
		issue.GET("/my", controllers.GetMyIssues)
		issue.GET("/statistics", controllers.GetIssueStatistics)
		issue.GET("/location", controllers.GetIssuesByLocation)
		issue.GET("/category/:category", controllers.GetIssuesByCategory)
		issue.GET("/status/:status", controllers.GetIssuesByStatus)
		issue.GET("/:id", controllers.GetIssue)
		issue.PUT("/:id", controllers.UpdateIssue)
		issue.DELETE("/:id", controllers.DeleteIssue)
		issue.PUT("/:id/assign",
			middlewares.RequireRoles(models.Admin, models.DepartmentHead),
			controllers.AssignIssue)
		issue.PUT("/:id/resolve",
			middlewares.RequireRoles(models.Admin, models.DepartmentHead, models.MunicipalOfficer),
			controllers.ResolveIssue)
		issue.POST("/:id/comment", controllers.AddComment)
		issue.POST("/:id/upvote", controllers.HandleUpvoteIssue)
		issue.POST("/:id/rating", controllers.RateIssue)
	}
}
