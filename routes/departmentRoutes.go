package routes

import (
	"citypulse-be/controllers"
	"citypulse-be/middlewares"
	"citypulse-be/models"

	"github.com/gin-gonic/gin"
)

// DepartmentRoutes sets up the department routes
func DepartmentRoutes(r *gin.Engine) {
	dept := r.Group("/api/departments")
	dept.Use(middlewares.AuthMiddleware())
	{
		dept.GET("", controllers.GetDepartments)
		dept.GET("/statistics", controllers.GetDepartmentStatistics)
		dept.GET("/:id", controllers.GetDepartment)

		admin := dept.Group("")
		admin.Use(middlewares.RequireRoles(models.Admin))
		{
			admin.POST("", controllers.CreateDepartment)
			admin.PUT("/:id", controllers.UpdateDepartment)
			admin.DELETE("/:id", controllers.DeleteDepartment)
			admin.POST("/:id/staff", controllers.AddStaff)
			admin.DELETE("/:id/staff/:userId", controllers.RemoveStaff)
			admin.PUT("/:id/performance", controllers.UpdateDepartmentPerformance)
		}
	}
}
