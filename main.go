package main

import (
	"log"
	"net/http"

	"citypulse-be/config"
	"citypulse-be/models"
	"citypulse-be/routes"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	logger := config.Logger()
	defer logger.Sync()

	db := config.ConnectDB()
	if db == nil {
		log.Fatal("Failed to connect to MongoDB")
	}
	logger.Info("MongoDB connection established")

	if err := models.EnsureIssueIndexes(config.GetCollection("issues")); err != nil {
		logger.Warn("failed to ensure issue indexes", zap.Error(err))
	}
	if err := models.EnsureDepartmentIndexes(config.GetCollection("departments")); err != nil {
		logger.Warn("failed to ensure department indexes", zap.Error(err))
	}

	config.ConnectRedis()

	r := gin.Default()

	routes.AuthRoutes(r)
	routes.IssueRoutes(r)
	routes.DepartmentRoutes(r)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	if err := r.Run(":8080"); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
