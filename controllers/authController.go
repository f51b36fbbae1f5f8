package controllers

import (
	"context"
	"net/http"
	"time"

	"citypulse-be/apperrors"
	"citypulse-be/config"
	"citypulse-be/models"
	authUtils "citypulse-be/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// RegisterUser handles user registration
func RegisterUser(c *gin.Context) {
	var input struct {
		Name       string `json:"name" binding:"required,max=50"`
		Email      string `json:"email" binding:"required,email"`
		Password   string `json:"password" binding:"required,min=6"`
		Role       string `json:"role"`
		Department string `json:"department"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	role := models.Citizen
	if input.Role != "" {
		if !models.ValidUserRole(input.Role) {
			respondError(c, apperrors.Validation([]apperrors.FieldError{{
				Field:   "role",
				Message: "Invalid role specified",
				Value:   input.Role,
			}}))
			return
		}
		role = models.UserRole(input.Role)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := userCollection().CountDocuments(ctx, bson.M{"email": input.Email})
	if err != nil {
		respondError(c, err)
		return
	}
	if count > 0 {
		respondError(c, apperrors.Conflict("User with this email already exists"))
		return
	}

	now := time.Now()
	user := models.User{
		Name:      input.Name,
		Email:     input.Email,
		Password:  input.Password,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := user.HashPassword(); err != nil {
		respondError(c, err)
		return
	}

	res, err := userCollection().InsertOne(ctx, user)
	if err != nil {
		respondError(c, err)
		return
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = oid
	}

	token, err := authUtils.GenerateToken(&user)
	if err != nil {
		config.Logger().Error("failed to mint token", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"token":   token,
		"data": gin.H{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
			"role":  user.Role,
		},
	})
}

// LoginUser handles user login
func LoginUser(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var user models.User
	if err := userCollection().FindOne(ctx, bson.M{"email": input.Email}).Decode(&user); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid credentials"})
		return
	}

	if !user.ComparePassword(input.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid credentials"})
		return
	}

	token, err := authUtils.GenerateToken(&user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
		"data": gin.H{
			"id":         user.ID,
			"name":       user.Name,
			"email":      user.Email,
			"role":       user.Role,
			"department": user.Department,
		},
	})
}

// GetMe returns the authenticated user's profile
func GetMe(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var user models.User
	if err := userCollection().FindOne(ctx, bson.M{"_id": viewer.ID}).Decode(&user); err != nil {
		respondError(c, apperrors.NotFound("User"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
}
