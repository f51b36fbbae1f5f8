package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"citypulse-be/apperrors"
	"citypulse-be/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DepartmentView enriches a stored department with its derived fields.
type DepartmentView struct {
	models.Department
	Head             interface{} `json:"head"`
	ActiveStaffCount int         `json:"activeStaffCount"`
	ResolutionRate   float64     `json:"resolutionRate"`
}

func newDepartmentView(ctx context.Context, dept models.Department) DepartmentView {
	headRef := map[string]interface{}{"id": dept.Head}
	var head models.User
	if err := userCollection().FindOne(ctx, bson.M{"_id": dept.Head}).Decode(&head); err == nil {
		headRef["name"] = head.Name
		headRef["email"] = head.Email
	}

	return DepartmentView{
		Department:       dept,
		Head:             headRef,
		ActiveStaffCount: dept.ActiveStaffCount(),
		ResolutionRate:   dept.ResolutionRate(),
	}
}

// clearDepartmentRefFilter matches the user only while their department
// reference still points at the given department.
func clearDepartmentRefFilter(userID, departmentID primitive.ObjectID) bson.M {
	return bson.M{"_id": userID, "department": departmentID}
}

func fetchDepartment(ctx context.Context, departmentID primitive.ObjectID) (models.Department, error) {
	var dept models.Department
	err := departmentCollection().FindOne(ctx, bson.M{"_id": departmentID}).Decode(&dept)
	if err == mongo.ErrNoDocuments {
		return dept, apperrors.NotFound("Department")
	}
	return dept, err
}

// GetDepartments lists active departments with filtering and pagination
func GetDepartments(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	// Inactive departments stay out of default listings but are
	// retained for history.
	filter := bson.M{"isActive": true}

	if category := c.Query("category"); category != "" {
		filter["categories"] = category
	}
	if search := c.Query("search"); search != "" {
		filter["$or"] = []bson.M{
			{"name": literalRegex(search)},
			{"description": literalRegex(search)},
		}
	}

	total, err := departmentCollection().CountDocuments(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	skip := (page - 1) * limit
	findOptions := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := departmentCollection().Find(ctx, filter, findOptions)
	if err != nil {
		respondError(c, err)
		return
	}
	defer cursor.Close(ctx)

	var departments []models.Department
	if err := cursor.All(ctx, &departments); err != nil {
		respondError(c, err)
		return
	}

	views := make([]DepartmentView, 0, len(departments))
	for _, dept := range departments {
		views = append(views, newDepartmentView(ctx, dept))
	}

	pages := int((total + int64(limit) - 1) / int64(limit))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(views),
		"total":   total,
		"page":    page,
		"pages":   pages,
		"data":    views,
	})
}

// GetDepartment retrieves a single department by its ID
func GetDepartment(c *gin.Context) {
	departmentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid department ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dept, err := fetchDepartment(ctx, departmentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": newDepartmentView(ctx, dept)})
}

// CreateDepartment handles the creation of a new department
func CreateDepartment(c *gin.Context) {
	var input struct {
		Name             string                     `json:"name"`
		Description      string                     `json:"description"`
		Code             string                     `json:"code"`
		Head             string                     `json:"head"`
		ContactInfo      models.ContactInfo         `json:"contactInfo"`
		Responsibilities []string                   `json:"responsibilities"`
		Categories       []models.IssueCategory     `json:"categories"`
		WorkingHours     *models.WorkingHours       `json:"workingHours"`
		Settings         *models.DepartmentSettings `json:"settings"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	headID, _ := primitive.ObjectIDFromHex(input.Head)

	now := time.Now()
	dept := models.Department{
		ID:               primitive.NewObjectID(),
		Name:             strings.TrimSpace(input.Name),
		Description:      strings.TrimSpace(input.Description),
		Code:             strings.ToUpper(strings.TrimSpace(input.Code)),
		Head:             headID,
		ContactInfo:      input.ContactInfo,
		Responsibilities: input.Responsibilities,
		Categories:       input.Categories,
		Staff:            []models.StaffMember{},
		WorkingHours:     models.DefaultWorkingHours(),
		Performance:      models.Performance{LastUpdated: now},
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if input.WorkingHours != nil {
		dept.WorkingHours = *input.WorkingHours
	}
	if input.Settings != nil {
		dept.Settings = *input.Settings
	} else {
		dept.Settings.NotificationPreferences = models.NotificationPreferences{Email: true, Push: true}
	}

	if err := dept.Validate(); err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := departmentCollection().InsertOne(ctx, dept); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			respondError(c, apperrors.Conflict("Department name or code already exists"))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": newDepartmentView(ctx, dept)})
}

// UpdateDepartment applies partial updates to a department
func UpdateDepartment(c *gin.Context) {
	departmentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid department ID"})
		return
	}

	var input struct {
		Name             *string                    `json:"name,omitempty"`
		Description      *string                    `json:"description,omitempty"`
		Code             *string                    `json:"code,omitempty"`
		Head             *string                    `json:"head,omitempty"`
		ContactInfo      *models.ContactInfo        `json:"contactInfo,omitempty"`
		Responsibilities []string                   `json:"responsibilities,omitempty"`
		Categories       []models.IssueCategory     `json:"categories,omitempty"`
		WorkingHours     *models.WorkingHours       `json:"workingHours,omitempty"`
		Settings         *models.DepartmentSettings `json:"settings,omitempty"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dept, err := fetchDepartment(ctx, departmentID)
	if err != nil {
		respondError(c, err)
		return
	}

	update := bson.M{"updatedAt": time.Now()}

	if input.Name != nil {
		dept.Name = strings.TrimSpace(*input.Name)
		update["name"] = dept.Name
	}
	if input.Description != nil {
		dept.Description = strings.TrimSpace(*input.Description)
		update["description"] = dept.Description
	}
	if input.Code != nil {
		dept.Code = strings.ToUpper(strings.TrimSpace(*input.Code))
		update["code"] = dept.Code
	}
	if input.Head != nil {
		headID, err := primitive.ObjectIDFromHex(*input.Head)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid head user ID"})
			return
		}
		dept.Head = headID
		update["head"] = headID
	}
	if input.ContactInfo != nil {
		dept.ContactInfo = *input.ContactInfo
		update["contactInfo"] = dept.ContactInfo
	}
	if input.Responsibilities != nil {
		dept.Responsibilities = input.Responsibilities
		update["responsibilities"] = input.Responsibilities
	}
	if input.Categories != nil {
		dept.Categories = input.Categories
		update["categories"] = input.Categories
	}
	if input.WorkingHours != nil {
		dept.WorkingHours = *input.WorkingHours
		update["workingHours"] = dept.WorkingHours
	}
	if input.Settings != nil {
		dept.Settings = *input.Settings
		update["settings"] = dept.Settings
	}

	if err := dept.Validate(); err != nil {
		respondError(c, err)
		return
	}

	if _, err := departmentCollection().UpdateOne(ctx, bson.M{"_id": departmentID}, bson.M{"$set": update}); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			respondError(c, apperrors.Conflict("Department name or code already exists"))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": newDepartmentView(ctx, dept)})
}

// DeleteDepartment soft-deletes: the department is deactivated, its
// staff roster and historical assignments stay untouched.
func DeleteDepartment(c *gin.Context) {
	departmentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid department ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := departmentCollection().UpdateOne(ctx, bson.M{"_id": departmentID}, bson.M{
		"$set": bson.M{"isActive": false, "updatedAt": time.Now()},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if res.MatchedCount == 0 {
		respondError(c, apperrors.NotFound("Department"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Department deactivated successfully"})
}

// AddStaff adds (or reactivates) a roster member. The positional update
// and the guarded push are each atomic so concurrent adds for the same
// user cannot duplicate the entry.
func AddStaff(c *gin.Context) {
	departmentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid department ID"})
		return
	}

	var input struct {
		UserID string `json:"userId" binding:"required"`
		Role   string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	if !models.ValidStaffRole(input.Role) {
		respondError(c, apperrors.Validation([]apperrors.FieldError{{
			Field:   "role",
			Message: "Invalid staff role",
			Value:   input.Role,
		}}))
		return
	}

	userID, err := primitive.ObjectIDFromHex(input.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid user ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userCount, err := userCollection().CountDocuments(ctx, bson.M{"_id": userID})
	if err != nil {
		respondError(c, err)
		return
	}
	if userCount == 0 {
		respondError(c, apperrors.NotFound("User"))
		return
	}

	if _, err := fetchDepartment(ctx, departmentID); err != nil {
		respondError(c, err)
		return
	}

	now := time.Now()
	res, err := departmentCollection().UpdateOne(ctx,
		bson.M{"_id": departmentID, "staff.user": userID},
		bson.M{"$set": bson.M{
			"staff.$.role":     input.Role,
			"staff.$.isActive": true,
			"updatedAt":        now,
		}},
	)
	if err != nil {
		respondError(c, err)
		return
	}
	if res.MatchedCount == 0 {
		member := models.StaffMember{
			User:     userID,
			Role:     models.StaffRole(input.Role),
			JoinedAt: now,
			IsActive: true,
		}
		pushRes, err := departmentCollection().UpdateOne(ctx,
			bson.M{"_id": departmentID, "staff.user": bson.M{"$ne": userID}},
			bson.M{"$push": bson.M{"staff": member}, "$set": bson.M{"updatedAt": now}},
		)
		if err != nil {
			respondError(c, err)
			return
		}
		if pushRes.MatchedCount == 0 {
			respondError(c, apperrors.Conflict("Concurrent roster update detected, retry"))
			return
		}
	}

	// Keep the user's department reference in step; a failure here is a
	// retryable partial failure, the roster write stands.
	if _, err := userCollection().UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$set": bson.M{"department": departmentID, "updatedAt": now},
	}); err != nil {
		respondError(c, apperrors.Dependency(
			"Staff added but user department reference update failed; retry the reference update",
			map[string]string{
				"department_id": departmentID.Hex(),
				"user_id":       userID.Hex(),
			},
		))
		return
	}

	dept, err := fetchDepartment(ctx, departmentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": newDepartmentView(ctx, dept)})
}

// RemoveStaff drops a roster entry; removing an absent user is a no-op.
func RemoveStaff(c *gin.Context) {
	departmentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid department ID"})
		return
	}

	userID, err := primitive.ObjectIDFromHex(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid user ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := departmentCollection().UpdateOne(ctx, bson.M{"_id": departmentID}, bson.M{
		"$pull": bson.M{"staff": bson.M{"user": userID}},
		"$set":  bson.M{"updatedAt": time.Now()},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if res.MatchedCount == 0 {
		respondError(c, apperrors.NotFound("Department"))
		return
	}

	// Clear the user's department reference only when the roster actually
	// changed, and only while the reference still points at this
	// department; a stale removal must not clobber a membership the user
	// holds elsewhere.
	if res.ModifiedCount > 0 {
		if _, err := userCollection().UpdateOne(ctx, clearDepartmentRefFilter(userID, departmentID), bson.M{
			"$unset": bson.M{"department": ""},
		}); err != nil {
			respondError(c, apperrors.Dependency(
				"Staff removed but user department reference update failed; retry the reference update",
				map[string]string{
					"department_id": departmentID.Hex(),
					"user_id":       userID.Hex(),
				},
			))
			return
		}
	}

	dept, err := fetchDepartment(ctx, departmentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": newDepartmentView(ctx, dept)})
}

// UpdateDepartmentPerformance folds resolved-issue counts into the
// running counters. The write is a compare-and-swap on the resolved
// total, retried a few times before giving up with a conflict.
func UpdateDepartmentPerformance(c *gin.Context) {
	departmentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid department ID"})
		return
	}

	var input struct {
		IssuesResolved int64   `json:"issuesResolved"`
		ResolutionTime float64 `json:"resolutionTime"` // hours
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	if input.IssuesResolved < 0 || input.ResolutionTime < 0 {
		respondError(c, apperrors.Validation([]apperrors.FieldError{{
			Field:   "issuesResolved",
			Message: "Resolved count and resolution time must be non-negative",
		}}))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const maxAttempts = 3
	var dept models.Department
	for attempt := 0; attempt < maxAttempts; attempt++ {
		dept, err = fetchDepartment(ctx, departmentID)
		if err != nil {
			respondError(c, err)
			return
		}

		oldTotal := dept.Performance.TotalIssuesResolved
		dept.ApplyPerformanceUpdate(input.IssuesResolved, input.ResolutionTime)

		res, err := departmentCollection().UpdateOne(ctx,
			bson.M{"_id": departmentID, "performance.totalIssuesResolved": oldTotal},
			bson.M{"$set": bson.M{"performance": dept.Performance, "updatedAt": time.Now()}},
		)
		if err != nil {
			respondError(c, err)
			return
		}
		if res.MatchedCount > 0 {
			c.JSON(http.StatusOK, gin.H{"success": true, "data": newDepartmentView(ctx, dept)})
			return
		}
		// Lost the race against a concurrent performance update; reload
		// and recompute.
	}

	respondError(c, apperrors.Conflict("Concurrent performance update, retry"))
}

// GetDepartmentStatistics aggregates counters across all departments
func GetDepartmentStatistics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	totalDepartments, err := departmentCollection().CountDocuments(ctx, bson.M{})
	if err != nil {
		respondError(c, err)
		return
	}

	activeDepartments, err := departmentCollection().CountDocuments(ctx, bson.M{"isActive": true})
	if err != nil {
		respondError(c, err)
		return
	}

	staffPipeline := []bson.M{
		{"$unwind": "$staff"},
		{"$match": bson.M{"staff.isActive": true}},
		{"$count": "totalStaff"},
	}
	staffCursor, err := departmentCollection().Aggregate(ctx, staffPipeline)
	if err != nil {
		respondError(c, err)
		return
	}
	defer staffCursor.Close(ctx)

	var staffResult []bson.M
	if err := staffCursor.All(ctx, &staffResult); err != nil {
		respondError(c, err)
		return
	}
	totalStaff := int32(0)
	if len(staffResult) > 0 {
		if v, ok := staffResult[0]["totalStaff"].(int32); ok {
			totalStaff = v
		}
	}

	avgPipeline := []bson.M{
		{"$group": bson.M{
			"_id":                   nil,
			"averageResolutionTime": bson.M{"$avg": "$performance.averageResolutionTime"},
		}},
	}
	avgCursor, err := departmentCollection().Aggregate(ctx, avgPipeline)
	if err != nil {
		respondError(c, err)
		return
	}
	defer avgCursor.Close(ctx)

	var avgResult []bson.M
	if err := avgCursor.All(ctx, &avgResult); err != nil {
		respondError(c, err)
		return
	}
	averageResolutionTime := float64(0)
	if len(avgResult) > 0 {
		if v, ok := avgResult[0]["averageResolutionTime"].(float64); ok {
			averageResolutionTime = v
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"totalDepartments":      totalDepartments,
			"activeDepartments":     activeDepartments,
			"totalStaff":            totalStaff,
			"averageResolutionTime": averageResolutionTime,
		},
	})
}
