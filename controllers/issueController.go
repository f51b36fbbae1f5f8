package controllers

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"citypulse-be/apperrors"
	"citypulse-be/config"
	"citypulse-be/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func issueCollection() *mongo.Collection      { return config.GetCollection("issues") }
func departmentCollection() *mongo.Collection { return config.GetCollection("departments") }
func userCollection() *mongo.Collection       { return config.GetCollection("users") }

// literalRegex builds a case-insensitive substring match with the term
// quoted, so user input is matched literally rather than as a pattern.
func literalRegex(term string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}
}

// buildIssueFilter assembles the listing filter. Citizens are restricted
// to public issues regardless of any other filter they pass.
func buildIssueFilter(status, category, priority, search string, role models.UserRole) bson.M {
	filter := bson.M{}

	if status != "" && status != "all" {
		filter["status"] = status
	}
	if category != "" && category != "all" {
		filter["category"] = category
	}
	if priority != "" && priority != "all" {
		filter["priority"] = priority
	}
	if role == models.Citizen {
		filter["isPublic"] = true
	}
	if search != "" {
		filter["$or"] = []bson.M{
			{"title": literalRegex(search)},
			{"description": literalRegex(search)},
		}
	}

	return filter
}

// IssueView enriches a stored issue with its derived fields and the
// viewer-specific vote flag.
type IssueView struct {
	models.Issue
	ReportedBy         interface{} `json:"reportedBy"`
	AssignedDepartment interface{} `json:"assignedDepartment,omitempty"`
	UpvoteCount        int         `json:"upvoteCount"`
	CommentCount       int         `json:"commentCount"`
	DaysSinceReported  int         `json:"daysSinceReported"`
	UserHasVoted       bool        `json:"userHasVoted"`
}

// canSeeReporter hides the reporter of anonymous issues from citizens
// other than the reporter themselves.
func canSeeReporter(issue *models.Issue, viewer principal) bool {
	if !issue.IsAnonymous {
		return true
	}
	return viewer.Role != models.Citizen || issue.ReportedBy == viewer.ID
}

func reporterRef(ctx context.Context, issue *models.Issue, viewer principal) interface{} {
	if !canSeeReporter(issue, viewer) {
		return nil
	}

	ref := map[string]interface{}{"id": issue.ReportedBy}
	var reporter models.User
	if err := userCollection().FindOne(ctx, bson.M{"_id": issue.ReportedBy}).Decode(&reporter); err == nil {
		ref["name"] = reporter.Name
		ref["email"] = reporter.Email
	}
	return ref
}

func newIssueView(ctx context.Context, issue models.Issue, viewer principal) IssueView {
	// Internal comments are staff-only; strip them at the read boundary.
	if viewer.Role == models.Citizen {
		visible := make([]models.Comment, 0, len(issue.Comments))
		for _, comment := range issue.Comments {
			if !comment.IsInternal {
				visible = append(visible, comment)
			}
		}
		issue.Comments = visible
	}

	return IssueView{
		Issue:             issue,
		ReportedBy:        reporterRef(ctx, &issue, viewer),
		UpvoteCount:       issue.UpvoteCount(),
		CommentCount:      issue.CommentCount(),
		DaysSinceReported: issue.DaysSinceReported(),
		UserHasVoted:      issue.HasUpvoted(viewer.ID),
	}
}

func fetchIssue(ctx context.Context, issueID primitive.ObjectID) (models.Issue, error) {
	var issue models.Issue
	err := issueCollection().FindOne(ctx, bson.M{"_id": issueID}).Decode(&issue)
	if err == mongo.ErrNoDocuments {
		return issue, apperrors.NotFound("Issue")
	}
	return issue, err
}

// CreateIssue handles the creation of a new issue
func CreateIssue(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	var input struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Category    string  `json:"category"`
		Priority    string  `json:"priority"`
		Location    struct {
			Address     string `json:"address"`
			City        string `json:"city"`
			State       string `json:"state"`
			ZipCode     string `json:"zipCode"`
			Coordinates struct {
				Lat *float64 `json:"lat"`
				Lng *float64 `json:"lng"`
			} `json:"coordinates"`
		} `json:"location"`
		Images      []models.IssueImage `json:"images"`
		Tags        []string            `json:"tags"`
		IsPublic    *bool               `json:"isPublic"`
		IsAnonymous *bool               `json:"isAnonymous"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	priority := models.Medium
	if input.Priority != "" {
		priority = models.IssuePriority(input.Priority)
	}
	isPublic := true
	if input.IsPublic != nil {
		isPublic = *input.IsPublic
	}
	isAnonymous := false
	if input.IsAnonymous != nil {
		isAnonymous = *input.IsAnonymous
	}

	tags := make([]string, 0, len(input.Tags))
	for _, t := range input.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			tags = append(tags, t)
		}
	}

	now := time.Now()
	issue := models.Issue{
		ID:          primitive.NewObjectID(),
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Category:    models.IssueCategory(input.Category),
		Priority:    priority,
		Status:      models.Reported,
		Location: models.Location{
			Address: strings.TrimSpace(input.Location.Address),
			City:    strings.TrimSpace(input.Location.City),
			State:   strings.TrimSpace(input.Location.State),
			ZipCode: strings.TrimSpace(input.Location.ZipCode),
		},
		Images:        input.Images,
		ReportedBy:    viewer.ID,
		Tags:          tags,
		Upvotes:       []models.Upvote{},
		Comments:      []models.Comment{},
		StatusHistory: []models.StatusChange{},
		IsPublic:      isPublic,
		IsAnonymous:   isAnonymous,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Missing coordinates are a validation failure, reported alongside
	// any other violated constraint.
	var missing []apperrors.FieldError
	if input.Location.Coordinates.Lat == nil {
		missing = append(missing, apperrors.FieldError{
			Field:   "location.coordinates.lat",
			Message: "Latitude is required",
		})
	} else {
		issue.Location.Coordinates.Lat = *input.Location.Coordinates.Lat
	}
	if input.Location.Coordinates.Lng == nil {
		missing = append(missing, apperrors.FieldError{
			Field:   "location.coordinates.lng",
			Message: "Longitude is required",
		})
	} else {
		issue.Location.Coordinates.Lng = *input.Location.Coordinates.Lng
	}

	if err := issue.Validate(); err != nil {
		if appErr, ok := apperrors.As(err); ok {
			appErr.Fields = append(missing, appErr.Fields...)
			respondError(c, appErr)
		} else {
			respondError(c, err)
		}
		return
	}
	if len(missing) > 0 {
		respondError(c, apperrors.Validation(missing))
		return
	}

	issue.Location.SyncGeo()
	issue.SeedHistory()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := issueCollection().InsertOne(ctx, issue); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    newIssueView(ctx, issue, viewer),
	})
}

// GetAllIssues handles retrieving issues with filtering and pagination
func GetAllIssues(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

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

	filter := buildIssueFilter(
		c.Query("status"),
		c.Query("category"),
		c.Query("priority"),
		c.Query("search"),
		viewer.Role,
	)

	total, err := issueCollection().CountDocuments(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	skip := (page - 1) * limit
	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := issueCollection().Find(ctx, filter, findOptions)
	if err != nil {
		respondError(c, err)
		return
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		respondError(c, err)
		return
	}

	views := make([]IssueView, 0, len(issues))
	for _, issue := range issues {
		views = append(views, newIssueView(ctx, issue, viewer))
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

// GetIssue retrieves a single issue by its ID
func GetIssue(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid issue ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue, err := fetchIssue(ctx, issueID)
	if err != nil {
		respondError(c, err)
		return
	}

	if issue.IsAnonymous && viewer.Role == models.Citizen && issue.ReportedBy != viewer.ID {
		respondError(c, apperrors.Forbidden("Access denied to anonymous issue"))
		return
	}

	view := newIssueView(ctx, issue, viewer)
	if issue.AssignedTo != nil {
		var dept models.Department
		if err := departmentCollection().FindOne(ctx, bson.M{"_id": issue.AssignedTo.Department}).Decode(&dept); err == nil {
			view.AssignedDepartment = map[string]interface{}{
				"id":   dept.ID,
				"name": dept.Name,
				"code": dept.Code,
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": view})
}

// GetMyIssues retrieves all issues reported by the authenticated user
func GetMyIssues(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := issueCollection().Find(ctx, bson.M{"reportedBy": viewer.ID}, findOptions)
	if err != nil {
		respondError(c, err)
		return
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		respondError(c, err)
		return
	}

	views := make([]IssueView, 0, len(issues))
	for _, issue := range issues {
		views = append(views, newIssueView(ctx, issue, viewer))
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(views), "data": views})
}

// UpdateIssue allows the reporter (or municipal staff) to update details.
// A status change in the payload goes through the append-only history.
func UpdateIssue(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid issue ID"})
		return
	}

	var input struct {
		Title       *string  `json:"title,omitempty"`
		Description *string  `json:"description,omitempty"`
		Category    *string  `json:"category,omitempty"`
		Priority    *string  `json:"priority,omitempty"`
		Tags        []string `json:"tags,omitempty"`
		IsPublic    *bool    `json:"isPublic,omitempty"`
		Status      *string  `json:"status,omitempty"`
		StatusNotes string   `json:"statusNotes,omitempty"`
		Location    *struct {
			Address     *string `json:"address,omitempty"`
			City        *string `json:"city,omitempty"`
			State       *string `json:"state,omitempty"`
			ZipCode     *string `json:"zipCode,omitempty"`
			Coordinates *struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"coordinates,omitempty"`
		} `json:"location,omitempty"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue, err := fetchIssue(ctx, issueID)
	if err != nil {
		respondError(c, err)
		return
	}

	if viewer.Role == models.Citizen && issue.ReportedBy != viewer.ID {
		respondError(c, apperrors.Forbidden("You can only update your own issues"))
		return
	}

	update := bson.M{"updatedAt": time.Now()}

	if input.Title != nil {
		issue.Title = strings.TrimSpace(*input.Title)
		update["title"] = issue.Title
	}
	if input.Description != nil {
		issue.Description = strings.TrimSpace(*input.Description)
		update["description"] = issue.Description
	}
	if input.Category != nil {
		issue.Category = models.IssueCategory(*input.Category)
		update["category"] = issue.Category
	}
	if input.Priority != nil {
		issue.Priority = models.IssuePriority(*input.Priority)
		update["priority"] = issue.Priority
	}
	if input.Tags != nil {
		tags := make([]string, 0, len(input.Tags))
		for _, t := range input.Tags {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" {
				tags = append(tags, t)
			}
		}
		issue.Tags = tags
		update["tags"] = tags
	}
	if input.IsPublic != nil {
		issue.IsPublic = *input.IsPublic
		update["isPublic"] = issue.IsPublic
	}
	if input.Location != nil {
		if input.Location.Address != nil {
			issue.Location.Address = strings.TrimSpace(*input.Location.Address)
		}
		if input.Location.City != nil {
			issue.Location.City = strings.TrimSpace(*input.Location.City)
		}
		if input.Location.State != nil {
			issue.Location.State = strings.TrimSpace(*input.Location.State)
		}
		if input.Location.ZipCode != nil {
			issue.Location.ZipCode = strings.TrimSpace(*input.Location.ZipCode)
		}
		if input.Location.Coordinates != nil {
			issue.Location.Coordinates.Lat = input.Location.Coordinates.Lat
			issue.Location.Coordinates.Lng = input.Location.Coordinates.Lng
		}
		issue.Location.SyncGeo()
		update["location"] = issue.Location
	}

	if input.Status != nil && !models.ValidStatus(*input.Status) {
		respondError(c, apperrors.Validation([]apperrors.FieldError{{
			Field:   "status",
			Message: "Invalid status",
			Value:   *input.Status,
		}}))
		return
	}

	if err := issue.Validate(); err != nil {
		respondError(c, err)
		return
	}

	mutation := bson.M{"$set": update}
	if input.Status != nil && models.IssueStatus(*input.Status) != issue.Status {
		change := issue.AddStatusChange(models.IssueStatus(*input.Status), viewer.ID, input.StatusNotes)
		update["status"] = change.Status
		if change.Status == models.Resolved {
			update["actualResolutionDate"] = issue.ActualResolutionDate
			update["resolutionNotes"] = issue.ResolutionNotes
		}
		mutation["$push"] = bson.M{"statusHistory": change}
	}

	if _, err := issueCollection().UpdateOne(ctx, bson.M{"_id": issueID}, mutation); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": newIssueView(ctx, issue, viewer)})
}

// DeleteIssue hard-deletes an issue. Only the reporter or municipal
// staff may do this; nothing of the record survives.
func DeleteIssue(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid issue ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue, err := fetchIssue(ctx, issueID)
	if err != nil {
		respondError(c, err)
		return
	}

	if viewer.Role == models.Citizen && issue.ReportedBy != viewer.ID {
		respondError(c, apperrors.Forbidden("You can only delete your own issues"))
		return
	}

	if _, err := issueCollection().DeleteOne(ctx, bson.M{"_id": issueID}); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Issue deleted successfully"})
}

// AssignIssue routes an issue to a user and department, overwriting any
// prior assignment, and bumps the department's assigned counter. The
// issue-side write and the counter bump are separately atomic; a counter
// failure after a successful issue write surfaces as a retryable
// dependency error rather than a rollback.
func AssignIssue(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid issue ID"})
		return
	}

	var input struct {
		AssignedTo string `json:"assignedTo" binding:"required"`
		Department string `json:"department" binding:"required"`
		Notes      string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	assigneeID, err := primitive.ObjectIDFromHex(input.AssignedTo)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid assignee ID"})
		return
	}
	departmentID, err := primitive.ObjectIDFromHex(input.Department)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid department ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue, err := fetchIssue(ctx, issueID)
	if err != nil {
		respondError(c, err)
		return
	}

	deptCount, err := departmentCollection().CountDocuments(ctx, bson.M{"_id": departmentID})
	if err != nil {
		respondError(c, err)
		return
	}
	if deptCount == 0 {
		respondError(c, apperrors.NotFound("Department"))
		return
	}

	notes := input.Notes
	if notes == "" {
		notes = "Issue assigned"
	}
	issue.SetAssignment(assigneeID, departmentID, viewer.ID)
	change := issue.AddStatusChange(models.Assigned, viewer.ID, notes)

	// Assignment, status and history move in one document-level write so
	// concurrent transitions cannot interleave.
	_, err = issueCollection().UpdateOne(ctx, bson.M{"_id": issueID}, bson.M{
		"$set": bson.M{
			"assignedTo": issue.AssignedTo,
			"status":     issue.Status,
			"updatedAt":  issue.UpdatedAt,
		},
		"$push": bson.M{"statusHistory": change},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := departmentCollection().UpdateOne(ctx, bson.M{"_id": departmentID}, bson.M{
		"$inc": bson.M{"performance.totalIssuesAssigned": 1},
		"$set": bson.M{"performance.lastUpdated": time.Now()},
	})
	if err != nil || res.MatchedCount == 0 {
		respondError(c, apperrors.Dependency(
			"Issue assigned but department counter update failed; retry the counter update",
			map[string]string{
				"issue_id":      issueID.Hex(),
				"department_id": departmentID.Hex(),
			},
		))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": newIssueView(ctx, issue, viewer)})
}

// ResolveIssue transitions an issue to resolved and stamps the
// resolution timestamp and notes. Elapsed-time bookkeeping is fed to the
// department separately via the performance endpoint.
func ResolveIssue(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid issue ID"})
		return
	}

	var input struct {
		ResolutionNotes string `json:"resolutionNotes"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue, err := fetchIssue(ctx, issueID)
	if err != nil {
		respondError(c, err)
		return
	}

	notes := input.ResolutionNotes
	if notes == "" {
		notes = "Issue resolved"
	}

	change := issue.AddStatusChange(models.Resolved, viewer.ID, notes)

	_, err = issueCollection().UpdateOne(ctx, bson.M{"_id": issueID}, bson.M{
		"$set": bson.M{
			"status":               issue.Status,
			"actualResolutionDate": issue.ActualResolutionDate,
			"resolutionNotes":      issue.ResolutionNotes,
			"updatedAt":            issue.UpdatedAt,
		},
		"$push": bson.M{"statusHistory": change},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": newIssueView(ctx, issue, viewer)})
}

// AddComment appends a comment to an issue and returns the new entry.
func AddComment(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid issue ID"})
		return
	}

	var input struct {
		Content    string `json:"content"`
		IsInternal bool   `json:"isInternal"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	// Only municipal staff may mark comments internal.
	isInternal := input.IsInternal && viewer.Role.IsElevated()

	comment, err := models.NewComment(viewer.ID, strings.TrimSpace(input.Content), isInternal)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := issueCollection().UpdateOne(ctx, bson.M{"_id": issueID}, bson.M{
		"$push": bson.M{"comments": comment},
		"$set":  bson.M{"updatedAt": comment.CreatedAt},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if res.MatchedCount == 0 {
		respondError(c, apperrors.NotFound("Issue"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": comment})
}

// HandleUpvoteIssue toggles the user's upvote: voted becomes unvoted and
// vice versa. The pull and the guarded push are each atomic, so two
// concurrent toggles by the same user cannot double-insert.
func HandleUpvoteIssue(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid issue ID"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := fetchIssue(ctx, issueID); err != nil {
		respondError(c, err)
		return
	}

	voted := false
	res, err := issueCollection().UpdateOne(ctx,
		bson.M{"_id": issueID, "upvotes.user": viewer.ID},
		bson.M{"$pull": bson.M{"upvotes": bson.M{"user": viewer.ID}}},
	)
	if err != nil {
		respondError(c, err)
		return
	}

	if res.ModifiedCount == 0 {
		pushRes, err := issueCollection().UpdateOne(ctx,
			bson.M{"_id": issueID, "upvotes.user": bson.M{"$ne": viewer.ID}},
			bson.M{"$push": bson.M{"upvotes": models.Upvote{User: viewer.ID, VotedAt: time.Now()}}},
		)
		if err != nil {
			respondError(c, err)
			return
		}
		if pushRes.MatchedCount == 0 {
			respondError(c, apperrors.Conflict("Concurrent vote detected, retry"))
			return
		}
		voted = true
	}

	issue, err := fetchIssue(ctx, issueID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"voted":        voted,
		"upvoteCount":  issue.UpvoteCount(),
		"userHasVoted": voted,
	})
}

// RateIssue records the reporter's resolution rating, once, after the
// issue has been resolved.
func RateIssue(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	issueID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid issue ID"})
		return
	}

	var input struct {
		Rating   int    `json:"rating"`
		Feedback string `json:"feedback"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	issue, err := fetchIssue(ctx, issueID)
	if err != nil {
		respondError(c, err)
		return
	}

	if issue.ReportedBy != viewer.ID {
		respondError(c, apperrors.Forbidden("Only the reporter can rate the resolution"))
		return
	}

	if err := issue.Rate(input.Rating, input.Feedback, viewer.ID); err != nil {
		respondError(c, err)
		return
	}

	// Conditional write keeps the rating single-shot under concurrency.
	res, err := issueCollection().UpdateOne(ctx,
		bson.M{"_id": issueID, "resolutionRating": nil},
		bson.M{"$set": bson.M{"resolutionRating": issue.ResolutionRating, "updatedAt": time.Now()}},
	)
	if err != nil {
		respondError(c, err)
		return
	}
	if res.ModifiedCount == 0 {
		respondError(c, apperrors.Conflict("Issue has already been rated"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": issue.ResolutionRating})
}

// GetIssueStatistics returns the status breakdown plus totals
func GetIssueStatistics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pipeline := []bson.M{
		{"$group": bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}},
	}

	cursor, err := issueCollection().Aggregate(ctx, pipeline)
	if err != nil {
		respondError(c, err)
		return
	}
	defer cursor.Close(ctx)

	var statusBreakdown []bson.M
	if err := cursor.All(ctx, &statusBreakdown); err != nil {
		respondError(c, err)
		return
	}

	totalIssues, err := issueCollection().CountDocuments(ctx, bson.M{})
	if err != nil {
		respondError(c, err)
		return
	}

	recentIssues, err := issueCollection().CountDocuments(ctx, bson.M{
		"createdAt": bson.M{"$gte": time.Now().AddDate(0, 0, -7)},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"totalIssues":     totalIssues,
			"recentIssues":    recentIssues,
			"statusBreakdown": statusBreakdown,
		},
	})
}

// GetIssuesByLocation returns issues within a radius of a point,
// nearest-first via the 2dsphere index.
func GetIssuesByLocation(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	latStr := c.Query("lat")
	lngStr := c.Query("lng")
	if latStr == "" || lngStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Latitude and longitude are required"})
		return
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid latitude"})
		return
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid longitude"})
		return
	}

	maxDistance := 1000
	if d := c.Query("maxDistance"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil && parsed > 0 {
			maxDistance = parsed
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{
		"location.geo": bson.M{
			"$near": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": []float64{lng, lat},
				},
				"$maxDistance": maxDistance,
			},
		},
	}
	if viewer.Role == models.Citizen {
		filter["isPublic"] = true
	}

	cursor, err := issueCollection().Find(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		respondError(c, err)
		return
	}

	views := make([]IssueView, 0, len(issues))
	for _, issue := range issues {
		views = append(views, newIssueView(ctx, issue, viewer))
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(views), "data": views})
}

// GetIssuesByCategory returns issues of one category with their assigned
// department populated.
func GetIssuesByCategory(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	category := c.Param("category")
	if !models.ValidCategory(category) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid category"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{"category": category}
	if viewer.Role == models.Citizen {
		filter["isPublic"] = true
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := issueCollection().Find(ctx, filter, findOptions)
	if err != nil {
		respondError(c, err)
		return
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		respondError(c, err)
		return
	}

	views := make([]IssueView, 0, len(issues))
	for _, issue := range issues {
		view := newIssueView(ctx, issue, viewer)
		if issue.AssignedTo != nil {
			var dept models.Department
			if err := departmentCollection().FindOne(ctx, bson.M{"_id": issue.AssignedTo.Department}).Decode(&dept); err == nil {
				view.AssignedDepartment = map[string]interface{}{
					"id":   dept.ID,
					"name": dept.Name,
					"code": dept.Code,
					"head": dept.Head,
				}
			}
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(views), "data": views})
}

// GetIssuesByStatus returns issues in one status
func GetIssuesByStatus(c *gin.Context) {
	viewer, ok := getPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	status := c.Param("status")
	if !models.ValidStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid status"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{"status": status}
	if viewer.Role == models.Citizen {
		filter["isPublic"] = true
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := issueCollection().Find(ctx, filter, findOptions)
	if err != nil {
		respondError(c, err)
		return
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		respondError(c, err)
		return
	}

	views := make([]IssueView, 0, len(issues))
	for _, issue := range issues {
		views = append(views, newIssueView(ctx, issue, viewer))
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(views), "data": views})
}
