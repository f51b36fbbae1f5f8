package models

import (
	"context"
	"fmt"
	"time"

	"citypulse-be/apperrors"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IssueCategory enum
type IssueCategory string

const (
	Infrastructure IssueCategory = "infrastructure"
	Sanitation     IssueCategory = "sanitation"
	Traffic        IssueCategory = "traffic"
	Utilities      IssueCategory = "utilities"
	Environment    IssueCategory = "environment"
	Safety         IssueCategory = "safety"
	Parks          IssueCategory = "parks"
	Roads          IssueCategory = "roads"
	Other          IssueCategory = "other"
)

// IssuePriority enum
type IssuePriority string

const (
	Low      IssuePriority = "low"
	Medium   IssuePriority = "medium"
	High     IssuePriority = "high"
	Critical IssuePriority = "critical"
)

// IssueStatus enum
type IssueStatus string

const (
	Reported   IssueStatus = "reported"
	Assigned   IssueStatus = "assigned"
	InProgress IssueStatus = "in_progress"
	Resolved   IssueStatus = "resolved"
	Closed     IssueStatus = "closed"
	Rejected   IssueStatus = "rejected"
)

func ValidCategory(c string) bool {
	switch IssueCategory(c) {
	case Infrastructure, Sanitation, Traffic, Utilities, Environment, Safety, Parks, Roads, Other:
		return true
	}
	return false
}

func ValidPriority(p string) bool {
	switch IssuePriority(p) {
	case Low, Medium, High, Critical:
		return true
	}
	return false
}

func ValidStatus(s string) bool {
	switch IssueStatus(s) {
	case Reported, Assigned, InProgress, Resolved, Closed, Rejected:
		return true
	}
	return false
}

// Coordinates is the API-facing coordinate pair.
type Coordinates struct {
	Lat float64 `bson:"lat" json:"lat" validate:"min=-90,max=90"`
	Lng float64 `bson:"lng" json:"lng" validate:"min=-180,max=180"`
}

// GeoPoint is the GeoJSON point kept alongside the raw pair so the
// 2dsphere index has something it can actually index.
type GeoPoint struct {
	Type        string    `bson:"type" json:"-"`
	Coordinates []float64 `bson:"coordinates" json:"-"` // [lng, lat]
}

// Location of a reported issue
type Location struct {
	Address     string      `bson:"address" json:"address" validate:"required"`
	City        string      `bson:"city" json:"city" validate:"required"`
	State       string      `bson:"state" json:"state" validate:"required"`
	ZipCode     string      `bson:"zipCode,omitempty" json:"zipCode,omitempty"`
	Coordinates Coordinates `bson:"coordinates" json:"coordinates"`
	Geo         GeoPoint    `bson:"geo" json:"-"`
}

// SyncGeo refreshes the GeoJSON point from the coordinate pair. Must be
// called before any write that touches the coordinates.
func (l *Location) SyncGeo() {
	l.Geo = GeoPoint{
		Type:        "Point",
		Coordinates: []float64{l.Coordinates.Lng, l.Coordinates.Lat},
	}
}

// IssueImage is uploaded-image metadata; blob storage lives elsewhere.
type IssueImage struct {
	URL        string    `bson:"url" json:"url"`
	PublicID   string    `bson:"publicId,omitempty" json:"publicId,omitempty"`
	Caption    string    `bson:"caption,omitempty" json:"caption,omitempty"`
	UploadedAt time.Time `bson:"uploadedAt" json:"uploadedAt"`
}

// Assignment routes an issue to a user and department.
type Assignment struct {
	User       primitive.ObjectID `bson:"user" json:"user"`
	Department primitive.ObjectID `bson:"department" json:"department"`
	AssignedAt time.Time          `bson:"assignedAt" json:"assignedAt"`
	AssignedBy primitive.ObjectID `bson:"assignedBy" json:"assignedBy"`
}

// Comment on an issue; internal comments are staff-only.
type Comment struct {
	Author     primitive.ObjectID `bson:"author" json:"author"`
	Content    string             `bson:"content" json:"content"`
	IsInternal bool               `bson:"isInternal" json:"isInternal"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Upvote records one user's vote; membership is one entry per user.
type Upvote struct {
	User    primitive.ObjectID `bson:"user" json:"user"`
	VotedAt time.Time          `bson:"votedAt" json:"votedAt"`
}

// StatusChange is one append-only audit entry.
type StatusChange struct {
	Status    IssueStatus        `bson:"status" json:"status"`
	ChangedBy primitive.ObjectID `bson:"changedBy" json:"changedBy"`
	ChangedAt time.Time          `bson:"changedAt" json:"changedAt"`
	Notes     string             `bson:"notes,omitempty" json:"notes,omitempty"`
}

// ResolutionRating is the reporter's post-resolution rating.
type ResolutionRating struct {
	Rating   int                `bson:"rating" json:"rating"`
	Feedback string             `bson:"feedback,omitempty" json:"feedback,omitempty"`
	RatedBy  primitive.ObjectID `bson:"ratedBy" json:"ratedBy"`
	RatedAt  time.Time          `bson:"ratedAt" json:"ratedAt"`
}

// Issue represents a civic issue reported by a citizen
type Issue struct {
	ID                      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title                   string             `bson:"title" json:"title" validate:"required,min=5,max=200"`
	Description             string             `bson:"description" json:"description" validate:"required,min=10,max=2000"`
	Category                IssueCategory      `bson:"category" json:"category" validate:"required,oneof=infrastructure sanitation traffic utilities environment safety parks roads other"`
	Priority                IssuePriority      `bson:"priority" json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Status                  IssueStatus        `bson:"status" json:"status"`
	Location                Location           `bson:"location" json:"location"`
	Images                  []IssueImage       `bson:"images,omitempty" json:"images,omitempty"`
	ReportedBy              primitive.ObjectID `bson:"reportedBy" json:"reportedBy"`
	AssignedTo              *Assignment        `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	EstimatedResolutionDate *time.Time         `bson:"estimatedResolutionDate,omitempty" json:"estimatedResolutionDate,omitempty"`
	ActualResolutionDate    *time.Time         `bson:"actualResolutionDate,omitempty" json:"actualResolutionDate,omitempty"`
	ResolutionNotes         string             `bson:"resolutionNotes,omitempty" json:"resolutionNotes,omitempty"`
	Tags                    []string           `bson:"tags,omitempty" json:"tags,omitempty"`
	Upvotes                 []Upvote           `bson:"upvotes" json:"upvotes"`
	Comments                []Comment          `bson:"comments" json:"comments"`
	StatusHistory           []StatusChange     `bson:"statusHistory" json:"statusHistory"`
	IsPublic                bool               `bson:"isPublic" json:"isPublic"`
	IsAnonymous             bool               `bson:"isAnonymous" json:"isAnonymous"`
	ResolutionRating        *ResolutionRating  `bson:"resolutionRating,omitempty" json:"resolutionRating,omitempty"`
	CreatedAt               time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt               time.Time          `bson:"updatedAt" json:"updatedAt"`
}

var validate = validator.New()

func issueFieldMessage(fe validator.FieldError) string {
	switch fe.StructField() {
	case "Title":
		if fe.Tag() == "required" {
			return "Issue title is required"
		}
		return "Title must be between 5 and 200 characters"
	case "Description":
		if fe.Tag() == "required" {
			return "Issue description is required"
		}
		return "Description must be between 10 and 2000 characters"
	case "Category":
		if fe.Tag() == "required" {
			return "Category is required"
		}
		return "Invalid category"
	case "Priority":
		return "Invalid priority"
	case "Address":
		return "Location address is required"
	case "City":
		return "Location city is required"
	case "State":
		return "Location state is required"
	case "Lat":
		return "Latitude must be between -90 and 90"
	case "Lng":
		return "Longitude must be between -180 and 180"
	}
	return fmt.Sprintf("Invalid value for %s", fe.StructField())
}

func issueFieldName(fe validator.FieldError) string {
	switch fe.StructField() {
	case "Title":
		return "title"
	case "Description":
		return "description"
	case "Category":
		return "category"
	case "Priority":
		return "priority"
	case "Address":
		return "location.address"
	case "City":
		return "location.city"
	case "State":
		return "location.state"
	case "Lat":
		return "location.coordinates.lat"
	case "Lng":
		return "location.coordinates.lng"
	}
	return fe.StructField()
}

// Validate checks every field constraint and reports all violations
// together, not just the first.
func (i *Issue) Validate() error {
	var fields []apperrors.FieldError

	if err := validate.Struct(i); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, apperrors.FieldError{
					Field:   issueFieldName(fe),
					Message: issueFieldMessage(fe),
					Value:   fe.Value(),
				})
			}
		} else {
			return err
		}
	}

	if len(fields) > 0 {
		return apperrors.Validation(fields)
	}
	return nil
}

// SeedHistory synthesizes the initial status-history entry for a freshly
// reported issue. No-op if history already exists.
func (i *Issue) SeedHistory() {
	if len(i.StatusHistory) > 0 {
		return
	}
	i.StatusHistory = append(i.StatusHistory, StatusChange{
		Status:    i.Status,
		ChangedBy: i.ReportedBy,
		ChangedAt: time.Now(),
		Notes:     "Issue reported",
	})
}

// AddStatusChange appends a history entry and moves the current status.
// Any status is reachable from any other; only enum membership is checked
// by the caller. History is append-only. A transition to resolved also
// stamps the resolution date and notes, whichever path it arrives by.
func (i *Issue) AddStatusChange(newStatus IssueStatus, changedBy primitive.ObjectID, notes string) StatusChange {
	change := StatusChange{
		Status:    newStatus,
		ChangedBy: changedBy,
		ChangedAt: time.Now(),
		Notes:     notes,
	}
	i.Status = newStatus
	i.StatusHistory = append(i.StatusHistory, change)
	i.UpdatedAt = change.ChangedAt
	if newStatus == Resolved {
		resolvedAt := change.ChangedAt
		i.ActualResolutionDate = &resolvedAt
		i.ResolutionNotes = notes
	}
	return change
}

// SetAssignment overwrites any prior assignment with the new routing.
func (i *Issue) SetAssignment(user, department, assignedBy primitive.ObjectID) {
	i.AssignedTo = &Assignment{
		User:       user,
		Department: department,
		AssignedAt: time.Now(),
		AssignedBy: assignedBy,
	}
}

// NewComment validates the content length and builds a comment entry.
func NewComment(author primitive.ObjectID, content string, isInternal bool) (Comment, error) {
	if len(content) < 1 || len(content) > 1000 {
		return Comment{}, apperrors.Validation([]apperrors.FieldError{{
			Field:   "content",
			Message: "Comment must be between 1 and 1000 characters",
			Value:   content,
		}})
	}
	now := time.Now()
	return Comment{
		Author:     author,
		Content:    content,
		IsInternal: isInternal,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// AddComment validates and appends a comment, returning the new entry.
func (i *Issue) AddComment(author primitive.ObjectID, content string, isInternal bool) (Comment, error) {
	comment, err := NewComment(author, content, isInternal)
	if err != nil {
		return Comment{}, err
	}
	i.Comments = append(i.Comments, comment)
	i.UpdatedAt = comment.CreatedAt
	return comment, nil
}

// HasUpvoted reports whether the user is in the upvote set.
func (i *Issue) HasUpvoted(user primitive.ObjectID) bool {
	for _, v := range i.Upvotes {
		if v.User == user {
			return true
		}
	}
	return false
}

// ToggleUpvote adds the user's vote if absent, removes it if present.
// Returns whether the user is voted after the call.
func (i *Issue) ToggleUpvote(user primitive.ObjectID) bool {
	for idx, v := range i.Upvotes {
		if v.User == user {
			i.Upvotes = append(i.Upvotes[:idx], i.Upvotes[idx+1:]...)
			return false
		}
	}
	i.Upvotes = append(i.Upvotes, Upvote{User: user, VotedAt: time.Now()})
	return true
}

// Rate records the reporter's resolution rating. Allowed once, and only
// after the issue has actually been resolved.
func (i *Issue) Rate(rating int, feedback string, ratedBy primitive.ObjectID) error {
	if i.ActualResolutionDate == nil {
		return apperrors.Conflict("Issue has not been resolved yet")
	}
	if i.ResolutionRating != nil {
		return apperrors.Conflict("Issue has already been rated")
	}
	if rating < 1 || rating > 5 {
		return apperrors.Validation([]apperrors.FieldError{{
			Field:   "rating",
			Message: "Rating must be between 1 and 5",
			Value:   rating,
		}})
	}
	i.ResolutionRating = &ResolutionRating{
		Rating:   rating,
		Feedback: feedback,
		RatedBy:  ratedBy,
		RatedAt:  time.Now(),
	}
	return nil
}

// UpvoteCount is derived, never stored.
func (i *Issue) UpvoteCount() int { return len(i.Upvotes) }

// CommentCount is derived, never stored.
func (i *Issue) CommentCount() int { return len(i.Comments) }

// DaysSinceReported is derived, never stored.
func (i *Issue) DaysSinceReported() int {
	diff := time.Since(i.CreatedAt)
	days := int(diff.Hours() / 24)
	if diff > time.Duration(days)*24*time.Hour {
		days++
	}
	return days
}

// EnsureIssueIndexes creates the query and geospatial indexes
func EnsureIssueIndexes(collection *mongo.Collection) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "priority", Value: 1}}},
		{Keys: bson.D{{Key: "reportedBy", Value: 1}}},
		{Keys: bson.D{{Key: "assignedTo.user", Value: 1}}},
		{Keys: bson.D{{Key: "assignedTo.department", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "tags", Value: 1}}},
		{Keys: bson.D{{Key: "location.geo", Value: "2dsphere"}}},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes, options.CreateIndexes())
	return err
}
