package models

import (
	"testing"
	"time"

	"citypulse-be/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func validIssue(reporter primitive.ObjectID) Issue {
	now := time.Now()
	return Issue{
		ID:          primitive.NewObjectID(),
		Title:       "Pothole on Main Street",
		Description: "Large pothole near the intersection, damaging cars.",
		Category:    Roads,
		Priority:    Medium,
		Status:      Reported,
		Location: Location{
			Address: "123 Main St",
			City:    "Springfield",
			State:   "IL",
			Coordinates: Coordinates{
				Lat: 39.78,
				Lng: -89.65,
			},
		},
		ReportedBy: reporter,
		IsPublic:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestIssueValidateCollectsAllViolations(t *testing.T) {
	issue := validIssue(primitive.NewObjectID())
	issue.Title = "abc"                // too short
	issue.Description = "short"        // too short
	issue.Category = "plumbing"        // not in enum
	issue.Location.Coordinates.Lat = 91
	issue.Location.Coordinates.Lng = -181

	err := issue.Validate()
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)

	violated := map[string]bool{}
	for _, fe := range appErr.Fields {
		violated[fe.Field] = true
	}
	assert.True(t, violated["title"])
	assert.True(t, violated["description"])
	assert.True(t, violated["category"])
	assert.True(t, violated["location.coordinates.lat"])
	assert.True(t, violated["location.coordinates.lng"])
	assert.Len(t, appErr.Fields, 5)
}

func TestIssueValidateAcceptsCoordinateBoundaries(t *testing.T) {
	cases := []Coordinates{
		{Lat: -90, Lng: 0},
		{Lat: 90, Lng: 0},
		{Lat: 0, Lng: -180},
		{Lat: 0, Lng: 180},
	}
	for _, coords := range cases {
		issue := validIssue(primitive.NewObjectID())
		issue.Location.Coordinates = coords
		assert.NoError(t, issue.Validate(), "coordinates %+v should be valid", coords)
	}
}

func TestIssueValidateRejectsOutOfRangeCoordinates(t *testing.T) {
	cases := []Coordinates{
		{Lat: -90.0001, Lng: 0},
		{Lat: 90.0001, Lng: 0},
		{Lat: 0, Lng: -180.0001},
		{Lat: 0, Lng: 180.0001},
	}
	for _, coords := range cases {
		issue := validIssue(primitive.NewObjectID())
		issue.Location.Coordinates = coords
		err := issue.Validate()
		require.Error(t, err, "coordinates %+v should be rejected", coords)
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.KindValidation, appErr.Kind)
	}
}

func TestSeedHistorySynthesizesFirstEntry(t *testing.T) {
	reporter := primitive.NewObjectID()
	issue := validIssue(reporter)
	issue.SeedHistory()

	require.Len(t, issue.StatusHistory, 1)
	assert.Equal(t, Reported, issue.StatusHistory[0].Status)
	assert.Equal(t, reporter, issue.StatusHistory[0].ChangedBy)
	assert.Equal(t, "Issue reported", issue.StatusHistory[0].Notes)

	// Re-seeding must not duplicate the entry.
	issue.SeedHistory()
	assert.Len(t, issue.StatusHistory, 1)
}

func TestAddStatusChangeKeepsStatusAndHistoryInStep(t *testing.T) {
	actor := primitive.NewObjectID()
	issue := validIssue(primitive.NewObjectID())
	issue.SeedHistory()

	for _, status := range []IssueStatus{Assigned, InProgress, Resolved, Closed, Rejected, Reported} {
		before := len(issue.StatusHistory)
		issue.AddStatusChange(status, actor, "")
		assert.Equal(t, status, issue.Status)
		assert.Len(t, issue.StatusHistory, before+1)
		assert.Equal(t, status, issue.StatusHistory[len(issue.StatusHistory)-1].Status)
	}

	// Timestamps never go backwards.
	for i := 1; i < len(issue.StatusHistory); i++ {
		assert.False(t, issue.StatusHistory[i].ChangedAt.Before(issue.StatusHistory[i-1].ChangedAt))
	}
}

func TestTransitionToResolvedStampsResolution(t *testing.T) {
	// Every path into resolved stamps the resolution fields, not just the
	// dedicated resolve endpoint; rating gates on the stamp.
	actor := primitive.NewObjectID()
	issue := validIssue(primitive.NewObjectID())
	issue.SeedHistory()

	change := issue.AddStatusChange(Resolved, actor, "fixed")
	require.NotNil(t, issue.ActualResolutionDate)
	assert.Equal(t, change.ChangedAt, *issue.ActualResolutionDate)
	assert.Equal(t, "fixed", issue.ResolutionNotes)

	require.NoError(t, issue.Rate(5, "quick turnaround", issue.ReportedBy))
}

func TestStatusGraphIsPermissive(t *testing.T) {
	// Any status is reachable from any other; resolved back to reported
	// is legal.
	actor := primitive.NewObjectID()
	issue := validIssue(primitive.NewObjectID())
	issue.SeedHistory()

	issue.AddStatusChange(Resolved, actor, "fixed")
	issue.AddStatusChange(Reported, actor, "reopened")
	assert.Equal(t, Reported, issue.Status)
	assert.Len(t, issue.StatusHistory, 3)
}

func TestToggleUpvoteIsItsOwnInverse(t *testing.T) {
	issue := validIssue(primitive.NewObjectID())
	voter := primitive.NewObjectID()

	assert.True(t, issue.ToggleUpvote(voter))
	assert.Equal(t, 1, issue.UpvoteCount())
	assert.True(t, issue.HasUpvoted(voter))

	assert.False(t, issue.ToggleUpvote(voter))
	assert.Equal(t, 0, issue.UpvoteCount())
	assert.False(t, issue.HasUpvoted(voter))
}

func TestToggleUpvoteIsPerUser(t *testing.T) {
	issue := validIssue(primitive.NewObjectID())
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()

	issue.ToggleUpvote(a)
	issue.ToggleUpvote(b)
	assert.Equal(t, 2, issue.UpvoteCount())

	issue.ToggleUpvote(a)
	assert.Equal(t, 1, issue.UpvoteCount())
	assert.True(t, issue.HasUpvoted(b))
}

func TestAddCommentAppendsWithoutMutatingExisting(t *testing.T) {
	issue := validIssue(primitive.NewObjectID())
	author := primitive.NewObjectID()

	first, err := issue.AddComment(author, "First comment", false)
	require.NoError(t, err)
	require.Equal(t, 1, issue.CommentCount())

	_, err = issue.AddComment(author, "Second comment", true)
	require.NoError(t, err)
	assert.Equal(t, 2, issue.CommentCount())
	assert.Equal(t, first, issue.Comments[0])
}

func TestAddCommentRejectsBadLength(t *testing.T) {
	issue := validIssue(primitive.NewObjectID())
	author := primitive.NewObjectID()

	_, err := issue.AddComment(author, "", false)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)

	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'x'
	}
	_, err = issue.AddComment(author, string(long), false)
	require.Error(t, err)
	assert.Equal(t, 0, issue.CommentCount())
}

func TestSetAssignmentOverwritesPriorAssignment(t *testing.T) {
	issue := validIssue(primitive.NewObjectID())
	issue.SeedHistory()
	actor := primitive.NewObjectID()

	firstUser := primitive.NewObjectID()
	firstDept := primitive.NewObjectID()
	issue.SetAssignment(firstUser, firstDept, actor)
	issue.AddStatusChange(Assigned, actor, "Issue assigned")

	secondUser := primitive.NewObjectID()
	secondDept := primitive.NewObjectID()
	issue.SetAssignment(secondUser, secondDept, actor)
	issue.AddStatusChange(Assigned, actor, "Reassigned")

	require.NotNil(t, issue.AssignedTo)
	assert.Equal(t, secondUser, issue.AssignedTo.User)
	assert.Equal(t, secondDept, issue.AssignedTo.Department)

	assigned := 0
	for _, change := range issue.StatusHistory {
		if change.Status == Assigned {
			assigned++
		}
	}
	assert.Equal(t, 2, assigned)
}

func TestRateRequiresResolutionAndIsSingleShot(t *testing.T) {
	issue := validIssue(primitive.NewObjectID())
	rater := issue.ReportedBy

	err := issue.Rate(5, "great", rater)
	require.Error(t, err)
	appErr, _ := apperrors.As(err)
	assert.Equal(t, apperrors.KindConflict, appErr.Kind)

	resolvedAt := time.Now()
	issue.ActualResolutionDate = &resolvedAt

	require.Error(t, issue.Rate(6, "out of range", rater))
	require.Error(t, issue.Rate(0, "out of range", rater))

	require.NoError(t, issue.Rate(4, "good", rater))
	require.NotNil(t, issue.ResolutionRating)
	assert.Equal(t, 4, issue.ResolutionRating.Rating)

	err = issue.Rate(5, "again", rater)
	require.Error(t, err)
	appErr, _ = apperrors.As(err)
	assert.Equal(t, apperrors.KindConflict, appErr.Kind)
}

func TestDaysSinceReported(t *testing.T) {
	issue := validIssue(primitive.NewObjectID())
	issue.CreatedAt = time.Now().Add(-49 * time.Hour)
	assert.Equal(t, 3, issue.DaysSinceReported())
}

func TestSyncGeoProducesLngLatOrder(t *testing.T) {
	loc := Location{Coordinates: Coordinates{Lat: 39.78, Lng: -89.65}}
	loc.SyncGeo()
	require.Len(t, loc.Geo.Coordinates, 2)
	assert.Equal(t, "Point", loc.Geo.Type)
	assert.Equal(t, -89.65, loc.Geo.Coordinates[0])
	assert.Equal(t, 39.78, loc.Geo.Coordinates[1])
}

func TestEnumValidators(t *testing.T) {
	assert.True(t, ValidCategory("roads"))
	assert.False(t, ValidCategory("plumbing"))
	assert.True(t, ValidPriority("critical"))
	assert.False(t, ValidPriority("urgent"))
	assert.True(t, ValidStatus("in_progress"))
	assert.False(t, ValidStatus("pending"))
}
