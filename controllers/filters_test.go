package controllers

import (
	"testing"

	"citypulse-be/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func validPrincipal(role models.UserRole) principal {
	return principal{ID: primitive.NewObjectID(), Role: role}
}

func TestBuildIssueFilterCitizenOnlySeesPublic(t *testing.T) {
	filter := buildIssueFilter("", "", "", "", models.Citizen)
	assert.Equal(t, true, filter["isPublic"])
}

func TestBuildIssueFilterCitizenSearchStillRestrictedToPublic(t *testing.T) {
	// A matching search term must not leak non-public issues to citizens.
	filter := buildIssueFilter("", "", "", "pothole", models.Citizen)
	assert.Equal(t, true, filter["isPublic"])

	or, ok := filter["$or"].([]bson.M)
	require.True(t, ok)
	require.Len(t, or, 2)
	assert.Contains(t, or[0], "title")
	assert.Contains(t, or[1], "description")
}

func TestBuildIssueFilterQuotesRegexMetacharacters(t *testing.T) {
	// A search term is a literal substring, never a pattern; unbalanced
	// metacharacters must not reach the server as a regex.
	filter := buildIssueFilter("", "", "", "water (main", models.Admin)

	or, ok := filter["$or"].([]bson.M)
	require.True(t, ok)
	for _, clause := range or {
		for _, match := range clause {
			assert.Equal(t, `water \(main`, match.(bson.M)["$regex"])
		}
	}
}

func TestLiteralRegexQuotesAndMatchesCaseInsensitively(t *testing.T) {
	match := literalRegex("a.b*c")
	assert.Equal(t, `a\.b\*c`, match["$regex"])
	assert.Equal(t, "i", match["$options"])
}

func TestClearDepartmentRefFilterScopesToDepartment(t *testing.T) {
	// Removing staff clears the user's reference only while it still
	// points at the department being edited.
	userID := primitive.NewObjectID()
	departmentID := primitive.NewObjectID()

	filter := clearDepartmentRefFilter(userID, departmentID)
	assert.Equal(t, userID, filter["_id"])
	assert.Equal(t, departmentID, filter["department"])
}

func TestBuildIssueFilterElevatedRolesSeeEverything(t *testing.T) {
	for _, role := range []models.UserRole{models.Admin, models.DepartmentHead, models.MunicipalOfficer} {
		filter := buildIssueFilter("", "", "", "", role)
		_, restricted := filter["isPublic"]
		assert.False(t, restricted, "role %s should not be restricted to public issues", role)
	}
}

func TestBuildIssueFilterFieldFilters(t *testing.T) {
	filter := buildIssueFilter("resolved", "roads", "high", "", models.Admin)
	assert.Equal(t, "resolved", filter["status"])
	assert.Equal(t, "roads", filter["category"])
	assert.Equal(t, "high", filter["priority"])
}

func TestBuildIssueFilterAllIsNoFilter(t *testing.T) {
	filter := buildIssueFilter("all", "all", "all", "", models.Admin)
	assert.Empty(t, filter)
}

func TestCanSeeReporter(t *testing.T) {
	reporter := validPrincipal(models.Citizen)
	other := validPrincipal(models.Citizen)
	officer := validPrincipal(models.MunicipalOfficer)

	issue := models.Issue{ReportedBy: reporter.ID, IsAnonymous: true}

	assert.True(t, canSeeReporter(&issue, reporter))
	assert.False(t, canSeeReporter(&issue, other))
	assert.True(t, canSeeReporter(&issue, officer))

	issue.IsAnonymous = false
	assert.True(t, canSeeReporter(&issue, other))
}
