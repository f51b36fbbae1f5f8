package models

import (
	"testing"
	"time"

	"citypulse-be/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func validDepartment() Department {
	now := time.Now()
	return Department{
		ID:          primitive.NewObjectID(),
		Name:        "Public Works",
		Description: "Maintains roads, bridges and public infrastructure.",
		Code:        "PW",
		Head:        primitive.NewObjectID(),
		ContactInfo: ContactInfo{
			Email: "works@springfield.gov",
			Phone: "+15551234567",
		},
		Categories:   []IssueCategory{Roads, Infrastructure},
		Staff:        []StaffMember{},
		WorkingHours: DefaultWorkingHours(),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestDepartmentValidateCollectsAllViolations(t *testing.T) {
	dept := validDepartment()
	dept.Name = ""
	dept.Code = "pw1"
	dept.Head = primitive.NilObjectID
	dept.ContactInfo.Email = "not-an-email"

	err := dept.Validate()
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)

	violated := map[string]bool{}
	for _, fe := range appErr.Fields {
		violated[fe.Field] = true
	}
	assert.True(t, violated["name"])
	assert.True(t, violated["code"])
	assert.True(t, violated["head"])
	assert.True(t, violated["contactInfo.email"])
}

func TestDepartmentCodeFormat(t *testing.T) {
	for _, code := range []string{"PW", "SANITATION", "AB"} {
		dept := validDepartment()
		dept.Code = code
		assert.NoError(t, dept.Validate(), "code %q should be valid", code)
	}
	for _, code := range []string{"P", "pw", "P1", "ABCDEFGHIJK", ""} {
		dept := validDepartment()
		dept.Code = code
		assert.Error(t, dept.Validate(), "code %q should be rejected", code)
	}
}

func TestAddStaffMemberIsIdempotent(t *testing.T) {
	dept := validDepartment()
	user := primitive.NewObjectID()

	dept.AddStaffMember(user, Officer)
	require.Len(t, dept.Staff, 1)
	joined := dept.Staff[0].JoinedAt

	// Re-adding updates role and reactivates, never duplicates.
	dept.Staff[0].IsActive = false
	dept.AddStaffMember(user, Supervisor)
	require.Len(t, dept.Staff, 1)
	assert.Equal(t, Supervisor, dept.Staff[0].Role)
	assert.True(t, dept.Staff[0].IsActive)
	assert.Equal(t, joined, dept.Staff[0].JoinedAt)
}

func TestRemoveStaffMember(t *testing.T) {
	dept := validDepartment()
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()
	dept.AddStaffMember(a, Officer)
	dept.AddStaffMember(b, Manager)

	dept.RemoveStaffMember(a)
	require.Len(t, dept.Staff, 1)
	assert.Equal(t, b, dept.Staff[0].User)

	// Removing an absent user is a no-op.
	dept.RemoveStaffMember(a)
	assert.Len(t, dept.Staff, 1)
}

func TestActiveStaffCountIsDerived(t *testing.T) {
	dept := validDepartment()
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()
	c := primitive.NewObjectID()
	dept.AddStaffMember(a, Officer)
	dept.AddStaffMember(b, Specialist)
	dept.AddStaffMember(c, Manager)

	dept.Staff[1].IsActive = false
	assert.Equal(t, 2, dept.ActiveStaffCount())
}

func TestResolutionRate(t *testing.T) {
	dept := validDepartment()
	assert.Equal(t, float64(0), dept.ResolutionRate())

	dept.Performance.TotalIssuesAssigned = 8
	dept.Performance.TotalIssuesResolved = 6
	assert.InDelta(t, 75.0, dept.ResolutionRate(), 1e-9)
}

func TestApplyPerformanceUpdateFirstBatch(t *testing.T) {
	dept := validDepartment()

	dept.ApplyPerformanceUpdate(5, 10)
	assert.Equal(t, int64(5), dept.Performance.TotalIssuesResolved)
	assert.InDelta(t, 10.0, dept.Performance.AverageResolutionTime, 1e-9)
	assert.False(t, dept.Performance.LastUpdated.IsZero())
}

func TestApplyPerformanceUpdateWeightedBlend(t *testing.T) {
	dept := validDepartment()
	dept.Performance.TotalIssuesResolved = 4
	dept.Performance.AverageResolutionTime = 8

	dept.ApplyPerformanceUpdate(2, 14)
	assert.Equal(t, int64(6), dept.Performance.TotalIssuesResolved)
	// (8*4 + 14*2) / 6 = 10
	assert.InDelta(t, 10.0, dept.Performance.AverageResolutionTime, 1e-9)
}

func TestApplyPerformanceUpdateZeroDeltaIsNoOpOnAverage(t *testing.T) {
	dept := validDepartment()
	dept.Performance.TotalIssuesResolved = 3
	dept.Performance.AverageResolutionTime = 7.5

	dept.ApplyPerformanceUpdate(0, 99)
	assert.Equal(t, int64(3), dept.Performance.TotalIssuesResolved)
	assert.InDelta(t, 7.5, dept.Performance.AverageResolutionTime, 1e-9)
}

func TestApplyPerformanceUpdateGuardsZeroDenominator(t *testing.T) {
	dept := validDepartment()

	dept.ApplyPerformanceUpdate(0, 50)
	assert.Equal(t, int64(0), dept.Performance.TotalIssuesResolved)
	assert.Equal(t, float64(0), dept.Performance.AverageResolutionTime)
}

func TestApplyPerformanceUpdateDriftAcrossManySmallUpdates(t *testing.T) {
	dept := validDepartment()
	for i := 0; i < 1000; i++ {
		dept.ApplyPerformanceUpdate(1, 6)
	}
	assert.Equal(t, int64(1000), dept.Performance.TotalIssuesResolved)
	assert.InDelta(t, 6.0, dept.Performance.AverageResolutionTime, 1e-6)
}

func TestDefaultWorkingHours(t *testing.T) {
	hours := DefaultWorkingHours()
	assert.True(t, hours.Monday.IsWorking)
	assert.True(t, hours.Friday.IsWorking)
	assert.False(t, hours.Saturday.IsWorking)
	assert.False(t, hours.Sunday.IsWorking)
}

func TestDeactivateLeavesRosterIntact(t *testing.T) {
	dept := validDepartment()
	dept.AddStaffMember(primitive.NewObjectID(), Officer)
	dept.AddStaffMember(primitive.NewObjectID(), Manager)

	dept.IsActive = false
	assert.Len(t, dept.Staff, 2)
	assert.Equal(t, 2, dept.ActiveStaffCount())
}

// Full lifecycle: report, assign, resolve, then feed the department's
// performance counters the way the scheduled collaborator would.
func TestIssueLifecycleFeedsDepartmentPerformance(t *testing.T) {
	reporter := primitive.NewObjectID()
	staffer := primitive.NewObjectID()
	admin := primitive.NewObjectID()

	issue := validIssue(reporter)
	issue.Category = Roads
	require.NoError(t, issue.Validate())
	issue.SeedHistory()

	dept := validDepartment()

	issue.SetAssignment(staffer, dept.ID, admin)
	issue.AddStatusChange(Assigned, admin, "Issue assigned")
	dept.Performance.TotalIssuesAssigned++

	issue.AddStatusChange(Resolved, staffer, "Patched the pothole")
	require.NotNil(t, issue.ActualResolutionDate)

	dept.ApplyPerformanceUpdate(1, 6)

	assert.Equal(t, Resolved, issue.Status)
	require.Len(t, issue.StatusHistory, 3)
	assert.Equal(t, Resolved, issue.StatusHistory[2].Status)
	assert.Equal(t, int64(1), dept.Performance.TotalIssuesAssigned)
	assert.Equal(t, int64(1), dept.Performance.TotalIssuesResolved)
	assert.InDelta(t, 6.0, dept.Performance.AverageResolutionTime, 1e-9)
	assert.InDelta(t, 100.0, dept.ResolutionRate(), 1e-9)
}
