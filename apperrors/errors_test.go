package apperrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCodeMapping(t *testing.T) {
	cases := map[Kind]int{
		KindValidation: http.StatusBadRequest,
		KindNotFound:   http.StatusNotFound,
		KindForbidden:  http.StatusForbidden,
		KindConflict:   http.StatusConflict,
		KindDependency: http.StatusBadGateway,
	}
	for kind, want := range cases {
		err := &Error{Kind: kind, Message: "x"}
		assert.Equal(t, want, err.StatusCode())
	}
}

func TestValidationCarriesAllFields(t *testing.T) {
	err := Validation([]FieldError{
		{Field: "title", Message: "too short"},
		{Field: "lat", Message: "out of range"},
	})
	require.Len(t, err.Fields, 2)
	assert.Equal(t, KindValidation, err.Kind)
}

func TestDependencyCarriesRetryContext(t *testing.T) {
	err := Dependency("counter update failed", map[string]string{
		"issue_id":      "abc",
		"department_id": "def",
	})
	assert.Equal(t, "abc", err.Meta["issue_id"])
	assert.Equal(t, "def", err.Meta["department_id"])
}

func TestAs(t *testing.T) {
	appErr, ok := As(NotFound("Issue"))
	require.True(t, ok)
	assert.Equal(t, KindNotFound, appErr.Kind)
	assert.Equal(t, "Issue not found", appErr.Message)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}
