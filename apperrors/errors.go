package apperrors

import (
	"fmt"
	"net/http"
)

// Kind identifies the class of failure surfaced to API clients.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindDependency Kind = "dependency"
)

// FieldError describes one violated field constraint.
type FieldError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error is the service-wide error type. Fields carries the per-field
// breakdown for validation failures; Meta carries retry context for
// dependency failures (e.g. which department counter update to repeat).
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Meta    map[string]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// StatusCode maps an error kind to its HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Validation builds a validation error carrying every violated constraint.
func Validation(fields []FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "Validation failed", Fields: fields}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Dependency reports a partial side-effect failure with enough context for
// the caller to retry just the failed leg.
func Dependency(message string, meta map[string]string) *Error {
	return &Error{Kind: KindDependency, Message: message, Meta: meta}
}

// As unwraps err into *Error when possible.
func As(err error) (*Error, bool) {
	appErr, ok := err.(*Error)
	return appErr, ok
}
