// Package apperror defines the error taxonomy shared by the query engine,
// the repositories and the HTTP layer.
//
// Every domain error is an *AppError wrapping one of the sentinel values
// below, so callers branch with errors.Is and never by string matching.
// Driver failures (constraint violations, timeouts, lost connections) and
// context cancellation are NOT translated: they stay in the wrap chain
// untouched so errors.Is(err, context.Canceled) keeps working.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrMalformedValue marks a stored value that could not be converted to
	// its canonical Go type (corrupt identifier, integer overflow, bad
	// duration or timestamp text). It indicates a schema/query mismatch.
	ErrMalformedValue = errors.New("malformed value")

	// ErrUnknownFilterField and ErrUnknownSortToken are raised when a caller
	// names something outside the closed set a schema declares.
	ErrUnknownFilterField = errors.New("unknown filter field")
	ErrUnknownSortToken   = errors.New("unknown sort token")
)

type AppError struct {
	Err     error  // sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying parse/convert error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// MalformedValue reports that column field could not be read as kind.
func MalformedValue(field, kind string, cause error) *AppError {
	return &AppError{
		Err:     ErrMalformedValue,
		Message: fmt.Sprintf("malformed %s value in field %s", kind, field),
		Field:   field,
		Cause:   cause,
	}
}

func UnknownFilterField(field string) *AppError {
	return &AppError{
		Err:     ErrUnknownFilterField,
		Message: fmt.Sprintf("unknown filter field %q", field),
		Field:   field,
	}
}

func UnknownSortToken(token string) *AppError {
	return &AppError{
		Err:     ErrUnknownSortToken,
		Message: fmt.Sprintf("unknown sort token %q", token),
		Field:   "sort",
	}
}
