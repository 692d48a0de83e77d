package model

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced directly to callers for corrective action.
var (
	// ErrNotFound indicates an unknown experiment, job, result, or blind id.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEvaluation indicates the referenced result already has an
	// evaluation entry. Evaluations are write-once.
	ErrDuplicateEvaluation = errors.New("evaluation already exists for result")

	// ErrInsufficientData indicates analysis was requested before any
	// evaluations were submitted.
	ErrInsufficientData = errors.New("no evaluations recorded yet")
)

// ValidationError rejects a bad experiment configuration before any job is
// created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
