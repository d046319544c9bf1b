package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an entity is absent or soft-deleted.
	ErrNotFound = errors.New("data not found")
	// ErrAccessDenied is returned when the caller may not act on the entity.
	ErrAccessDenied = errors.New("access not allowed")
	// ErrConcurrencyConflict means the quiz changed since the caller loaded it; reload and retry.
	ErrConcurrencyConflict = errors.New("data already changed, reload and retry")
	// ErrAlreadyAttempted is returned when the learner already has a graded attempt.
	ErrAlreadyAttempted = errors.New("quiz already attempted")
	// ErrValidation is the umbrella for malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrSubmissionMismatch means a live question has no entry in the submission.
	ErrSubmissionMismatch = errors.New("submission does not match quiz")
)

// ValidationError lists field-level problems. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Messages []string
	cause    error
}

// NewValidationError builds a ValidationError from formatted messages.
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

// Validationf builds a single-message ValidationError.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Messages: []string{fmt.Sprintf(format, args...)}}
}

// Wrap attaches a more specific sentinel.
func (e *ValidationError) Wrap(cause error) *ValidationError {
	e.cause = cause
	return e
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Messages, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.cause
}
