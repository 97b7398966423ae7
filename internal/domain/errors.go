package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")
)

// ValidationError reports malformed input with field-level detail. It is
// never retried; the request itself is wrong.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for the given field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// PermissionError reports that the acting user lacks the privilege required
// for the requested operation.
type PermissionError struct {
	Action string
}

func (e *PermissionError) Error() string {
	return "permission denied: " + e.Action
}

// InvalidTransitionError reports a status change that is not reachable from
// the entity's current status.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPermission reports whether err is (or wraps) a PermissionError.
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsInvalidTransition reports whether err is (or wraps) an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}
