package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for any lookup that misses, including lookups of
// entities that exist under a different tenant. Callers cannot tell the two apart.
var ErrNotFound = errors.New("not found")

// Validation sentinels. Wrapped in a ValidationError naming the offending field.
var (
	ErrEmptyDayList      = errors.New("empty day list")
	ErrDayOutOfRange     = errors.New("day out of range")
	ErrMissingBound      = errors.New("missing bound")
	ErrEmptyWindow       = errors.New("zero-length window")
	ErrMutuallyExclusive = errors.New("mutually exclusive")
	ErrOneOfRequired     = errors.New("one of the two required")
	ErrIncompleteRange   = errors.New("incomplete range")
	ErrStartAfterEnd     = errors.New("start after end")
	ErrRangeTooLong      = errors.New("range too long")
	ErrRequired          = errors.New("required")
	ErrTooLong           = errors.New("too long")
	ErrInvalidFormat     = errors.New("invalid format")
	ErrFieldNotAllowed   = errors.New("field not allowed for this setting type")
	ErrUnknownKind       = errors.New("unknown setting type")
)

// ValidationError reports a violated rule invariant on a named request field.
type ValidationError struct {
	Field string
	Err   error
}

// NewValidationError attributes err to field.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %v", e.Err)
	}
	return fmt.Sprintf("validation failed: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
