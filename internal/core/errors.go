package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")

	ErrInvalidAmount = errors.New("invalid amount")
	ErrNotesTooLong  = fmt.Errorf("notes too long (max %d characters)", MaxNotesLength)

	// ErrStoreUnavailable marks a failed read or write against the record
	// store. It is retryable by the caller and distinct from "no record".
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrDuplicateDate is returned by stores when an insert collides with an
	// existing record for the same account and date.
	ErrDuplicateDate = errors.New("record already exists for date")

	// ErrRecordNotFound is returned by stores when an update targets no row.
	ErrRecordNotFound = errors.New("record not found")
)

// ValidationError reports user input that failed a constraint. It is
// produced before any store call.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid wraps err as a ValidationError for field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}
