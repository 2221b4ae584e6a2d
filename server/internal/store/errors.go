package store

import (
	"errors"
	"fmt"
)

// ErrDuplicateID is returned when an insert carries an ID already held by the store.
var ErrDuplicateID = errors.New("store: id already exists")

// ValidationError reports caller-supplied data that fails a required-field or
// format constraint. It is a client error and is never retried.
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

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
