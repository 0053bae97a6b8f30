package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflictingImmutableField is returned when an upsert would change
	// an extraction field (entities, action triple) that was already set.
	// Re-extraction requires an explicit reset.
	ErrConflictingImmutableField = errors.New("conflicting immutable field")

	// ErrVerdictAlreadySet is returned when a verdict write finds the title
	// no longer unfiltered. The P2 transition is terminal.
	ErrVerdictAlreadySet = errors.New("verdict already set")

	// ErrAlreadyAssigned is returned when a title already references an
	// Event Family.
	ErrAlreadyAssigned = errors.New("title already assigned to an event family")

	// ErrFrozen is returned on writes against a frozen CTM bucket.
	ErrFrozen = errors.New("ctm bucket is frozen")
)

// ValidationError wraps field-specific validation errors, e.g. cardinality
// bounds violated on an enrichment write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
