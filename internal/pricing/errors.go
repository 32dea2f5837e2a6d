package pricing

import (
	"errors"
	"fmt"

	"github.com/printworks/storefront/internal/platform/httpx"
)

var (
	// ErrNotFound is returned for unknown services, slugs and rows.
	ErrNotFound = fmt.Errorf("pricing: %w", httpx.ErrNotFound)
	// ErrNoMatchingRule is returned when a selection resolves to no active price row.
	ErrNoMatchingRule = fmt.Errorf("pricing: %w", httpx.ErrNoMatch)
	// ErrDuplicate is returned when an active row with the same attribute set exists.
	ErrDuplicate = fmt.Errorf("pricing: attribute set already priced: %w", httpx.ErrDuplicate)
)

// ValidationError reports malformed input. It is always raised before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pricing: invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, httpx.ErrValidation).
func (e *ValidationError) Unwrap() error {
	return httpx.ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PersistenceError wraps transport or transaction failures from the store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("pricing: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// persistErr wraps driver errors, leaving domain errors untouched.
func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var verr *ValidationError
	var perr *PersistenceError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicate), errors.As(err, &verr), errors.As(err, &perr):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
