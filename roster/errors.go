/*
errors.go - Centralized error types for the roster engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these with context via fmt.Errorf("...: %w", err).

ERROR CATEGORIES:
  1. Malformed input  - bad dates or payloads at the request edge
  2. Not found        - missing deputy or assignment slot
  3. Storage failures - connectivity, constraint violations

  Malformed data that is already persisted (status ranges with bad dates,
  plain-text legacy statuses) is never an error; resolvers treat it as
  non-matching. Missing optional columns are never an error either; the
  directory narrows the attribute set and reports what was written.

SEE ALSO:
  - status/resolve.go: Total resolution over any stored payload
  - directory/directory.go: Capability-driven attribute narrowing
*/
package roster

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidDate is returned when a request date is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date (use YYYY-MM-DD)")

	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDeputyNotFound is returned when a deputy name matches no row.
	ErrDeputyNotFound = errors.New("deputy not found")

	// ErrSlotNotFound is returned when no assignment matches a slot identity.
	ErrSlotNotFound = errors.New("assignment slot not found")

	// ErrStorageFailure marks failures of the storage collaborator.
	// It is the only class of error that callers are expected to see.
	ErrStorageFailure = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// StorageError wraps a backend error with the operation that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageFailure, e.Err}
}

// Storage wraps err as a StorageError. Nil stays nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDate) || errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDeputyNotFound) || errors.Is(err, ErrSlotNotFound)
}

// IsStorageFailure returns true for errors raised by the storage layer.
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}
