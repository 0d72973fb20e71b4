/*
errors.go - Centralized error types for the ledger

ERROR CATEGORIES:
  1. Validation - malformed or out-of-range input, rejected before any write
  2. Authorization - cross-owner access, mutation of shared/system categories
  3. Not found - referenced record does not exist
  4. Conflict - sync last-write-wins loss (returned as data by the sync engine)

USAGE:
  if errors.Is(err, ledger.ErrForbidden) { ... }

  var verr *ledger.ValidationError
  if errors.As(err, &verr) {
      for field, msg := range verr.Fields { ... }
  }

SEE ALSO:
  - api/handlers.go: maps these errors to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input. Nothing was written.
	ErrValidation = errors.New("validation failed")

	// ErrForbidden is returned when the record belongs to another owner.
	ErrForbidden = errors.New("forbidden")

	// ErrSystemCategory is returned when a system category would be mutated.
	ErrSystemCategory = fmt.Errorf("system category is read-only: %w", ErrForbidden)

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a write rejected because the server copy is newer.
	ErrConflict = errors.New("conflict: server copy is newer")

	// ErrNoActiveCycle is returned when no budget cycle is active.
	ErrNoActiveCycle = fmt.Errorf("no active budget cycle: %w", ErrNotFound)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validator accumulates field errors.
type Validator struct {
	fields map[string]string
}

// Check records msg for field when ok is false. The first message per field wins.
func (v *Validator) Check(ok bool, field, msg string) {
	if ok {
		return
	}
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	if _, exists := v.fields[field]; !exists {
		v.fields[field] = msg
	}
}

// Err returns a *ValidationError when any check failed, nil otherwise.
func (v *Validator) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

// Invalid builds a single-field validation error.
func Invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsForbidden returns true for authorization failures.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// CheckOwner enforces owner scoping on a loaded record.
func CheckOwner(owner, recordOwner string) error {
	if owner == "" || owner != recordOwner {
		return ErrForbidden
	}
	return nil
}
