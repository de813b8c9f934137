/*
errors.go - Error taxonomy for the folio ledger

ERROR KINDS:
  validation  malformed input, never retried
  not_found   id does not exist within the caller's tenant
  conflict    double void, closing with a balance, posting to a closed folio
  storage     persistence failed; the operation had no effect

Every structured error unwraps to one of the sentinels below, so callers can
branch with errors.Is and transports can map KindOf(err) to a status code.
StorageError deliberately prints no driver text.
*/
package folio

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrStorage    = errors.New("storage failure")

	// ErrRetryable is wrapped by stores around transient failures (lock
	// contention, busy database). Only the transfer step retries on it.
	ErrRetryable = errors.New("retryable storage failure")
)

// Kind is the stable machine-readable error class.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindStorage    Kind = "storage"
	KindInternal   Kind = "internal"
)

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrStorage):
		return KindStorage
	}
	return KindInternal
}

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type NotFoundError struct {
	Resource string // "folio", "charge", "payment"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError carries enough state for the caller to decide remediation.
type ConflictError struct {
	Reason  string
	FolioID FolioID
	Balance *decimal.Decimal
	State   string // e.g. "voided", "closed"
}

func (e *ConflictError) Error() string {
	if e.Balance != nil {
		return fmt.Sprintf("%s (folio %s, balance %s)", e.Reason, e.FolioID, e.Balance.StringFixed(2))
	}
	if e.State != "" {
		return fmt.Sprintf("%s (state %s)", e.Reason, e.State)
	}
	return e.Reason
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// StorageError hides the underlying driver error from Error() but keeps it
// reachable through Unwrap for logging and retry decisions.
type StorageError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *StorageError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("storage failure during %s after %d attempts", e.Op, e.Attempts)
	}
	return fmt.Sprintf("storage failure during %s", e.Op)
}

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func (e *StorageError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

func notFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
