package granary

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("granary: not found")
	ErrAlreadyExists = errors.New("granary: already exists")
	ErrInvalidInput  = errors.New("granary: invalid input")
	ErrForbidden     = errors.New("granary: forbidden")
	ErrBusy          = errors.New("granary: resource busy, retry later")

	// Seller errors
	ErrSellerNotFound    = errors.New("granary: seller not found")
	ErrSellerExists      = errors.New("granary: seller already exists")
	ErrInvalidTransition = errors.New("granary: invalid status transition")
	ErrSellerNotActive   = errors.New("granary: seller is not active")

	// Pricing errors
	ErrCeilingNotFound   = errors.New("granary: price ceiling not found")
	ErrInvalidCeiling    = errors.New("granary: ceiling must be positive")
	ErrViolationNotFound = errors.New("granary: violation not found")
	ErrViolationClosed   = errors.New("granary: violation already resolved")

	// Purchase order errors
	ErrOrderNotFound   = errors.New("granary: purchase order not found")
	ErrOrderNotPending = errors.New("granary: purchase order is not pending")
	ErrEmptyOrder      = errors.New("granary: purchase order has no items")

	// Inventory errors
	ErrLotNotFound          = errors.New("granary: inventory lot not found")
	ErrInvalidQuantity      = errors.New("granary: quantity must be positive")
	ErrInsufficientStock    = errors.New("granary: insufficient stock")
	ErrAdjustmentOutOfRange = errors.New("granary: adjustment would take lot quantity outside [0, original quantity]")

	// Audit errors
	ErrAuditRecordNotFound = errors.New("granary: audit record not found")
	ErrAuditAppendFailed   = errors.New("granary: audit append failed")

	// Store errors
	ErrStoreNotReady     = errors.New("granary: store not ready")
	ErrStoreClosed       = errors.New("granary: store is closed")
	ErrTransactionFailed = errors.New("granary: transaction failed")
	ErrMigrationFailed   = errors.New("granary: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("granary: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "granary: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("granary: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSellerNotFound) ||
		errors.Is(err, ErrCeilingNotFound) ||
		errors.Is(err, ErrViolationNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrLotNotFound) ||
		errors.Is(err, ErrAuditRecordNotFound)
}

// IsConflict returns true if the error reflects a state the caller raced
// against: a transition from the wrong status, an order that is no longer
// pending, or a violation that was already closed.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrOrderNotPending) ||
		errors.Is(err, ErrViolationClosed) ||
		errors.Is(err, ErrAlreadyExists)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
