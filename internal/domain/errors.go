package domain

import (
	"errors"
	"fmt"
)

// Standard error sentinels (spec.md §7). Grouped into the six kinds
// the spec names: ValidationError, NotFound, AlreadyProcessed,
// business-logic violations, Conflict, and Fatal.
var (
	// ErrValidation is bad input; surfaced to the caller unchanged.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a user/package/EPIN/etc. is missing.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyProcessed marks a duplicate session run, an already-used
	// EPIN, or an already-credited rank. Treated as a successful no-op
	// at the engine boundary, never as a failure.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrInsufficientBalance is a business-logic violation on debit/hold.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientStock guards franchise sales.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInsufficientPool guards pool distributions.
	ErrInsufficientPool = errors.New("insufficient pool")

	// ErrConflict is a CAS failure (placement slot, PV lock, wallet
	// compare-and-swap). Callers should retry with bounded attempts;
	// once retries are exhausted this surfaces as ErrRetry.
	ErrConflict = errors.New("conflict")

	// ErrRetry is returned once bounded internal retries on ErrConflict
	// are exhausted.
	ErrRetry = errors.New("retry")

	// ErrFatal marks a ledger-sum invariant violation. No code path in
	// this module returns it, and nothing pauses a user's writes on it.
	ErrFatal = errors.New("fatal: invariant violated")

	// ErrUnknownPackage is the activation-specific flavor of ErrValidation.
	ErrUnknownPackage = fmt.Errorf("%w: unknown package", ErrValidation)

	// ErrPaymentRequired covers activation without an EPIN or paymentRef.
	ErrPaymentRequired = fmt.Errorf("%w: payment reference required", ErrValidation)

	// ErrNoPlacementRoot covers placement with neither sponsor nor
	// explicit placement id.
	ErrNoPlacementRoot = fmt.Errorf("%w: no placement root", ErrValidation)

	// ErrNoSlot is returned only when exhaustive BFS finds no empty slot.
	ErrNoSlot = errors.New("no available placement slot")
)

// NotFoundError wraps ErrNotFound with the entity/id that was missing.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Entity)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError builds a NotFoundError for entity/id.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is (or wraps) ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsAlreadyProcessed reports whether err is (or wraps) ErrAlreadyProcessed.
func IsAlreadyProcessed(err error) bool { return errors.Is(err, ErrAlreadyProcessed) }

// IsFatal reports whether err is (or wraps) ErrFatal.
func IsFatal(err error) bool { return errors.Is(err, ErrFatal) }

// InsufficientBalanceError is the structured error for insufficient balance,
// carrying enough context for a structured {success:false, reason,
// code} API boundary response (spec.md §7).
type InsufficientBalanceError struct {
	UserID    string
	Available int64
	Required  int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for user %s: available=%d required=%d", e.UserID, e.Available, e.Required)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }
