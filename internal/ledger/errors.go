package ledger

import "errors"

// Validation errors: rejected before any persistence, no side effects
var (
	ErrInvalidAccountID     = errors.New("account ID is required")
	ErrInvalidKind          = errors.New("invalid transaction kind")
	ErrInvalidCategory      = errors.New("invalid category")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidAmount        = errors.New("amount must be a positive magnitude")
	ErrInvalidStatus        = errors.New("invalid entry status")
)

// Lookup errors
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEntryNotFound   = errors.New("entry not found")
)

// Write-path errors
var (
	// ErrConflict marks a lost race for the account row (serialization
	// failure, lock timeout). The service retries these with backoff.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrDuplicateEntry marks an idempotency-key collision: the same
	// logical transaction was already persisted.
	ErrDuplicateEntry = errors.New("entry already recorded for idempotency key")

	ErrEntryNotReversible = errors.New("only completed entries can be reversed")
	ErrAlreadyReversed    = errors.New("entry has already been reversed")
)
