package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for ledger persistence operations.
//
// The write path runs inside a storage transaction carried through the
// context: BeginTx returns a derived context, and every method called with
// that context operates within the transaction until CommitTx or RollbackTx.
// Implementations must guarantee that readers outside the transaction never
// observe partial state.
type Repository interface {
	// Account operations
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	// GetAccountForUpdate acquires the account's write lock for the
	// duration of the surrounding transaction.
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance int64) error

	// Entry operations (entries are immutable once written)
	CreateEntry(ctx context.Context, entry *Entry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error)
	GetEntryByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*Entry, error)
	GetReversal(ctx context.Context, originalID uuid.UUID) (*Entry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]*Entry, error)

	// SumEntryEffects replays every persisted entry for the account and
	// returns the balance the ledger implies. Used for reconciliation.
	SumEntryEffects(ctx context.Context, accountID uuid.UUID) (int64, error)

	// Transaction management
	BeginTx(ctx context.Context) (context.Context, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
}

// EventPublisher emits a notification for every successfully completed
// entry. Publishing is best-effort: a failed publish never rolls back a
// committed transaction.
type EventPublisher interface {
	PublishTransactionCompleted(ctx context.Context, entry *Entry) error
}

// ReportCache is an optional read-side cache for financial reports.
// GetReport also returns the account's cache version at read time, and
// SetReport must store under that captured version. A write that lands
// between the miss and the store bumps the version through Invalidate, so
// the report computed against the older ledger state can never be served
// afterwards. Invalidate must drop every cached report for the account.
type ReportCache interface {
	GetReport(ctx context.Context, accountID uuid.UUID, filter EntryFilter) (report *Report, version int64, ok bool, err error)
	SetReport(ctx context.Context, accountID uuid.UUID, filter EntryFilter, report *Report, version int64) error
	Invalidate(ctx context.Context, accountID uuid.UUID) error
}
