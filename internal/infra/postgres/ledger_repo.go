package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrinova/agrinova/internal/ledger"
)

// Postgres error codes translated into domain errors
const (
	pgUniqueViolation    = "23505"
	pgSerializationError = "40001"
	pgDeadlockDetected   = "40P01"
)

// LedgerRepository implements ledger.Repository using PostgreSQL
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Account operations

// CreateAccount creates a new ledger account
func (r *LedgerRepository) CreateAccount(ctx context.Context, account *ledger.Account) error {
	query := `
		INSERT INTO accounts (id, address, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	q := r.getQueryer(ctx)
	_, err := q.Exec(ctx, query,
		account.ID,
		account.Address,
		account.Balance,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", translateError(err))
	}

	return nil
}

// GetAccount retrieves an account by ID
func (r *LedgerRepository) GetAccount(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	return r.getAccount(ctx, id, false)
}

// GetAccountForUpdate retrieves an account with a row-level lock
// (SELECT FOR UPDATE). Must run inside a transaction; the lock is held
// until commit or rollback.
func (r *LedgerRepository) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	if r.getTxFromContext(ctx) == nil {
		return nil, fmt.Errorf("GetAccountForUpdate requires a transaction")
	}
	return r.getAccount(ctx, id, true)
}

func (r *LedgerRepository) getAccount(ctx context.Context, id uuid.UUID, forUpdate bool) (*ledger.Account, error) {
	query := `
		SELECT id, address, balance, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var account ledger.Account

	q := r.getQueryer(ctx)
	err := q.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.Address,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", translateError(err))
	}

	return &account, nil
}

// UpdateAccountBalance sets the account's running balance
func (r *LedgerRepository) UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance int64) error {
	query := `
		UPDATE accounts
		SET balance = $2, updated_at = NOW()
		WHERE id = $1
	`

	q := r.getQueryer(ctx)
	tag, err := q.Exec(ctx, query, id, balance)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", translateError(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAccountNotFound
	}

	return nil
}

// Entry operations

// CreateEntry inserts a new immutable ledger entry. Idempotency-key and
// reversal collisions surface as ErrDuplicateEntry via unique indexes.
func (r *LedgerRepository) CreateEntry(ctx context.Context, entry *ledger.Entry) error {
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO entries (
			id, account_id, kind, category, amount, description,
			payment_method, counterparty_id, status, commitment_hash,
			nonce, signature, verified, idempotency_key, reversal_of,
			created_at, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	q := r.getQueryer(ctx)
	_, err = q.Exec(ctx, query,
		entry.ID,
		entry.AccountID,
		string(entry.Kind),
		string(entry.Category),
		entry.Amount,
		entry.Description,
		nullString(string(entry.PaymentMethod)),
		entry.CounterpartyID,
		string(entry.Status),
		entry.CommitmentHash,
		entry.Nonce,
		entry.Signature,
		entry.Verified,
		entry.IdempotencyKey,
		entry.ReversalOf,
		entry.CreatedAt,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", translateError(err))
	}

	return nil
}

// GetEntry retrieves an entry by ID
func (r *LedgerRepository) GetEntry(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	query := selectEntryColumns + ` WHERE id = $1`

	q := r.getQueryer(ctx)
	entry, err := r.scanEntry(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", translateError(err))
	}

	return entry, nil
}

// GetEntryByIdempotencyKey retrieves the entry recorded under a client key
func (r *LedgerRepository) GetEntryByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*ledger.Entry, error) {
	query := selectEntryColumns + ` WHERE account_id = $1 AND idempotency_key = $2`

	q := r.getQueryer(ctx)
	entry, err := r.scanEntry(q.QueryRow(ctx, query, accountID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry by idempotency key: %w", translateError(err))
	}

	return entry, nil
}

// GetReversal retrieves the compensating entry for an original, if any
func (r *LedgerRepository) GetReversal(ctx context.Context, originalID uuid.UUID) (*ledger.Entry, error) {
	query := selectEntryColumns + ` WHERE reversal_of = $1`

	q := r.getQueryer(ctx)
	entry, err := r.scanEntry(q.QueryRow(ctx, query, originalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get reversal: %w", translateError(err))
	}

	return entry, nil
}

// ListEntries lists visible entries newest-first with filters and pagination.
// Pending and failed entries never appear in listings.
func (r *LedgerRepository) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]*ledger.Entry, error) {
	query := selectEntryColumns + `
		WHERE account_id = $1 AND status IN ('completed', 'reversed')
	`

	args := []interface{}{filter.AccountID}
	argPos := 2

	if filter.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *filter.From)
		argPos++
	}

	if filter.To != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argPos)
		args = append(args, *filter.To)
		argPos++
	}

	if filter.Kind != nil {
		query += fmt.Sprintf(" AND kind = $%d", argPos)
		args = append(args, string(*filter.Kind))
		argPos++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filter.Limit)
		argPos++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filter.Offset)
		argPos++
	}

	q := r.getQueryer(ctx)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", translateError(err))
	}
	defer rows.Close()

	entries := make([]*ledger.Entry, 0)
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, nil
}

// SumEntryEffects replays every persisted entry for the account and returns
// the balance the ledger implies. Direction lives in the domain, but the
// replay runs in SQL so reconciliation never pages the full history into
// memory.
func (r *LedgerRepository) SumEntryEffects(ctx context.Context, accountID uuid.UUID) (int64, error) {
	query := `
		SELECT COALESCE(SUM(
			CASE
				WHEN status = 'completed' AND kind = 'income' THEN amount
				WHEN status = 'completed' AND kind = 'expense' THEN -amount
				WHEN status = 'reversed' AND kind = 'income' THEN -amount
				WHEN status = 'reversed' AND kind = 'expense' THEN amount
				ELSE 0
			END
		), 0)
		FROM entries
		WHERE account_id = $1
	`

	var sum int64

	q := r.getQueryer(ctx)
	if err := q.QueryRow(ctx, query, accountID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum entry effects: %w", translateError(err))
	}

	return sum, nil
}

const selectEntryColumns = `
	SELECT id, account_id, kind, category, amount, description,
	       payment_method, counterparty_id, status, commitment_hash,
	       nonce, signature, verified, idempotency_key, reversal_of,
	       created_at, metadata
	FROM entries
`

// scanEntry scans a single entry from a row
func (r *LedgerRepository) scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var entry ledger.Entry
	var description, paymentMethod sql.NullString
	var metadataJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.AccountID,
		&entry.Kind,
		&entry.Category,
		&entry.Amount,
		&description,
		&paymentMethod,
		&entry.CounterpartyID,
		&entry.Status,
		&entry.CommitmentHash,
		&entry.Nonce,
		&entry.Signature,
		&entry.Verified,
		&entry.IdempotencyKey,
		&entry.ReversalOf,
		&entry.CreatedAt,
		&metadataJSON,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		entry.Description = description.String
	}
	if paymentMethod.Valid {
		entry.PaymentMethod = ledger.PaymentMethod(paymentMethod.String)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &entry, nil
}

// Transaction management using pgx transactions carried through the context

type ctxKey string

const txContextKey ctxKey = "ledger_tx"

// BeginTx starts a new database transaction and stores it in the context
func (r *LedgerRepository) BeginTx(ctx context.Context) (context.Context, error) {
	if tx := r.getTxFromContext(ctx); tx != nil {
		return ctx, fmt.Errorf("transaction already in progress")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ctx, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return context.WithValue(ctx, txContextKey, tx), nil
}

// CommitTx commits the database transaction from the context
func (r *LedgerRepository) CommitTx(ctx context.Context) error {
	tx := r.getTxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", translateError(err))
	}

	return nil
}

// RollbackTx rolls back the database transaction from the context
func (r *LedgerRepository) RollbackTx(ctx context.Context) error {
	tx := r.getTxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Rollback(ctx); err != nil {
		// Ignore already rolled back or committed errors
		if errors.Is(err, pgx.ErrTxClosed) {
			return nil
		}
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

// getTxFromContext retrieves the transaction from context if one exists
func (r *LedgerRepository) getTxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// getQueryer returns the transaction if one exists in context, otherwise the
// pool. This allows all repository methods to work both inside and outside
// transactions.
func (r *LedgerRepository) getQueryer(ctx context.Context) interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
} {
	if tx := r.getTxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// translateError folds postgres error codes into the domain's sentinels so
// the service's retry and idempotency handling stays storage-agnostic.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ledger.ErrDuplicateEntry, pgErr.ConstraintName)
		case pgSerializationError, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", ledger.ErrConflict, pgErr.Message)
		}
	}
	return err
}

// nullString maps the empty string to SQL NULL
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
