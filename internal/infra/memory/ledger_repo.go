// Package memory provides an in-memory ledger repository. It backs unit
// tests and key-less local development; durability comes from postgres.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agrinova/agrinova/internal/ledger"
)

type txKeyType struct{}

var txKey txKeyType

// idemKey scopes idempotency keys per account
type idemKey struct {
	accountID uuid.UUID
	key       string
}

// txState stages writes until CommitTx. Reads inside the transaction see
// staged state layered over the committed store.
type txState struct {
	createdAccounts map[uuid.UUID]*ledger.Account
	balanceUpdates  map[uuid.UUID]int64
	stagedEntries   []*ledger.Entry
	lockedVersions  map[uuid.UUID]uint64
}

func newTxState() *txState {
	return &txState{
		createdAccounts: make(map[uuid.UUID]*ledger.Account),
		balanceUpdates:  make(map[uuid.UUID]int64),
		lockedVersions:  make(map[uuid.UUID]uint64),
	}
}

// LedgerRepo is a transactional in-memory ledger.Repository. Writes inside
// BeginTx/CommitTx are staged per-context and applied atomically under the
// store lock; a version check on commit turns lost races into ErrConflict.
type LedgerRepo struct {
	mu         sync.RWMutex
	accounts   map[uuid.UUID]*ledger.Account
	versions   map[uuid.UUID]uint64
	entries    map[uuid.UUID]*ledger.Entry
	order      []uuid.UUID
	byIdemKey  map[idemKey]uuid.UUID
	byReversal map[uuid.UUID]uuid.UUID
}

// NewLedgerRepo creates an empty in-memory ledger store
func NewLedgerRepo() *LedgerRepo {
	return &LedgerRepo{
		accounts:   make(map[uuid.UUID]*ledger.Account),
		versions:   make(map[uuid.UUID]uint64),
		entries:    make(map[uuid.UUID]*ledger.Entry),
		byIdemKey:  make(map[idemKey]uuid.UUID),
		byReversal: make(map[uuid.UUID]uuid.UUID),
	}
}

func (r *LedgerRepo) getTx(ctx context.Context) *txState {
	tx, _ := ctx.Value(txKey).(*txState)
	return tx
}

// BeginTx returns a derived context carrying a fresh staging area
func (r *LedgerRepo) BeginTx(ctx context.Context) (context.Context, error) {
	if r.getTx(ctx) != nil {
		return ctx, errors.New("transaction already in progress")
	}
	return context.WithValue(ctx, txKey, newTxState()), nil
}

// CommitTx applies the staged writes atomically. Accounts locked during the
// transaction are version-checked; any interleaved committed write surfaces
// as ErrConflict and nothing is applied.
func (r *LedgerRepo) CommitTx(ctx context.Context) error {
	tx := r.getTx(ctx)
	if tx == nil {
		return errors.New("no transaction in progress")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, version := range tx.lockedVersions {
		if r.versions[id] != version {
			return ledger.ErrConflict
		}
	}
	for _, entry := range tx.stagedEntries {
		if entry.IdempotencyKey != nil {
			if _, exists := r.byIdemKey[idemKey{entry.AccountID, *entry.IdempotencyKey}]; exists {
				return ledger.ErrDuplicateEntry
			}
		}
		if entry.ReversalOf != nil {
			if _, exists := r.byReversal[*entry.ReversalOf]; exists {
				return ledger.ErrDuplicateEntry
			}
		}
		if _, exists := r.entries[entry.ID]; exists {
			return ledger.ErrDuplicateEntry
		}
	}

	for id, account := range tx.createdAccounts {
		stored := *account
		r.accounts[id] = &stored
	}
	for id, balance := range tx.balanceUpdates {
		account, exists := r.accounts[id]
		if !exists {
			return ledger.ErrAccountNotFound
		}
		account.Balance = balance
		account.UpdatedAt = time.Now().UTC()
		r.versions[id]++
	}
	for _, entry := range tx.stagedEntries {
		stored := *entry
		r.entries[stored.ID] = &stored
		r.order = append(r.order, stored.ID)
		if stored.IdempotencyKey != nil {
			r.byIdemKey[idemKey{stored.AccountID, *stored.IdempotencyKey}] = stored.ID
		}
		if stored.ReversalOf != nil {
			r.byReversal[*stored.ReversalOf] = stored.ID
		}
	}

	return nil
}

// RollbackTx discards the staged writes
func (r *LedgerRepo) RollbackTx(ctx context.Context) error {
	if r.getTx(ctx) == nil {
		return errors.New("no transaction in progress")
	}
	return nil
}

// CreateAccount registers a new account with a zero balance
func (r *LedgerRepo) CreateAccount(ctx context.Context, account *ledger.Account) error {
	if tx := r.getTx(ctx); tx != nil {
		stored := *account
		tx.createdAccounts[account.ID] = &stored
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.ID]; exists {
		return ledger.ErrConflict
	}
	stored := *account
	r.accounts[account.ID] = &stored
	return nil
}

// GetAccount returns a snapshot of the account
func (r *LedgerRepo) GetAccount(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	tx := r.getTx(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.accountLocked(tx, id)
}

// GetAccountForUpdate records the account's version so CommitTx can detect
// interleaved writers. Requires an open transaction.
func (r *LedgerRepo) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	tx := r.getTx(ctx)
	if tx == nil {
		return nil, errors.New("GetAccountForUpdate requires a transaction")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	account, err := r.accountLocked(tx, id)
	if err != nil {
		return nil, err
	}
	tx.lockedVersions[id] = r.versions[id]
	return account, nil
}

func (r *LedgerRepo) accountLocked(tx *txState, id uuid.UUID) (*ledger.Account, error) {
	if tx != nil {
		if account, exists := tx.createdAccounts[id]; exists {
			snapshot := *account
			if balance, staged := tx.balanceUpdates[id]; staged {
				snapshot.Balance = balance
			}
			return &snapshot, nil
		}
	}

	account, exists := r.accounts[id]
	if !exists {
		return nil, ledger.ErrAccountNotFound
	}
	snapshot := *account
	if tx != nil {
		if balance, staged := tx.balanceUpdates[id]; staged {
			snapshot.Balance = balance
		}
	}
	return &snapshot, nil
}

// UpdateAccountBalance stages (inside a transaction) or applies the new balance
func (r *LedgerRepo) UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance int64) error {
	if tx := r.getTx(ctx); tx != nil {
		tx.balanceUpdates[id] = balance
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	account, exists := r.accounts[id]
	if !exists {
		return ledger.ErrAccountNotFound
	}
	account.Balance = balance
	account.UpdatedAt = time.Now().UTC()
	r.versions[id]++
	return nil
}

// CreateEntry stages (inside a transaction) or appends a new entry.
// Idempotency-key and reversal collisions surface as ErrDuplicateEntry.
func (r *LedgerRepo) CreateEntry(ctx context.Context, entry *ledger.Entry) error {
	if tx := r.getTx(ctx); tx != nil {
		// Early duplicate check against committed state; CommitTx re-checks
		// under the store lock.
		r.mu.RLock()
		err := r.checkDuplicateLocked(entry)
		r.mu.RUnlock()
		if err != nil {
			return err
		}

		stored := *entry
		tx.stagedEntries = append(tx.stagedEntries, &stored)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkDuplicateLocked(entry); err != nil {
		return err
	}

	stored := *entry
	r.entries[stored.ID] = &stored
	r.order = append(r.order, stored.ID)
	if stored.IdempotencyKey != nil {
		r.byIdemKey[idemKey{stored.AccountID, *stored.IdempotencyKey}] = stored.ID
	}
	if stored.ReversalOf != nil {
		r.byReversal[*stored.ReversalOf] = stored.ID
	}
	return nil
}

func (r *LedgerRepo) checkDuplicateLocked(entry *ledger.Entry) error {
	if _, exists := r.entries[entry.ID]; exists {
		return ledger.ErrDuplicateEntry
	}
	if entry.IdempotencyKey != nil {
		if _, exists := r.byIdemKey[idemKey{entry.AccountID, *entry.IdempotencyKey}]; exists {
			return ledger.ErrDuplicateEntry
		}
	}
	if entry.ReversalOf != nil {
		if _, exists := r.byReversal[*entry.ReversalOf]; exists {
			return ledger.ErrDuplicateEntry
		}
	}
	return nil
}

// GetEntry returns a snapshot of the entry
func (r *LedgerRepo) GetEntry(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[id]
	if !exists {
		return nil, ledger.ErrEntryNotFound
	}
	snapshot := *entry
	return &snapshot, nil
}

// GetEntryByIdempotencyKey returns the entry recorded under the key, if any
func (r *LedgerRepo) GetEntryByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*ledger.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byIdemKey[idemKey{accountID, key}]
	if !exists {
		return nil, ledger.ErrEntryNotFound
	}
	snapshot := *r.entries[id]
	return &snapshot, nil
}

// GetReversal returns the compensating entry for the original, if any
func (r *LedgerRepo) GetReversal(ctx context.Context, originalID uuid.UUID) (*ledger.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byReversal[originalID]
	if !exists {
		return nil, ledger.ErrEntryNotFound
	}
	snapshot := *r.entries[id]
	return &snapshot, nil
}

// ListEntries returns the account's visible entries newest-first. Pending
// and failed entries never appear in listings.
func (r *LedgerRepo) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]*ledger.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*ledger.Entry, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		entry := r.entries[r.order[i]]
		if !r.matches(entry, filter) {
			continue
		}
		snapshot := *entry
		matched = append(matched, &snapshot)
	}

	// Newest first; reverse insertion order breaks creation-time ties
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*ledger.Entry{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (r *LedgerRepo) matches(entry *ledger.Entry, filter ledger.EntryFilter) bool {
	if entry.AccountID != filter.AccountID {
		return false
	}
	if entry.Status != ledger.StatusCompleted && entry.Status != ledger.StatusReversed {
		return false
	}
	if filter.From != nil && entry.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && entry.CreatedAt.After(*filter.To) {
		return false
	}
	if filter.Kind != nil && entry.Kind != *filter.Kind {
		return false
	}
	return true
}

// SumEntryEffects replays every entry for the account and returns the
// implied balance
func (r *LedgerRepo) SumEntryEffects(ctx context.Context, accountID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sum int64
	for _, entry := range r.entries {
		if entry.AccountID == accountID {
			sum += entry.EffectiveDelta()
		}
	}
	return sum, nil
}
