package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agrinova/agrinova/internal/anchor"
	apperrors "github.com/agrinova/agrinova/internal/shared/errors"
	"github.com/agrinova/agrinova/pkg/logger"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 25 * time.Millisecond
)

// Service orchestrates the ledger: commitment hashing, optional signing,
// persistence and balance update happen as one operation per entry.
type Service struct {
	repo      Repository
	signer    *anchor.Signer
	publisher EventPublisher
	cache     ReportCache
	log       *logger.Logger

	// Per-account keyed mutexes serialize same-account writers in-process;
	// different accounts never block each other. The storage row lock
	// covers multi-node deployments.
	locksMu      sync.Mutex
	accountLocks map[uuid.UUID]*sync.Mutex

	maxAttempts  int
	retryBackoff time.Duration
}

// Option configures optional service collaborators
type Option func(*Service)

// WithEventPublisher wires a publisher for transaction_completed events
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithReportCache wires a read-side cache for financial reports
func WithReportCache(c ReportCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRetryPolicy overrides the bounded retry budget for conflicting writes
func WithRetryPolicy(maxAttempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			s.retryBackoff = backoff
		}
	}
}

// NewService creates a new ledger service. The signer is injected at
// construction and never read from ambient state; a signer without key
// material puts the ledger in simulated mode.
func NewService(repo Repository, signer *anchor.Signer, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		signer:       signer,
		log:          log.WithField("component", "ledger"),
		accountLocks: make(map[uuid.UUID]*sync.Mutex),
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordParams carries a transaction request into the ledger
type RecordParams struct {
	AccountID      uuid.UUID
	Kind           TransactionKind
	Category       Category
	Amount         int64 // positive magnitude, minor units
	Description    string
	PaymentMethod  PaymentMethod
	CounterpartyID *uuid.UUID
	IdempotencyKey string
	Metadata       map[string]interface{}
}

// RecordTransaction is the only write entry point. It computes the hash
// commitment, optionally signs it, persists the entry and applies the
// balance delta in a single unit of work, and returns the fully populated
// entry. On any reported failure no ledger or balance state changed.
func (s *Service) RecordTransaction(ctx context.Context, p RecordParams) (*Entry, error) {
	entry := &Entry{
		ID:             uuid.New(),
		AccountID:      p.AccountID,
		Kind:           p.Kind,
		Category:       p.Category.Normalize(),
		Amount:         p.Amount,
		Description:    p.Description,
		PaymentMethod:  p.PaymentMethod,
		CounterpartyID: p.CounterpartyID,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
		Metadata:       p.Metadata,
	}
	if p.IdempotencyKey != "" {
		key := p.IdempotencyKey
		entry.IdempotencyKey = &key
	}

	if err := entry.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	if err := s.anchorEntry(entry); err != nil {
		return nil, apperrors.Internal("failed to anchor transaction", err)
	}

	persisted, replayed, err := s.commitEntry(ctx, entry, StatusCompleted)
	if err != nil {
		entry.Status = StatusFailed
		s.log.WithContext(ctx).WithError(err).Error("transaction failed, balance unchanged",
			"entry_id", entry.ID,
			"account_id", entry.AccountID,
			"kind", entry.Kind,
		)
		return entry, err
	}

	if replayed {
		s.log.WithContext(ctx).Info("idempotent replay, returning existing entry",
			"entry_id", persisted.ID,
			"account_id", persisted.AccountID,
		)
		return persisted, nil
	}

	s.afterCommit(ctx, persisted, true)
	return persisted, nil
}

// GetBalance returns the account's current running balance in minor units
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return 0, apperrors.NotFound("account")
		}
		return 0, apperrors.PersistenceFailure("failed to load account", err)
	}
	return account.Balance, nil
}

// GetTransaction retrieves a single ledger entry by ID
func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*Entry, error) {
	entry, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, apperrors.NotFound("transaction")
		}
		return nil, apperrors.PersistenceFailure("failed to load entry", err)
	}
	return entry, nil
}

// ListTransactions lists entries newest-first, optionally narrowed by time
// range and kind. Pending entries are never visible here.
func (s *Service) ListTransactions(ctx context.Context, filter EntryFilter) ([]*Entry, error) {
	entries, err := s.repo.ListEntries(ctx, filter)
	if err != nil {
		return nil, apperrors.PersistenceFailure("failed to list entries", err)
	}
	return entries, nil
}

// GetFinancialReport computes the aggregate income/expense view for the
// account over an optional time range. Reports are derived by re-scanning
// the ledger; the cache only short-circuits repeated reads and is dropped
// on every write.
func (s *Service) GetFinancialReport(ctx context.Context, accountID uuid.UUID, from, to *time.Time) (*Report, error) {
	filter := EntryFilter{AccountID: accountID, From: from, To: to}

	// The version captured on a miss pins the cache write to the ledger
	// state the scan observed. A cache read failure skips caching for this
	// request rather than storing under a version we never saw.
	var version int64
	cacheable := false
	if s.cache != nil {
		report, ver, ok, err := s.cache.GetReport(ctx, accountID, filter)
		switch {
		case err != nil:
			s.log.WithContext(ctx).WithError(err).Warn("report cache read failed", "account_id", accountID)
		case ok:
			return report, nil
		default:
			version = ver
			cacheable = true
		}
	}

	entries, err := s.repo.ListEntries(ctx, filter)
	if err != nil {
		return nil, apperrors.PersistenceFailure("failed to scan entries for report", err)
	}

	report := BuildReport(entries)

	if cacheable {
		if err := s.cache.SetReport(ctx, accountID, filter, report, version); err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("report cache write failed", "account_id", accountID)
		}
	}

	return report, nil
}

// VerifyEntry re-derives the commitment hash from stored fields and
// independently checks the signature against the anchoring public key.
// A mismatching signature is reported in the result, never as an error.
func (s *Service) VerifyEntry(ctx context.Context, entryID uuid.UUID) (*VerificationResult, error) {
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, apperrors.NotFound("transaction")
		}
		return nil, apperrors.PersistenceFailure("failed to load entry", err)
	}

	recomputed, err := anchor.Recompute(entry.AccountID.String(), entry.Amount, string(entry.Kind), entry.CreatedAt, entry.Nonce)
	if err != nil {
		return nil, apperrors.Internal("failed to recompute commitment", err)
	}

	result := &VerificationResult{RecomputedHash: recomputed}
	hashMatches := recomputed == entry.CommitmentHash

	if entry.Signature != nil {
		result.SignatureValid = anchor.Verify(entry.CommitmentHash, *entry.Signature, s.signer.PublicKey())
	}

	// An unsigned entry is valid when its commitment is intact; a signed
	// entry additionally needs its signature to hold.
	result.Valid = hashMatches && (entry.Signature == nil || result.SignatureValid)
	return result, nil
}

// ReverseEntry corrects a completed entry by appending a compensating entry
// with the opposite balance effect. The original row is never mutated; the
// compensator carries status reversed and references the original.
func (s *Service) ReverseEntry(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	original, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, apperrors.NotFound("transaction")
		}
		return nil, apperrors.PersistenceFailure("failed to load entry", err)
	}

	if original.Status != StatusCompleted {
		return nil, apperrors.Validation(ErrEntryNotReversible.Error())
	}

	existing, err := s.repo.GetReversal(ctx, original.ID)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return nil, apperrors.PersistenceFailure("failed to check for existing reversal", err)
	}
	if existing != nil {
		return nil, apperrors.Conflict(ErrAlreadyReversed.Error())
	}

	originalID := original.ID
	compensator := &Entry{
		ID:             uuid.New(),
		AccountID:      original.AccountID,
		Kind:           original.Kind,
		Category:       original.Category,
		Amount:         original.Amount,
		Description:    fmt.Sprintf("Reversal of %s", original.ID),
		PaymentMethod:  original.PaymentMethod,
		CounterpartyID: original.CounterpartyID,
		Status:         StatusPending,
		ReversalOf:     &originalID,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.anchorEntry(compensator); err != nil {
		return nil, apperrors.Internal("failed to anchor reversal", err)
	}

	persisted, _, err := s.commitEntry(ctx, compensator, StatusReversed)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeConflict) {
			return nil, apperrors.Conflict(ErrAlreadyReversed.Error())
		}
		return nil, err
	}

	s.afterCommit(ctx, persisted, false)
	return persisted, nil
}

// ReconcileBalance verifies that the stored balance matches a full replay
// of the account's entries. Any mismatch means the replay invariant broke.
func (s *Service) ReconcileBalance(ctx context.Context, accountID uuid.UUID) error {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}

	implied, err := s.repo.SumEntryEffects(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to replay entries: %w", err)
	}

	if account.Balance != implied {
		return fmt.Errorf("balance mismatch for account %s: stored=%d, replayed=%d",
			accountID, account.Balance, implied)
	}

	return nil
}

// CreateAccount provisions the ledger account for a newly registered user
func (s *Service) CreateAccount(ctx context.Context, id uuid.UUID, address string) (*Account, error) {
	now := time.Now().UTC()
	account := &Account{
		ID:        id,
		Address:   address,
		Balance:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, apperrors.PersistenceFailure("failed to create account", err)
	}
	return account, nil
}

// anchorEntry computes the commitment and attaches a signature when a key
// is configured. A missing key is the degraded-but-valid simulated mode.
func (s *Service) anchorEntry(e *Entry) error {
	commitment, err := anchor.Commit(e.AccountID.String(), e.Amount, string(e.Kind), e.CreatedAt)
	if err != nil {
		return err
	}
	e.CommitmentHash = commitment.Hash
	e.Nonce = commitment.Nonce

	signature, err := s.signer.Sign(commitment.Hash)
	if errors.Is(err, anchor.ErrSigningUnavailable) {
		e.Verified = false
		if e.Metadata == nil {
			e.Metadata = make(map[string]interface{})
		}
		e.Metadata["simulated"] = true
		return nil
	}
	if err != nil {
		return err
	}

	e.Signature = &signature
	e.Verified = anchor.Verify(commitment.Hash, signature, s.signer.PublicKey())
	return nil
}

// commitEntry persists the entry and applies its balance delta atomically,
// retrying lost races within a bounded budget. The bool result reports an
// idempotent replay: the returned entry was already persisted earlier and
// no new delta was applied.
func (s *Service) commitEntry(ctx context.Context, entry *Entry, finalStatus Status) (*Entry, bool, error) {
	lock := s.accountLock(entry.AccountID)
	lock.Lock()
	defer lock.Unlock()

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, false, apperrors.PersistenceFailure("context cancelled during retry", ctx.Err())
			case <-time.After(time.Duration(attempt) * s.retryBackoff):
			}
		}

		persisted, replayed, err := s.tryCommit(ctx, entry, finalStatus)
		if err == nil {
			return persisted, replayed, nil
		}

		if errors.Is(err, ErrConflict) {
			lastErr = err
			s.log.WithContext(ctx).Warn("write conflict, retrying",
				"entry_id", entry.ID,
				"account_id", entry.AccountID,
				"attempt", attempt+1,
			)
			continue
		}

		if errors.Is(err, ErrDuplicateEntry) {
			// Lost the insert race: the same logical transaction is
			// already persisted. Surface it as the idempotent result.
			if entry.IdempotencyKey != nil {
				existing, gerr := s.repo.GetEntryByIdempotencyKey(ctx, entry.AccountID, *entry.IdempotencyKey)
				if gerr == nil {
					return existing, true, nil
				}
			}
			return nil, false, apperrors.Conflict(err.Error())
		}

		return nil, false, err
	}

	return nil, false, apperrors.ConcurrencyConflict("retry budget exhausted, no balance change was applied", lastErr)
}

// tryCommit runs one attempt of the atomic append+delta unit of work
func (s *Service) tryCommit(ctx context.Context, entry *Entry, finalStatus Status) (*Entry, bool, error) {
	txCtx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, false, apperrors.PersistenceFailure("failed to begin transaction", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = s.repo.RollbackTx(txCtx)
		}
	}()

	if entry.IdempotencyKey != nil {
		existing, err := s.repo.GetEntryByIdempotencyKey(txCtx, entry.AccountID, *entry.IdempotencyKey)
		if err != nil && !errors.Is(err, ErrEntryNotFound) {
			return nil, false, apperrors.PersistenceFailure("idempotency lookup failed", err)
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	account, err := s.repo.GetAccountForUpdate(txCtx, entry.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, false, apperrors.NotFound("account")
		}
		if errors.Is(err, ErrConflict) {
			return nil, false, err
		}
		return nil, false, apperrors.PersistenceFailure("failed to lock account", err)
	}

	// Work on a copy so a failed attempt leaves the caller's entry pending
	toPersist := *entry
	toPersist.Status = finalStatus

	if err := s.repo.CreateEntry(txCtx, &toPersist); err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrDuplicateEntry) {
			return nil, false, err
		}
		return nil, false, apperrors.PersistenceFailure("failed to persist entry", err)
	}

	if delta := toPersist.EffectiveDelta(); delta != 0 {
		if err := s.repo.UpdateAccountBalance(txCtx, account.ID, account.Balance+delta); err != nil {
			if errors.Is(err, ErrConflict) {
				return nil, false, err
			}
			return nil, false, apperrors.PersistenceFailure("failed to update balance", err)
		}
	}

	if err := s.repo.CommitTx(txCtx); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, false, err
		}
		return nil, false, apperrors.PersistenceFailure("failed to commit transaction", err)
	}

	committed = true
	return &toPersist, false, nil
}

// afterCommit runs best-effort side effects for a successfully persisted
// entry. Neither a cache nor a publish failure can undo the commit.
func (s *Service) afterCommit(ctx context.Context, entry *Entry, publish bool) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, entry.AccountID); err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("report cache invalidation failed", "account_id", entry.AccountID)
		}
	}

	if publish && s.publisher != nil {
		if err := s.publisher.PublishTransactionCompleted(ctx, entry); err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("event publish failed", "entry_id", entry.ID)
		}
	}
}

// accountLock returns the keyed mutex for an account, creating it on first use
func (s *Service) accountLock(id uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, exists := s.accountLocks[id]
	if !exists {
		lock = &sync.Mutex{}
		s.accountLocks[id] = lock
	}
	return lock
}
