package ledger

import (
	"time"

	"github.com/google/uuid"
)

// TransactionKind classifies a ledger entry. Direction is derived from the
// kind, never from the sign of the amount.
type TransactionKind string

const (
	KindIncome       TransactionKind = "income"
	KindExpense      TransactionKind = "expense"
	KindBankTransfer TransactionKind = "bank_transfer"
	KindMobileMoney  TransactionKind = "mobile_money"
	KindWallet       TransactionKind = "wallet"
)

// IsValid returns true for a known transaction kind
func (k TransactionKind) IsValid() bool {
	switch k {
	case KindIncome, KindExpense, KindBankTransfer, KindMobileMoney, KindWallet:
		return true
	}
	return false
}

// Direction returns the signed balance effect of the kind: +1 for credit
// kinds, -1 for debit kinds. Transfer kinds record movement through external
// rails and do not touch the running balance.
func (k TransactionKind) Direction() int64 {
	switch k {
	case KindIncome:
		return 1
	case KindExpense:
		return -1
	default:
		return 0
	}
}

// Category classifies what a transaction was for
type Category string

const (
	CategorySeeds       Category = "seeds"
	CategoryFertilizers Category = "fertilizers"
	CategoryPesticides  Category = "pesticides"
	CategoryLabor       Category = "labor"
	CategoryEquipment   Category = "equipment"
	CategorySale        Category = "sale"
	CategoryService     Category = "service"
	CategoryOther       Category = "other"
)

// IsValid returns true for a known category. The empty category is accepted
// on input and normalized to CategoryOther.
func (c Category) IsValid() bool {
	switch c {
	case "", CategorySeeds, CategoryFertilizers, CategoryPesticides, CategoryLabor,
		CategoryEquipment, CategorySale, CategoryService, CategoryOther:
		return true
	}
	return false
}

// Normalize folds the empty category into the designated "other" bucket
func (c Category) Normalize() Category {
	if c == "" {
		return CategoryOther
	}
	return c
}

// PaymentMethod records how money moved
type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "cash"
	PaymentMobileMoney PaymentMethod = "mobile_money"
	PaymentBank        PaymentMethod = "bank"
	PaymentWallet      PaymentMethod = "wallet"
)

// IsValid returns true for a known payment method or the empty string
func (p PaymentMethod) IsValid() bool {
	switch p {
	case "", PaymentCash, PaymentMobileMoney, PaymentBank, PaymentWallet:
		return true
	}
	return false
}

// Status is the lifecycle state of a ledger entry.
//
// pending → completed applies the balance delta exactly once;
// pending → failed never applies it. A completed entry is immutable:
// corrections create a new compensating entry with status reversed that
// references the original and carries the opposite balance effect.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusReversed  Status = "reversed"
)

// Account tracks a user's running wallet balance in minor units.
// Mutated only inside the same unit of work that persists an entry,
// never deleted while entries reference it.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Address   string    `json:"address"` // anchor address assigned at registration
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Entry is one immutable transaction record. Wire-level field names are
// stable for compatibility with existing clients.
type Entry struct {
	ID             uuid.UUID              `json:"id"`
	AccountID      uuid.UUID              `json:"accountId"`
	Kind           TransactionKind        `json:"transactionType"`
	Category       Category               `json:"category"`
	Amount         int64                  `json:"amount"` // positive magnitude, minor units
	Description    string                 `json:"description,omitempty"`
	PaymentMethod  PaymentMethod          `json:"paymentMethod,omitempty"`
	CounterpartyID *uuid.UUID             `json:"counterpartyAccountId,omitempty"`
	Status         Status                 `json:"status"`
	CommitmentHash string                 `json:"commitmentHash"`
	Nonce          string                 `json:"nonce"` // stored so the hash can be recomputed
	Signature      *string                `json:"signature,omitempty"`
	Verified       bool                   `json:"verified"`
	IdempotencyKey *string                `json:"idempotencyKey,omitempty"`
	ReversalOf     *uuid.UUID             `json:"reversalOf,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the entry's structural invariants
func (e *Entry) Validate() error {
	if e.AccountID == uuid.Nil {
		return ErrInvalidAccountID
	}
	if !e.Kind.IsValid() {
		return ErrInvalidKind
	}
	if !e.Category.IsValid() {
		return ErrInvalidCategory
	}
	if !e.PaymentMethod.IsValid() {
		return ErrInvalidPaymentMethod
	}
	if e.Amount <= 0 {
		return ErrInvalidAmount
	}
	switch e.Status {
	case StatusPending, StatusCompleted, StatusFailed, StatusReversed:
	default:
		return ErrInvalidStatus
	}
	return nil
}

// EffectiveDelta returns the entry's signed contribution to the account
// balance. Completed entries contribute direction × amount, reversal
// compensators the opposite, everything else nothing. The replay invariant
// is balance == Σ EffectiveDelta over all persisted entries.
func (e *Entry) EffectiveDelta() int64 {
	switch e.Status {
	case StatusCompleted:
		return e.Kind.Direction() * e.Amount
	case StatusReversed:
		return -e.Kind.Direction() * e.Amount
	default:
		return 0
	}
}

// IsReversal reports whether this entry compensates another one
func (e *Entry) IsReversal() bool {
	return e.ReversalOf != nil
}

// EntryFilter narrows ListEntries queries. Zero-valued fields are ignored.
type EntryFilter struct {
	AccountID uuid.UUID
	From      *time.Time
	To        *time.Time
	Kind      *TransactionKind
	Limit     int
	Offset    int
}

// Report is the aggregate financial view over a time range
type Report struct {
	TotalIncome        int64              `json:"totalIncome"`
	TotalExpenses      int64              `json:"totalExpenses"`
	Profit             int64              `json:"profit"`
	ExpensesByCategory map[Category]int64 `json:"expensesByCategory"`
	TransactionCount   int                `json:"transactionCount"`
}

// VerificationResult is the outcome of re-deriving an entry's commitment
// and independently checking its signature.
type VerificationResult struct {
	Valid          bool   `json:"valid"`
	RecomputedHash string `json:"recomputedHash"`
	SignatureValid bool   `json:"signatureValid"`
}
