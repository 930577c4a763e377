package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTransactionKind_Direction(t *testing.T) {
	tests := []struct {
		kind TransactionKind
		want int64
	}{
		{KindIncome, 1},
		{KindExpense, -1},
		{KindBankTransfer, 0},
		{KindMobileMoney, 0},
		{KindWallet, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Direction())
		})
	}
}

func TestCategory_Normalize(t *testing.T) {
	assert.Equal(t, CategoryOther, Category("").Normalize())
	assert.Equal(t, CategorySeeds, CategorySeeds.Normalize())
}

func TestEntry_Validate(t *testing.T) {
	valid := func() *Entry {
		return &Entry{
			ID:        uuid.New(),
			AccountID: uuid.New(),
			Kind:      KindIncome,
			Category:  CategorySale,
			Amount:    1000,
			Status:    StatusPending,
			CreatedAt: time.Now().UTC(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Entry)
		wantErr error
	}{
		{"valid", func(e *Entry) {}, nil},
		{"missing account", func(e *Entry) { e.AccountID = uuid.Nil }, ErrInvalidAccountID},
		{"unknown kind", func(e *Entry) { e.Kind = "donation" }, ErrInvalidKind},
		{"unknown category", func(e *Entry) { e.Category = "misc" }, ErrInvalidCategory},
		{"empty category ok", func(e *Entry) { e.Category = "" }, nil},
		{"unknown payment method", func(e *Entry) { e.PaymentMethod = "cheque" }, ErrInvalidPaymentMethod},
		{"zero amount", func(e *Entry) { e.Amount = 0 }, ErrInvalidAmount},
		{"negative amount", func(e *Entry) { e.Amount = -500 }, ErrInvalidAmount},
		{"unknown status", func(e *Entry) { e.Status = "archived" }, ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := valid()
			tt.mutate(entry)
			err := entry.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestEntry_EffectiveDelta(t *testing.T) {
	tests := []struct {
		name   string
		kind   TransactionKind
		status Status
		amount int64
		want   int64
	}{
		{"completed income credits", KindIncome, StatusCompleted, 1000, 1000},
		{"completed expense debits", KindExpense, StatusCompleted, 1000, -1000},
		{"completed transfer is neutral", KindBankTransfer, StatusCompleted, 1000, 0},
		{"reversed income debits", KindIncome, StatusReversed, 1000, -1000},
		{"reversed expense credits", KindExpense, StatusReversed, 1000, 1000},
		{"pending is neutral", KindIncome, StatusPending, 1000, 0},
		{"failed is neutral", KindExpense, StatusFailed, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{Kind: tt.kind, Status: tt.status, Amount: tt.amount}
			assert.Equal(t, tt.want, entry.EffectiveDelta())
		})
	}
}
