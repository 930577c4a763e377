//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transactionResponse struct {
	ID             string `json:"id"`
	AccountID      string `json:"accountId"`
	Kind           string `json:"transactionType"`
	Category       string `json:"category"`
	Amount         int64  `json:"amount"`
	DisplayAmount  string `json:"displayAmount"`
	Status         string `json:"status"`
	CommitmentHash string `json:"commitmentHash"`
	Verified       bool   `json:"verified"`
	ReversalOf     string `json:"reversalOf,omitempty"`
}

type balanceResponse struct {
	AccountID      string `json:"accountId"`
	Balance        int64  `json:"balance"`
	DisplayBalance string `json:"displayBalance"`
}

func createTransaction(t *testing.T, router http.Handler, token string, body map[string]interface{}) transactionResponse {
	t.Helper()

	var resp transactionResponse
	rec := doRequest(t, router, http.MethodPost, "/api/v1/transactions", token, body, &resp)
	require.Equal(t, http.StatusCreated, rec.Code, "create failed: %s", rec.Body.String())
	return resp
}

func TestCreateTransaction_IncomeUpdatesBalance(t *testing.T) {
	router := setupTestRouter(t)
	account := registerUser(t, router, "amina@example.com")

	created := createTransaction(t, router, account.Token, map[string]interface{}{
		"transactionType": "income",
		"category":        "sale",
		"amount":          "1500.50",
		"description":     "Maize harvest sale",
		"paymentMethod":   "mobile_money",
	})

	assert.Equal(t, "completed", created.Status)
	assert.Equal(t, int64(150050), created.Amount)
	assert.Equal(t, "1500.50", created.DisplayAmount)
	assert.True(t, created.Verified)
	assert.Regexp(t, "^0x[0-9a-f]{64}$", created.CommitmentHash)

	var balance balanceResponse
	rec := doRequest(t, router, http.MethodGet, "/api/v1/balance", account.Token, nil, &balance)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(150050), balance.Balance)
	assert.Equal(t, "1500.50", balance.DisplayBalance)
}

func TestCreateTransaction_ValidationErrors(t *testing.T) {
	router := setupTestRouter(t)
	account := registerUser(t, router, "amina@example.com")

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing type", map[string]interface{}{"amount": "10.00"}},
		{"unknown type", map[string]interface{}{"transactionType": "donation", "amount": "10.00"}},
		{"zero amount", map[string]interface{}{"transactionType": "income", "amount": "0"}},
		{"negative amount", map[string]interface{}{"transactionType": "income", "amount": "-5.00"}},
		{"malformed amount", map[string]interface{}{"transactionType": "income", "amount": "ten"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/api/v1/transactions", account.Token, tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	// Nothing should have been persisted
	var balance balanceResponse
	doRequest(t, router, http.MethodGet, "/api/v1/balance", account.Token, nil, &balance)
	assert.Equal(t, int64(0), balance.Balance)
}

func TestCreateTransaction_IdempotencyKeyReplay(t *testing.T) {
	router := setupTestRouter(t)
	account := registerUser(t, router, "amina@example.com")

	body := map[string]interface{}{
		"transactionType": "income",
		"category":        "sale",
		"amount":          "500.00",
	}

	headers := map[string]string{"Idempotency-Key": "mobile-retry-42"}

	var first, second transactionResponse
	rec := doRequestWithHeaders(t, router, http.MethodPost, "/api/v1/transactions", account.Token, headers, body, &first)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequestWithHeaders(t, router, http.MethodPost, "/api/v1/transactions", account.Token, headers, body, &second)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, first.ID, second.ID)

	var balance balanceResponse
	doRequest(t, router, http.MethodGet, "/api/v1/balance", account.Token, nil, &balance)
	assert.Equal(t, int64(50000), balance.Balance)
}

func TestListTransactions_FilterByType(t *testing.T) {
	router := setupTestRouter(t)
	account := registerUser(t, router, "amina@example.com")

	createTransaction(t, router, account.Token, map[string]interface{}{
		"transactionType": "income", "category": "sale", "amount": "100.00",
	})
	createTransaction(t, router, account.Token, map[string]interface{}{
		"transactionType": "expense", "category": "seeds", "amount": "40.00",
	})
	createTransaction(t, router, account.Token, map[string]interface{}{
		"transactionType": "expense", "category": "fertilizers", "amount": "25.00",
	})

	var list struct {
		Transactions []transactionResponse `json:"transactions"`
		Page         int                   `json:"page"`
		PageSize     int                   `json:"pageSize"`
	}
	rec := doRequest(t, router, http.MethodGet, "/api/v1/transactions?type=expense", account.Token, nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, list.Transactions, 2)
	for _, tx := range list.Transactions {
		assert.Equal(t, "expense", tx.Kind)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/transactions?type=bogus", account.Token, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTransaction_OwnershipIsEnforced(t *testing.T) {
	router := setupTestRouter(t)
	owner := registerUser(t, router, "amina@example.com")
	intruder := registerUser(t, router, "kwame@example.com")

	created := createTransaction(t, router, owner.Token, map[string]interface{}{
		"transactionType": "income", "category": "sale", "amount": "100.00",
	})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/transactions/"+created.ID, owner.Token, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Someone else's entry reads as missing, not forbidden
	rec = doRequest(t, router, http.MethodGet, "/api/v1/transactions/"+created.ID, intruder.Token, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/transactions/"+created.ID+"/reverse", intruder.Token, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReverseTransaction_FullCycle(t *testing.T) {
	router := setupTestRouter(t)
	account := registerUser(t, router, "amina@example.com")

	created := createTransaction(t, router, account.Token, map[string]interface{}{
		"transactionType": "income", "category": "sale", "amount": "200.00",
	})

	var compensator transactionResponse
	rec := doRequest(t, router, http.MethodPost, "/api/v1/transactions/"+created.ID+"/reverse", account.Token, nil, &compensator)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "reversed", compensator.Status)
	assert.Equal(t, created.ID, compensator.ReversalOf)
	assert.Equal(t, created.Amount, compensator.Amount)

	var balance balanceResponse
	doRequest(t, router, http.MethodGet, "/api/v1/balance", account.Token, nil, &balance)
	assert.Equal(t, int64(0), balance.Balance)

	// A second reversal of the same entry is rejected
	rec = doRequest(t, router, http.MethodPost, "/api/v1/transactions/"+created.ID+"/reverse", account.Token, nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestVerifyTransaction(t *testing.T) {
	router := setupTestRouter(t)
	account := registerUser(t, router, "amina@example.com")

	created := createTransaction(t, router, account.Token, map[string]interface{}{
		"transactionType": "expense", "category": "equipment", "amount": "75.25",
	})

	var result struct {
		Valid          bool   `json:"valid"`
		RecomputedHash string `json:"recomputedHash"`
		SignatureValid bool   `json:"signatureValid"`
	}
	rec := doRequest(t, router, http.MethodGet, "/api/v1/transactions/"+created.ID+"/verify", account.Token, nil, &result)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, result.Valid)
	assert.True(t, result.SignatureValid)
	assert.Equal(t, created.CommitmentHash, result.RecomputedHash)
}

func TestFinancialReport(t *testing.T) {
	router := setupTestRouter(t)
	account := registerUser(t, router, "amina@example.com")

	createTransaction(t, router, account.Token, map[string]interface{}{
		"transactionType": "income", "category": "sale", "amount": "1000.00",
	})
	createTransaction(t, router, account.Token, map[string]interface{}{
		"transactionType": "income", "category": "sale", "amount": "400.00",
	})
	createTransaction(t, router, account.Token, map[string]interface{}{
		"transactionType": "expense", "category": "seeds", "amount": "250.00",
	})

	var report struct {
		TotalIncome        int64            `json:"totalIncome"`
		TotalExpenses      int64            `json:"totalExpenses"`
		Profit             int64            `json:"profit"`
		ExpensesByCategory map[string]int64 `json:"expensesByCategory"`
		TransactionCount   int              `json:"transactionCount"`
	}
	rec := doRequest(t, router, http.MethodGet, "/api/v1/financial-report", account.Token, nil, &report)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(140000), report.TotalIncome)
	assert.Equal(t, int64(25000), report.TotalExpenses)
	assert.Equal(t, int64(115000), report.Profit)
	assert.Equal(t, 3, report.TransactionCount)
	assert.Equal(t, int64(25000), report.ExpensesByCategory["seeds"])
}
