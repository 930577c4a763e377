package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agrinova/agrinova/internal/ledger"
	"github.com/agrinova/agrinova/internal/transport/httpapi/middleware"
	"github.com/agrinova/agrinova/pkg/money"
)

// LedgerServiceInterface defines the ledger operations needed by TransactionHandler
type LedgerServiceInterface interface {
	RecordTransaction(ctx context.Context, p ledger.RecordParams) (*ledger.Entry, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Entry, error)
	ListTransactions(ctx context.Context, filter ledger.EntryFilter) ([]*ledger.Entry, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error)
	GetFinancialReport(ctx context.Context, accountID uuid.UUID, from, to *time.Time) (*ledger.Report, error)
	VerifyEntry(ctx context.Context, entryID uuid.UUID) (*ledger.VerificationResult, error)
	ReverseEntry(ctx context.Context, entryID uuid.UUID) (*ledger.Entry, error)
}

// TransactionHandler handles ledger-related HTTP requests. Every route is
// scoped to the authenticated user's own account.
type TransactionHandler struct {
	ledgerService LedgerServiceInterface
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(ledgerService LedgerServiceInterface) *TransactionHandler {
	return &TransactionHandler{ledgerService: ledgerService}
}

// CreateTransactionRequest represents the transaction creation request.
// Amount is a decimal string ("1500.50"); the API never accepts floats.
type CreateTransactionRequest struct {
	TransactionType string                 `json:"transactionType"`
	Category        string                 `json:"category,omitempty"`
	Amount          string                 `json:"amount"`
	Description     string                 `json:"description,omitempty"`
	PaymentMethod   string                 `json:"paymentMethod,omitempty"`
	CounterpartyID  *string                `json:"counterpartyAccountId,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// TransactionResponse wraps an entry with a formatted display amount
type TransactionResponse struct {
	*ledger.Entry
	DisplayAmount string `json:"displayAmount"`
}

// TransactionListResponse represents a paginated list of transactions
type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Page         int                   `json:"page"`
	PageSize     int                   `json:"pageSize"`
}

// BalanceResponse represents the current account balance
type BalanceResponse struct {
	AccountID      string `json:"accountId"`
	Balance        int64  `json:"balance"`
	DisplayBalance string `json:"displayBalance"`
}

// CreateTransaction handles POST /transactions. An Idempotency-Key header
// makes the request safe to retry: replays return the original entry.
func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TransactionType == "" {
		respondWithError(w, http.StatusBadRequest, "transactionType is required")
		return
	}

	amount, err := money.ToMinorUnits(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid amount format")
		return
	}

	var counterpartyID *uuid.UUID
	if req.CounterpartyID != nil && *req.CounterpartyID != "" {
		id, err := uuid.Parse(*req.CounterpartyID)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid counterparty account ID")
			return
		}
		counterpartyID = &id
	}

	entry, err := h.ledgerService.RecordTransaction(r.Context(), ledger.RecordParams{
		AccountID:      userID,
		Kind:           ledger.TransactionKind(req.TransactionType),
		Category:       ledger.Category(req.Category),
		Amount:         amount,
		Description:    req.Description,
		PaymentMethod:  ledger.PaymentMethod(req.PaymentMethod),
		CounterpartyID: counterpartyID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Metadata:       req.Metadata,
	})
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, toTransactionResponse(entry))
}

// GetTransactions handles GET /transactions
func (h *TransactionHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	query := r.URL.Query()

	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}

	pageSize, _ := strconv.Atoi(query.Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	filter := ledger.EntryFilter{
		AccountID: userID,
		Limit:     pageSize,
		Offset:    (page - 1) * pageSize,
	}

	if kindParam := query.Get("type"); kindParam != "" {
		kind := ledger.TransactionKind(kindParam)
		if !kind.IsValid() {
			respondWithError(w, http.StatusBadRequest, "invalid transaction type")
			return
		}
		filter.Kind = &kind
	}

	from, to, err := parseTimeRange(query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.From, filter.To = from, to

	entries, err := h.ledgerService.ListTransactions(r.Context(), filter)
	if err != nil {
		respondAppError(w, err)
		return
	}

	responses := make([]TransactionResponse, len(entries))
	for i, entry := range entries {
		responses[i] = toTransactionResponse(entry)
	}

	respondWithJSON(w, http.StatusOK, TransactionListResponse{
		Transactions: responses,
		Page:         page,
		PageSize:     pageSize,
	})
}

// GetTransaction handles GET /transactions/{id}
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	_, entry, ok := h.loadOwnedEntry(w, r)
	if !ok {
		return
	}

	respondWithJSON(w, http.StatusOK, toTransactionResponse(entry))
}

// ReverseTransaction handles POST /transactions/{id}/reverse. The original
// entry stays untouched; the response carries the compensating entry.
func (h *TransactionHandler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	_, entry, ok := h.loadOwnedEntry(w, r)
	if !ok {
		return
	}

	compensator, err := h.ledgerService.ReverseEntry(r.Context(), entry.ID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, toTransactionResponse(compensator))
}

// VerifyTransaction handles GET /transactions/{id}/verify
func (h *TransactionHandler) VerifyTransaction(w http.ResponseWriter, r *http.Request) {
	_, entry, ok := h.loadOwnedEntry(w, r)
	if !ok {
		return
	}

	result, err := h.ledgerService.VerifyEntry(r.Context(), entry.ID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// GetBalance handles GET /balance
func (h *TransactionHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	balance, err := h.ledgerService.GetBalance(r.Context(), userID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, BalanceResponse{
		AccountID:      userID.String(),
		Balance:        balance,
		DisplayBalance: money.FromMinorUnits(balance),
	})
}

// GetFinancialReport handles GET /financial-report
func (h *TransactionHandler) GetFinancialReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	from, to, err := parseTimeRange(r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.ledgerService.GetFinancialReport(r.Context(), userID, from, to)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

// loadOwnedEntry parses the URL ID and enforces ownership. Entries that
// exist but belong to someone else read as 404 to prevent ID enumeration.
func (h *TransactionHandler) loadOwnedEntry(w http.ResponseWriter, r *http.Request) (uuid.UUID, *ledger.Entry, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid transaction ID")
		return uuid.Nil, nil, false
	}

	entry, err := h.ledgerService.GetTransaction(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return uuid.Nil, nil, false
	}

	if entry.AccountID != userID {
		respondWithError(w, http.StatusNotFound, "transaction not found")
		return uuid.Nil, nil, false
	}

	return userID, entry, true
}

func parseTimeRange(startDate, endDate string) (*time.Time, *time.Time, error) {
	var from, to *time.Time

	if startDate != "" {
		t, err := time.Parse(time.RFC3339, startDate)
		if err != nil {
			return nil, nil, errInvalidStartDate
		}
		from = &t
	}

	if endDate != "" {
		t, err := time.Parse(time.RFC3339, endDate)
		if err != nil {
			return nil, nil, errInvalidEndDate
		}
		to = &t
	}

	return from, to, nil
}

var (
	errInvalidStartDate = &timeRangeError{"invalid start_date format (use RFC3339)"}
	errInvalidEndDate   = &timeRangeError{"invalid end_date format (use RFC3339)"}
)

type timeRangeError struct{ msg string }

func (e *timeRangeError) Error() string { return e.msg }

func toTransactionResponse(entry *ledger.Entry) TransactionResponse {
	return TransactionResponse{
		Entry:         entry,
		DisplayAmount: money.FromMinorUnits(entry.Amount),
	}
}
