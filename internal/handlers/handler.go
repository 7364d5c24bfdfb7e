// Package handlers exposes the ledger over HTTP. Request and response
// bodies follow the platform SDK contract, camelCase JSON throughout.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sapliy/ledger-engine/internal/domain"
	"github.com/sapliy/ledger-engine/internal/observability"
)

// Handler serves the ledger HTTP API.
type Handler struct {
	service *domain.LedgerService
	logger  *slog.Logger
}

// NewHandler creates a new Handler backed by the given ledger service.
func NewHandler(service *domain.LedgerService, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type recordTransactionRequest struct {
	AccountID   string `json:"accountId"`
	Amount      int64  `json:"amount"` // In minor units
	Currency    string `json:"currency"`
	Description string `json:"description"`
	ReferenceID string `json:"referenceId"`
}

type transactionResponse struct {
	TransactionID string    `json:"transactionId"`
	AccountID     string    `json:"accountId"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Description   string    `json:"description,omitempty"`
	ReferenceID   string    `json:"referenceId"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

type accountResponse struct {
	AccountID string    `json:"accountId"`
	Balance   int64     `json:"balance"`
	Currency  string    `json:"currency"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type transactionListResponse struct {
	Content []transactionResponse `json:"content"`
}

type verifyAccountResponse struct {
	AccountID           string `json:"accountId"`
	MaterializedBalance int64  `json:"materializedBalance"`
	ReplayedBalance     int64  `json:"replayedBalance"`
	CommittedCount      int    `json:"committedCount"`
	Consistent          bool   `json:"consistent"`
}

// RecordTransaction handles POST /v1/ledger/transactions.
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req recordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", "Failed to parse request body")
		return
	}

	result, err := h.service.RecordTransaction(r.Context(), domain.RecordRequest{
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		observability.TransactionsRecorded.WithLabelValues(errorStatusLabel(err)).Inc()
		h.logger.Warn("record transaction failed",
			"account_id", req.AccountID, "reference_id", req.ReferenceID, "error", err)
		h.sendDomainError(w, err)
		return
	}

	observability.TransactionLatency.Observe(time.Since(start).Seconds())

	status := http.StatusCreated
	if result.Replayed {
		observability.TransactionsRecorded.WithLabelValues("replayed").Inc()
		w.Header().Set("X-Idempotency-Hit", "true")
		status = http.StatusOK
	} else {
		observability.TransactionsRecorded.WithLabelValues("committed").Inc()
	}

	writeJSON(w, status, toTransactionResponse(result.Transaction))
}

// GetAccount handles GET /v1/ledger/accounts/{accountID}.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{
		AccountID: account.ID,
		Balance:   account.Balance,
		Currency:  account.Currency,
		Version:   account.Version,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	})
}

// ListTransactions handles GET /v1/ledger/accounts/{accountID}/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	transactions, err := h.service.ListTransactions(r.Context(), accountID)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	content := make([]transactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		content = append(content, toTransactionResponse(tx))
	}

	writeJSON(w, http.StatusOK, transactionListResponse{Content: content})
}

// VerifyAccount handles GET /v1/ledger/accounts/{accountID}/verify.
func (h *Handler) VerifyAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	report, err := h.service.VerifyAccount(r.Context(), accountID)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	if !report.Consistent {
		h.logger.Error("account balance drift detected",
			"account_id", report.AccountID,
			"materialized", report.MaterializedBalance,
			"replayed", report.ReplayedBalance)
	}

	writeJSON(w, http.StatusOK, verifyAccountResponse{
		AccountID:           report.AccountID,
		MaterializedBalance: report.MaterializedBalance,
		ReplayedBalance:     report.ReplayedBalance,
		CommittedCount:      report.CommittedCount,
		Consistent:          report.Consistent,
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "ledger-engine",
	})
}

func toTransactionResponse(tx *domain.Transaction) transactionResponse {
	return transactionResponse{
		TransactionID: tx.ID.String(),
		AccountID:     tx.AccountID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Description:   tx.Description,
		ReferenceID:   tx.ReferenceID,
		Status:        string(tx.Status),
		CreatedAt:     tx.CreatedAt,
	}
}

// sendDomainError maps domain errors to HTTP responses.
func (h *Handler) sendDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, domain.ErrUnknownCurrency):
		sendErrorResponse(w, http.StatusBadRequest, "UNKNOWN_CURRENCY", err.Error())
	case errors.Is(err, domain.ErrCurrencyMismatch):
		sendErrorResponse(w, http.StatusBadRequest, "CURRENCY_MISMATCH", err.Error())
	case errors.Is(err, domain.ErrAccountNotFound):
		sendErrorResponse(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrReferenceReuse):
		sendErrorResponse(w, http.StatusConflict, "REFERENCE_REUSED", err.Error())
	case errors.Is(err, domain.ErrTransientConflict):
		w.Header().Set("Retry-After", "1")
		sendErrorResponse(w, http.StatusServiceUnavailable, "TRANSIENT_CONFLICT", err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		sendErrorResponse(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage is temporarily unavailable")
	default:
		h.logger.Error("unhandled error", "error", err)
		sendErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

func errorStatusLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrCurrencyMismatch):
		return "rejected"
	case errors.Is(err, domain.ErrTransientConflict):
		return "conflict"
	default:
		return "error"
	}
}

// sendErrorResponse sends an error response in the expected format
func sendErrorResponse(w http.ResponseWriter, statusCode int, code, description string) {
	errorResp := struct {
		Code        string    `json:"code"`
		Description string    `json:"description"`
		ID          uuid.UUID `json:"id"`
	}{
		Code:        code,
		Description: description,
		ID:          uuid.New(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResp)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}
