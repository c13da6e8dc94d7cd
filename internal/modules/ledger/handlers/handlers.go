// Package handlers provides HTTP handlers for cash transaction operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/modules/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles cash transaction HTTP requests
type Handler struct {
	service *ledger.Service
	log     zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(service *ledger.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "ledger").Logger(),
	}
}

type transactionRequest struct {
	Type     string          `json:"type"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Date     time.Time       `json:"date"`
}

// HandleCreateTransaction handles POST /api/accounts/{accountID}/transactions
func (h *Handler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := h.service.AddTransaction(&domain.AccountTransaction{
		AccountID: accountID,
		Type:      domain.AccountTransactionType(req.Type),
		Amount:    req.Amount,
		Currency:  req.Currency,
		Date:      req.Date,
	})
	if err != nil {
		h.writeError(w, err, "Failed to create transaction")
		return
	}

	h.writeJSON(w, http.StatusCreated, envelope(transactionJSON(tx)))
}

// HandleListTransactions handles GET /api/accounts/{accountID}/transactions
func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	txs, err := h.service.ListTransactions(accountID)
	if err != nil {
		h.writeError(w, err, "Failed to list transactions")
		return
	}

	items := make([]map[string]interface{}, 0, len(txs))
	for i := range txs {
		items = append(items, transactionJSON(&txs[i]))
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"transactions": items,
		"count":        len(items),
	}))
}

// HandleUpdateTransaction handles PUT /api/accounts/{accountID}/transactions/{id}
func (h *Handler) HandleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	txID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid transaction id", http.StatusBadRequest)
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := h.service.ModifyTransaction(txID, &domain.AccountTransaction{
		AccountID: accountID,
		Type:      domain.AccountTransactionType(req.Type),
		Amount:    req.Amount,
		Currency:  req.Currency,
		Date:      req.Date,
	})
	if err != nil {
		h.writeError(w, err, "Failed to update transaction")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(transactionJSON(tx)))
}

// HandleDeleteTransaction handles DELETE /api/accounts/{accountID}/transactions/{id}
func (h *Handler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	txID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid transaction id", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteTransaction(txID); err != nil {
		h.writeError(w, err, "Failed to delete transaction")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{"deleted": txID}))
}

// HandleGetBalances handles GET /api/accounts/{accountID}/balances
func (h *Handler) HandleGetBalances(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	balances, err := h.service.Balances(accountID)
	if err != nil {
		h.writeError(w, err, "Failed to get balances")
		return
	}

	items := make([]map[string]interface{}, 0, len(balances))
	for _, balance := range balances {
		items = append(items, map[string]interface{}{
			"currency": balance.Currency,
			"amount":   balance.Amount,
		})
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"balances": items,
	}))
}

func transactionJSON(tx *domain.AccountTransaction) map[string]interface{} {
	item := map[string]interface{}{
		"id":       tx.ID,
		"type":     string(tx.Type),
		"amount":   tx.Amount,
		"currency": tx.Currency,
		"date":     tx.Date.UTC().Format(time.RFC3339),
	}
	if tx.CorrelationID != nil {
		item["correlation_id"] = *tx.CorrelationID
	}
	return item
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrTransactionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInsufficientPosition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error().Err(err).Msg(msg)
		http.Error(w, msg, http.StatusBadRequest)
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
