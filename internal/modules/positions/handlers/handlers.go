// Package handlers provides HTTP handlers for position and trade operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/modules/positions"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles position HTTP requests
type Handler struct {
	service *positions.Service
	log     zerolog.Logger
}

// NewHandler creates a new positions handler
func NewHandler(service *positions.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "positions").Logger(),
	}
}

type assetTransactionRequest struct {
	AssetID      int64            `json:"asset_id"`
	Type         string           `json:"type"`
	Quantity     decimal.Decimal  `json:"quantity"`
	Price        decimal.Decimal  `json:"price"`
	PayCurrency  *string          `json:"pay_currency,omitempty"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate,omitempty"`
	Commission   *decimal.Decimal `json:"commission,omitempty"`
	Date         time.Time        `json:"date"`
}

func (req *assetTransactionRequest) toDomain(accountID int64) *domain.AssetTransaction {
	return &domain.AssetTransaction{
		AccountID:    accountID,
		AssetID:      req.AssetID,
		Type:         domain.AssetTransactionType(req.Type),
		Quantity:     req.Quantity,
		Price:        req.Price,
		PayCurrency:  req.PayCurrency,
		ExchangeRate: req.ExchangeRate,
		Commission:   req.Commission,
		Date:         req.Date,
	}
}

// HandleCreateTransaction handles POST /api/accounts/{accountID}/asset-transactions
func (h *Handler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req assetTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := h.service.AddTransaction(req.toDomain(accountID))
	if err != nil {
		h.writeError(w, err, "Failed to create asset transaction")
		return
	}
	h.writeJSON(w, http.StatusCreated, envelope(assetTransactionJSON(tx)))
}

// HandleTrade handles POST /api/accounts/{accountID}/trades
// The instrument is identified by ticker and exchange code; unknown tickers
// are resolved through the market data gateway.
func (h *Handler) HandleTrade(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req struct {
		Ticker       string           `json:"ticker"`
		Exchange     string           `json:"exchange"`
		Type         string           `json:"type"`
		Quantity     decimal.Decimal  `json:"quantity"`
		Price        decimal.Decimal  `json:"price"`
		PayCurrency  *string          `json:"pay_currency,omitempty"`
		ExchangeRate *decimal.Decimal `json:"exchange_rate,omitempty"`
		Commission   *decimal.Decimal `json:"commission,omitempty"`
		Date         time.Time        `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := h.service.ExecuteTrade(&positions.Trade{
		AccountID:    accountID,
		Ticker:       req.Ticker,
		Exchange:     req.Exchange,
		Type:         domain.AssetTransactionType(req.Type),
		Quantity:     req.Quantity,
		Price:        req.Price,
		PayCurrency:  req.PayCurrency,
		ExchangeRate: req.ExchangeRate,
		Commission:   req.Commission,
		Date:         req.Date,
	})
	if err != nil {
		h.writeError(w, err, "Failed to execute trade")
		return
	}
	h.writeJSON(w, http.StatusCreated, envelope(assetTransactionJSON(tx)))
}

// HandleListTransactions handles GET /api/accounts/{accountID}/asset-transactions
func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	txs, err := h.service.ListTransactions(accountID)
	if err != nil {
		h.writeError(w, err, "Failed to list asset transactions")
		return
	}

	items := make([]map[string]interface{}, 0, len(txs))
	for i := range txs {
		items = append(items, assetTransactionJSON(&txs[i]))
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"transactions": items,
		"count":        len(items),
	}))
}

// HandleUpdateTransaction handles PUT /api/accounts/{accountID}/asset-transactions/{id}
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

	var req assetTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := h.service.ModifyTransaction(txID, req.toDomain(accountID))
	if err != nil {
		h.writeError(w, err, "Failed to update asset transaction")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(assetTransactionJSON(tx)))
}

// HandleDeleteTransaction handles DELETE /api/accounts/{accountID}/asset-transactions/{id}
func (h *Handler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	txID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid transaction id", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteTransaction(txID); err != nil {
		h.writeError(w, err, "Failed to delete asset transaction")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{"deleted": txID}))
}

// HandleGetPositions handles GET /api/accounts/{accountID}/positions
func (h *Handler) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	balances, err := h.service.Balances(accountID)
	if err != nil {
		h.writeError(w, err, "Failed to get positions")
		return
	}

	items := make([]map[string]interface{}, 0, len(balances))
	for _, balance := range balances {
		items = append(items, map[string]interface{}{
			"asset_id":       balance.AssetID,
			"quantity":       balance.Quantity,
			"price":          balance.Price,
			"average_price":  balance.AveragePrice,
			"result_percent": balance.Result,
		})
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"positions": items,
		"count":     len(items),
	}))
}

func assetTransactionJSON(tx *domain.AssetTransaction) map[string]interface{} {
	item := map[string]interface{}{
		"id":       tx.ID,
		"asset_id": tx.AssetID,
		"type":     string(tx.Type),
		"quantity": tx.Quantity,
		"price":    tx.Price,
		"date":     tx.Date.UTC().Format(time.RFC3339),
	}
	if tx.PayCurrency != nil {
		item["pay_currency"] = *tx.PayCurrency
	}
	if tx.ExchangeRate != nil {
		item["exchange_rate"] = *tx.ExchangeRate
	}
	if tx.Commission != nil {
		item["commission"] = *tx.Commission
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
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrAssetNotFound),
		errors.Is(err, domain.ErrTransactionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrUnknownAsset):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
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
