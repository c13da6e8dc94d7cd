// Package handlers provides HTTP handlers for history queries.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/modules/history"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles history HTTP requests
type Handler struct {
	accountRepo *history.AccountRepository
	assetRepo   *history.AssetRepository
	log         zerolog.Logger
}

// NewHandler creates a new history handler
func NewHandler(accountRepo *history.AccountRepository, assetRepo *history.AssetRepository, log zerolog.Logger) *Handler {
	return &Handler{
		accountRepo: accountRepo,
		assetRepo:   assetRepo,
		log:         log.With().Str("handler", "history").Logger(),
	}
}

// HandleAccountHistory handles GET /api/accounts/{accountID}/history
// Optional from/to query parameters bound the day range (inclusive).
func (h *Handler) HandleAccountHistory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	from, to, ok := h.dayRange(w, r)
	if !ok {
		return
	}

	days, err := h.accountRepo.ListByAccount(accountID, from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query account history")
		http.Error(w, "Failed to query account history", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(days))
	for _, day := range days {
		balances := make([]map[string]interface{}, 0, len(day.Balances))
		for _, balance := range day.Balances {
			balances = append(balances, map[string]interface{}{
				"currency": balance.Currency,
				"amount":   balance.Amount,
			})
		}
		items = append(items, map[string]interface{}{
			"date":     domain.FormatDay(day.Date),
			"balances": balances,
		})
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"history": items,
		"count":   len(items),
	}))
}

// HandleAssetHistory handles GET /api/accounts/{accountID}/assets/{assetID}/history
func (h *Handler) HandleAssetHistory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	assetID, err := strconv.ParseInt(chi.URLParam(r, "assetID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid asset id", http.StatusBadRequest)
		return
	}
	from, to, ok := h.dayRange(w, r)
	if !ok {
		return
	}

	days, err := h.assetRepo.ListByAsset(accountID, assetID, from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query asset history")
		http.Error(w, "Failed to query asset history", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(days))
	for _, day := range days {
		items = append(items, map[string]interface{}{
			"date":           domain.FormatDay(day.Date),
			"quantity":       day.Quantity,
			"price":          day.Price,
			"result_percent": day.Result,
		})
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"history": items,
		"count":   len(items),
	}))
}

func (h *Handler) dayRange(w http.ResponseWriter, r *http.Request) (*time.Time, *time.Time, bool) {
	parse := func(name string) (*time.Time, bool) {
		value := r.URL.Query().Get(name)
		if value == "" {
			return nil, true
		}
		day, err := domain.ParseDay(value)
		if err != nil {
			http.Error(w, "Invalid "+name+" date, expected YYYY-MM-DD", http.StatusBadRequest)
			return nil, false
		}
		return &day, true
	}

	from, ok := parse("from")
	if !ok {
		return nil, nil, false
	}
	to, ok := parse("to")
	if !ok {
		return nil, nil, false
	}
	return from, to, true
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

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
