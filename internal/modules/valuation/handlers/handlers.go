// Package handlers provides HTTP handlers for valuation and return queries.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/modules/valuation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles valuation HTTP requests
type Handler struct {
	service *valuation.Service
	log     zerolog.Logger
}

// NewHandler creates a new valuation handler
func NewHandler(service *valuation.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "valuation").Logger(),
	}
}

// HandleGetValue handles GET /api/accounts/{accountID}/value
func (h *Handler) HandleGetValue(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	value, err := h.service.AccountValue(accountID)
	if err != nil {
		h.writeError(w, err, "Failed to compute account value")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"value": value,
	}))
}

// HandleRecomputeXIRR handles POST /api/accounts/{accountID}/xirr
// Returns the freshly computed annualized return; null when the cash-flow
// series is degenerate.
func (h *Handler) HandleRecomputeXIRR(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	rate, err := h.service.RecomputeXIRR(accountID)
	if err != nil && !errors.Is(err, domain.ErrReturnDegenerate) {
		h.writeError(w, err, "Failed to compute return")
		return
	}

	data := map[string]interface{}{"xirr": nil}
	if rate != nil {
		data["xirr"] = *rate
	}
	h.writeJSON(w, http.StatusOK, envelope(data))
}

// HandleGetStats handles GET /api/accounts/{accountID}/stats
func (h *Handler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.HistoryStats(accountID)
	if err != nil {
		h.writeError(w, err, "Failed to compute history stats")
		return
	}
	if stats == nil {
		http.Error(w, "Not enough history for statistics", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(stats))
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
	if errors.Is(err, domain.ErrAccountNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.log.Error().Err(err).Msg(msg)
	http.Error(w, msg, http.StatusInternalServerError)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
