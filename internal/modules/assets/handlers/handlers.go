// Package handlers provides HTTP handlers for asset and exchange lookups.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/modules/assets"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles asset HTTP requests
type Handler struct {
	service *assets.Service
	log     zerolog.Logger
}

// NewHandler creates a new assets handler
func NewHandler(service *assets.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "assets").Logger(),
	}
}

// HandleSearch handles GET /api/assets/search?query=...
// Proxies the market data gateway's instrument search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		http.Error(w, "query parameter is required", http.StatusBadRequest)
		return
	}

	results, err := h.service.Search(query)
	if err != nil {
		h.log.Error().Err(err).Str("query", query).Msg("Asset search failed")
		if errors.Is(err, domain.ErrExternalDataUnavailable) {
			http.Error(w, "Market data gateway unavailable", http.StatusBadGateway)
			return
		}
		http.Error(w, "Asset search failed", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(results))
	for _, result := range results {
		items = append(items, map[string]interface{}{
			"ticker":   result.Code,
			"exchange": result.Exchange,
			"name":     result.Name,
			"isin":     result.ISIN,
			"currency": result.Currency,
			"type":     result.Type,
		})
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"results": items,
		"count":   len(items),
	}))
}

// HandleList handles GET /api/assets
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list assets")
		http.Error(w, "Failed to list assets", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(list))
	for i := range list {
		items = append(items, assetJSON(&list[i]))
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"assets": items,
		"count":  len(items),
	}))
}

// HandleGet handles GET /api/assets/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid asset id", http.StatusBadRequest)
		return
	}

	asset, err := h.service.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrAssetNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Failed to get asset")
		http.Error(w, "Failed to get asset", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(assetJSON(asset)))
}

// HandleListExchanges handles GET /api/exchanges
func (h *Handler) HandleListExchanges(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Exchanges()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list exchanges")
		http.Error(w, "Failed to list exchanges", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(list))
	for _, exchange := range list {
		items = append(items, map[string]interface{}{
			"id":           exchange.ID,
			"name":         exchange.Name,
			"mic":          exchange.MIC,
			"country":      exchange.Country,
			"code":         exchange.Code,
			"timezone":     exchange.Timezone,
			"opening_hour": exchange.OpeningHour,
			"closing_hour": exchange.ClosingHour,
		})
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"exchanges": items,
		"count":     len(items),
	}))
}

// HandleCreateExchange handles POST /api/exchanges
func (h *Handler) HandleCreateExchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		MIC         string `json:"mic"`
		Country     string `json:"country"`
		Code        string `json:"code"`
		Timezone    string `json:"timezone"`
		OpeningHour string `json:"opening_hour"`
		ClosingHour string `json:"closing_hour"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	exchange := &domain.Exchange{
		Name:        req.Name,
		MIC:         req.MIC,
		Country:     req.Country,
		Code:        req.Code,
		Timezone:    req.Timezone,
		OpeningHour: req.OpeningHour,
		ClosingHour: req.ClosingHour,
	}
	if err := h.service.CreateExchange(exchange); err != nil {
		h.log.Error().Err(err).Msg("Failed to create exchange")
		http.Error(w, "Failed to create exchange", http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusCreated, envelope(map[string]interface{}{
		"id":   exchange.ID,
		"code": exchange.Code,
	}))
}

func assetJSON(asset *domain.Asset) map[string]interface{} {
	return map[string]interface{}{
		"id":          asset.ID,
		"isin":        asset.ISIN,
		"ticker":      asset.Ticker,
		"name":        asset.Name,
		"currency":    asset.Currency,
		"type":        string(asset.Type),
		"exchange_id": asset.ExchangeID,
	}
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
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
