package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all history routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/accounts/{accountID}/history", h.HandleAccountHistory)
	r.Get("/accounts/{accountID}/assets/{assetID}/history", h.HandleAssetHistory)
}
