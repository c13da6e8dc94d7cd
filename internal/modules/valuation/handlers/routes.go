package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all valuation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/accounts/{accountID}/value", h.HandleGetValue)
	r.Post("/accounts/{accountID}/xirr", h.HandleRecomputeXIRR)
	r.Get("/accounts/{accountID}/stats", h.HandleGetStats)
}
