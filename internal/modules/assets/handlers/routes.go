package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all asset and exchange routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/assets", h.HandleList)
	r.Get("/assets/search", h.HandleSearch)
	r.Get("/assets/{id}", h.HandleGet)
	r.Get("/exchanges", h.HandleListExchanges)
	r.Post("/exchanges", h.HandleCreateExchange)
}
