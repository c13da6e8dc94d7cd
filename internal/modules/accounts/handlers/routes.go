package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all account routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/accounts", h.HandleCreate)
	r.Get("/accounts", h.HandleList)
	r.Get("/accounts/{accountID}", h.HandleGet)
	r.Put("/accounts/{accountID}", h.HandleRename)
	r.Delete("/accounts/{accountID}", h.HandleDelete)
	r.Get("/accounts/{accountID}/preferences", h.HandleGetPreferences)
	r.Put("/accounts/{accountID}/preferences", h.HandleUpdatePreferences)
}
