package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all import routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/import/formats", h.HandleListFormats)
	r.Post("/accounts/{accountID}/import/{format}", h.HandleImport)
}
