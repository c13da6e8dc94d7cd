package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all position and trade routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/accounts/{accountID}/asset-transactions", h.HandleCreateTransaction)
	r.Get("/accounts/{accountID}/asset-transactions", h.HandleListTransactions)
	r.Put("/accounts/{accountID}/asset-transactions/{id}", h.HandleUpdateTransaction)
	r.Delete("/accounts/{accountID}/asset-transactions/{id}", h.HandleDeleteTransaction)
	r.Post("/accounts/{accountID}/trades", h.HandleTrade)
	r.Get("/accounts/{accountID}/positions", h.HandleGetPositions)
}
