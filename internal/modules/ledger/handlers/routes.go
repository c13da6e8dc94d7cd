package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all cash transaction routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/accounts/{accountID}/transactions", h.HandleCreateTransaction)
	r.Get("/accounts/{accountID}/transactions", h.HandleListTransactions)
	r.Put("/accounts/{accountID}/transactions/{id}", h.HandleUpdateTransaction)
	r.Delete("/accounts/{accountID}/transactions/{id}", h.HandleDeleteTransaction)
	r.Get("/accounts/{accountID}/balances", h.HandleGetBalances)
}
