// Package handlers provides HTTP handlers for account operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/modules/accounts"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles account HTTP requests
type Handler struct {
	service *accounts.Service
	log     zerolog.Logger
}

// NewHandler creates a new accounts handler
func NewHandler(service *accounts.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "accounts").Logger(),
	}
}

// HandleCreate handles POST /api/accounts
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64  `json:"user_id"`
		Name   string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.service.Create(req.UserID, req.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create account")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusCreated, envelope(accountJSON(account)))
}

// HandleList handles GET /api/accounts?user_id=N
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "user_id parameter is required", http.StatusBadRequest)
		return
	}

	list, err := h.service.List(userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(list))
	for i := range list {
		items = append(items, accountJSON(&list[i]))
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"accounts": items,
		"count":    len(items),
	}))
}

// HandleGet handles GET /api/accounts/{accountID}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	account, err := h.service.Get(id)
	if err != nil {
		h.writeError(w, err, "Failed to get account")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(accountJSON(account)))
}

// HandleRename handles PUT /api/accounts/{accountID}
func (h *Handler) HandleRename(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.service.Rename(id, req.Name)
	if err != nil {
		h.writeError(w, err, "Failed to rename account")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(accountJSON(account)))
}

// HandleDelete handles DELETE /api/accounts/{accountID}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(id); err != nil {
		h.writeError(w, err, "Failed to delete account")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{"deleted": id}))
}

// HandleGetPreferences handles GET /api/accounts/{accountID}/preferences
func (h *Handler) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	prefs, err := h.service.Preferences(id)
	if err != nil {
		h.writeError(w, err, "Failed to get preferences")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"base_currency": prefs.BaseCurrency,
		"tax_currency":  prefs.TaxCurrency,
	}))
}

// HandleUpdatePreferences handles PUT /api/accounts/{accountID}/preferences
func (h *Handler) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var req struct {
		BaseCurrency string `json:"base_currency"`
		TaxCurrency  string `json:"tax_currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	prefs, err := h.service.UpdatePreferences(id, req.BaseCurrency, req.TaxCurrency)
	if err != nil {
		h.writeError(w, err, "Failed to update preferences")
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"base_currency": prefs.BaseCurrency,
		"tax_currency":  prefs.TaxCurrency,
	}))
}

func accountJSON(account *domain.Account) map[string]interface{} {
	item := map[string]interface{}{
		"id":         account.ID,
		"user_id":    account.UserID,
		"name":       account.Name,
		"created_at": account.CreatedAt.UTC().Format(time.RFC3339),
	}
	if account.XIRR != nil {
		item["xirr"] = *account.XIRR
	}
	if account.LastSaveDate != nil {
		item["last_save_date"] = domain.FormatDay(*account.LastSaveDate)
	}
	return item
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
	http.Error(w, msg, http.StatusBadRequest)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
