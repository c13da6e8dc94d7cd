// Package handlers provides HTTP handlers for broker file imports.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/domain"
	"github.com/jakub-mrow/AMS-backend/internal/modules/importer"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Uploads larger than this are rejected outright.
const maxUploadBytes = 10 << 20

// Handler handles import HTTP requests
type Handler struct {
	service *importer.Service
	log     zerolog.Logger
}

// NewHandler creates a new import handler
func NewHandler(service *importer.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "importer").Logger(),
	}
}

// HandleListFormats handles GET /api/import/formats
func (h *Handler) HandleListFormats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"formats": h.service.Formats(),
	}))
}

// HandleImport handles POST /api/accounts/{accountID}/import/{format}
// The body is the raw broker export; multipart uploads use the "file" field.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return
	}
	format := chi.URLParam(r, "format")

	data, err := h.readUpload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.Import(accountID, format, data)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrIncorrectFormat):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, domain.ErrAccountNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			h.log.Error().Err(err).Msg("Import failed")
			http.Error(w, "Import failed", http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(result))
}

func (h *Handler) readUpload(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)

	contentType := r.Header.Get("Content-Type")
	if len(contentType) >= 19 && contentType[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, errors.New("invalid multipart upload")
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, errors.New("missing file field")
		}
		defer file.Close()
		return io.ReadAll(file)
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if len(data) == 0 {
		return nil, errors.New("empty upload")
	}
	return data, nil
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
