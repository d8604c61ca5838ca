// Package handlers provides HTTP handlers for governance settings.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/auth"
	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/modules/settings"
)

// Handler provides HTTP handlers for settings endpoints
type Handler struct {
	service *settings.Service
	authz   *auth.Registry
	log     zerolog.Logger
}

// NewHandler creates a new settings handler
func NewHandler(service *settings.Service, authz *auth.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		authz:   authz,
		log:     log.With().Str("handler", "settings").Logger(),
	}
}

// HandleGetAll handles GET /api/settings
func (h *Handler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get all settings")
		h.respondError(w, http.StatusInternalServerError, "Failed to get settings")
		return
	}
	h.respondJSON(w, http.StatusOK, all)
}

// SettingUpdate is the request body for PUT /api/settings/{key}.
type SettingUpdate struct {
	Value int64 `json:"value"`
}

// HandleUpdate handles PUT /api/settings/{key}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get("X-Principal")
	if err := h.authz.Require(principal, auth.CapAdmin); err != nil {
		h.respondError(w, http.StatusForbidden, err.Error())
		return
	}

	key := chi.URLParam(r, "key")
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "Key is required")
		return
	}

	var update SettingUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.Update(key, update.Value); err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("key", key).Msg("Failed to update setting")
		h.respondError(w, http.StatusInternalServerError, "Failed to update setting")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"key":     key,
		"value":   update.Value,
		"updated": true,
	})
}

// RegisterRoutes registers settings routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.HandleGetAll)
		r.Put("/{key}", h.HandleUpdate)
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   true,
		"message": message,
	})
}
