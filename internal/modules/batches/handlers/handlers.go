// Package handlers provides HTTP handlers for batch distributions.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/auth"
	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/modules/batches"
	"github.com/aristath/treasury/internal/server/respond"
)

// Handler provides HTTP handlers for batch endpoints
type Handler struct {
	service *batches.Service
	authz   *auth.Registry
	log     zerolog.Logger
}

// NewHandler creates a new batches handler
func NewHandler(service *batches.Service, authz *auth.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		authz:   authz,
		log:     log.With().Str("handler", "batches").Logger(),
	}
}

// ProposeRequest is the body for POST /api/batches.
type ProposeRequest struct {
	Recipients  []string        `json:"recipients"`
	Amounts     []int64         `json:"amounts"`
	Category    domain.Category `json:"category"`
	Description string          `json:"description"`
}

// HandlePropose handles POST /api/batches
func (h *Handler) HandlePropose(w http.ResponseWriter, r *http.Request) {
	if err := h.authz.Require(r.Header.Get("X-Principal"), auth.CapPropose); err != nil {
		respond.Error(w, err)
		return
	}

	var req ProposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	b, err := h.service.Propose(req.Recipients, req.Amounts, req.Category, req.Description)
	if err != nil {
		h.log.Warn().Err(err).Msg("Batch rejected")
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, b)
}

// HandleExecute handles POST /api/batches/{id}/execute
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if err := h.authz.Require(r.Header.Get("X-Principal"), auth.CapApprove); err != nil {
		respond.Error(w, err)
		return
	}

	b, err := h.service.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, b)
}

// HandleCancel handles POST /api/batches/{id}/cancel
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get("X-Principal")
	if !h.authz.Has(principal, auth.CapPropose) && !h.authz.Has(principal, auth.CapManage) {
		respond.ErrorMessage(w, http.StatusForbidden, "cancel requires propose or manage capability")
		return
	}

	b, err := h.service.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, b)
}

// HandleGet handles GET /api/batches/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, b)
}

// HandleList handles GET /api/batches
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.List()
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(all),
		"batches": all,
	})
}

// RegisterRoutes registers batch routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/batches", func(r chi.Router) {
		r.Post("/", h.HandlePropose)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Post("/{id}/execute", h.HandleExecute)
		r.Post("/{id}/cancel", h.HandleCancel)
	})
}
