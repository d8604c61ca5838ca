// Package handlers provides HTTP handlers for the withdrawal workflow.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/auth"
	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/modules/withdrawals"
	"github.com/aristath/treasury/internal/server/respond"
)

// Handler provides HTTP handlers for withdrawal endpoints
type Handler struct {
	service *withdrawals.Service
	authz   *auth.Registry
	log     zerolog.Logger
}

// NewHandler creates a new withdrawals handler
func NewHandler(service *withdrawals.Service, authz *auth.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		authz:   authz,
		log:     log.With().Str("handler", "withdrawals").Logger(),
	}
}

// ProposeRequest is the body for POST /api/withdrawals.
type ProposeRequest struct {
	Recipient   string          `json:"recipient"`
	Amount      int64           `json:"amount"`
	Category    domain.Category `json:"category"`
	Description string          `json:"description"`
}

// HandlePropose handles POST /api/withdrawals
func (h *Handler) HandlePropose(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get("X-Principal")
	if err := h.authz.Require(principal, auth.CapPropose); err != nil {
		respond.Error(w, err)
		return
	}

	var req ProposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := h.service.Propose(principal, req.Recipient, req.Amount, req.Category, req.Description)
	if err != nil {
		h.log.Warn().Err(err).Msg("Proposal rejected")
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, p)
}

// HandleApprove handles POST /api/withdrawals/{id}/approve
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get("X-Principal")
	if err := h.authz.Require(principal, auth.CapApprove); err != nil {
		respond.Error(w, err)
		return
	}

	p, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"), principal)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

// HandleExecute handles POST /api/withdrawals/{id}/execute
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if err := h.authz.Require(r.Header.Get("X-Principal"), auth.CapApprove); err != nil {
		respond.Error(w, err)
		return
	}

	p, err := h.service.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

// HandleCancel handles POST /api/withdrawals/{id}/cancel
// Allowed for proposers and managers.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get("X-Principal")
	if !h.authz.Has(principal, auth.CapPropose) && !h.authz.Has(principal, auth.CapManage) {
		respond.ErrorMessage(w, http.StatusForbidden, "cancel requires propose or manage capability")
		return
	}

	p, err := h.service.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

// HandleGet handles GET /api/withdrawals/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

// HandleList handles GET /api/withdrawals?status=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	status := domain.ProposalStatus(r.URL.Query().Get("status"))
	proposals, err := h.service.List(status)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(proposals),
		"proposals": proposals,
	})
}

// RegisterRoutes registers withdrawal routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/withdrawals", func(r chi.Router) {
		r.Post("/", h.HandlePropose)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Post("/{id}/approve", h.HandleApprove)
		r.Post("/{id}/execute", h.HandleExecute)
		r.Post("/{id}/cancel", h.HandleCancel)
	})
}
