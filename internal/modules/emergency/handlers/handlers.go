// Package handlers provides HTTP handlers for emergency control.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/auth"
	"github.com/aristath/treasury/internal/modules/emergency"
	"github.com/aristath/treasury/internal/server/respond"
)

// Handler provides HTTP handlers for emergency endpoints
type Handler struct {
	controller *emergency.Controller
	authz      *auth.Registry
	log        zerolog.Logger
}

// NewHandler creates a new emergency handler
func NewHandler(controller *emergency.Controller, authz *auth.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		controller: controller,
		authz:      authz,
		log:        log.With().Str("handler", "emergency").Logger(),
	}
}

// HandleStatus handles GET /api/emergency/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"paused": h.controller.Paused(),
	})
}

// HandlePause handles POST /api/emergency/pause
func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get("X-Principal")
	if err := h.authz.Require(principal, auth.CapEmergency); err != nil {
		respond.Error(w, err)
		return
	}

	if err := h.controller.Pause(principal); err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"paused": true})
}

// HandleResume handles POST /api/emergency/resume
func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get("X-Principal")
	if err := h.authz.Require(principal, auth.CapEmergency); err != nil {
		respond.Error(w, err)
		return
	}

	if err := h.controller.Resume(principal); err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"paused": false})
}

// WithdrawRequest is the body for POST /api/emergency/withdraw.
type WithdrawRequest struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

// HandleWithdraw handles POST /api/emergency/withdraw
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get("X-Principal")
	if err := h.authz.Require(principal, auth.CapEmergency); err != nil {
		respond.Error(w, err)
		return
	}

	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	balance, err := h.controller.Withdraw(r.Context(), req.Recipient, req.Amount, req.Reason)
	if err != nil {
		h.log.Warn().Err(err).Msg("Emergency withdrawal rejected")
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"recipient": req.Recipient,
		"amount":    req.Amount,
		"balance":   balance,
	})
}

// HandleRecovery handles POST /api/emergency/recovery
func (h *Handler) HandleRecovery(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get("X-Principal")
	if err := h.authz.Require(principal, auth.CapAdmin); err != nil {
		respond.Error(w, err)
		return
	}

	amount, err := h.controller.Recovery(r.Context(), principal)
	if err != nil {
		h.log.Warn().Err(err).Msg("Recovery rejected")
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"principal": principal,
		"amount":    amount,
	})
}

// RegisterRoutes registers emergency routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/emergency", func(r chi.Router) {
		r.Get("/status", h.HandleStatus)
		r.Post("/pause", h.HandlePause)
		r.Post("/resume", h.HandleResume)
		r.Post("/withdraw", h.HandleWithdraw)
		r.Post("/recovery", h.HandleRecovery)
	})
}
