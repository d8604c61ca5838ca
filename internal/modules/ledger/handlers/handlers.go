// Package handlers provides HTTP handlers for the category ledger.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/auth"
	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/modules/ledger"
	"github.com/aristath/treasury/internal/server/respond"
)

// Handler provides HTTP handlers for ledger endpoints
type Handler struct {
	service *ledger.Service
	authz   *auth.Registry
	log     zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(service *ledger.Service, authz *auth.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		authz:   authz,
		log:     log.With().Str("handler", "ledger").Logger(),
	}
}

// DepositRequest is the body for POST /api/treasury/deposit. A category
// routes the whole amount into that category instead of the policy split.
type DepositRequest struct {
	Source      string          `json:"source"`
	Amount      int64           `json:"amount"`
	Category    domain.Category `json:"category,omitempty"`
	Description string          `json:"description"`
}

// HandleDeposit handles POST /api/treasury/deposit
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	if err := h.authz.Require(r.Header.Get("X-Principal"), auth.CapDeposit); err != nil {
		respond.Error(w, err)
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Source == "" {
		req.Source = r.Header.Get("X-Principal")
	}

	if req.Category != "" {
		if err := h.service.DepositToCategory(req.Source, req.Amount, req.Category, req.Description); err != nil {
			h.log.Warn().Err(err).Int64("amount", req.Amount).Msg("Deposit rejected")
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, map[string]interface{}{
			"amount":     req.Amount,
			"increments": map[domain.Category]int64{req.Category: req.Amount},
		})
		return
	}

	increments, err := h.service.Deposit(req.Source, req.Amount, req.Description)
	if err != nil {
		h.log.Warn().Err(err).Int64("amount", req.Amount).Msg("Deposit rejected")
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"amount":     req.Amount,
		"increments": increments,
	})
}

// HandleGetAllocations handles GET /api/treasury/allocations
func (h *Handler) HandleGetAllocations(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.service.GetAllocations())
}

// HandleGetAllocation handles GET /api/treasury/allocations/{category}
func (h *Handler) HandleGetAllocation(w http.ResponseWriter, r *http.Request) {
	category := domain.Category(chi.URLParam(r, "category"))
	alloc, err := h.service.GetAllocation(category)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, alloc)
}

// HandleGetPolicy handles GET /api/treasury/policy
func (h *Handler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.service.GetPolicy())
}

// PolicyRequest is the body for PUT /api/treasury/policy.
type PolicyRequest struct {
	Entries []domain.PolicyEntry `json:"entries"`
}

// HandleUpdatePolicy handles PUT /api/treasury/policy
func (h *Handler) HandleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.authz.Require(r.Header.Get("X-Principal"), auth.CapManage); err != nil {
		respond.Error(w, err)
		return
	}

	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.UpdatePolicy(req.Entries); err != nil {
		h.log.Warn().Err(err).Msg("Policy update rejected")
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, h.service.GetPolicy())
}

// MoveRequest is the body for reserve and release calls.
type MoveRequest struct {
	Category domain.Category `json:"category"`
	Amount   int64           `json:"amount"`
}

// HandleReserve handles POST /api/treasury/reserve
func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	h.handleMove(w, r, h.service.Reserve)
}

// HandleRelease handles POST /api/treasury/release
func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	h.handleMove(w, r, h.service.Release)
}

func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request, op func(domain.Category, int64) error) {
	if err := h.authz.Require(r.Header.Get("X-Principal"), auth.CapManage); err != nil {
		respond.Error(w, err)
		return
	}

	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := op(req.Category, req.Amount); err != nil {
		respond.Error(w, err)
		return
	}

	alloc, err := h.service.GetAllocation(req.Category)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, alloc)
}

// RebalanceRequest is the body for POST /api/treasury/rebalance.
type RebalanceRequest struct {
	From   domain.Category `json:"from"`
	To     domain.Category `json:"to"`
	Amount int64           `json:"amount"`
}

// HandleRebalance handles POST /api/treasury/rebalance
func (h *Handler) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	if err := h.authz.Require(r.Header.Get("X-Principal"), auth.CapManage); err != nil {
		respond.Error(w, err)
		return
	}

	var req RebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.Rebalance(req.From, req.To, req.Amount); err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, h.service.GetAllocations())
}

// RegisterRoutes registers ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/deposit", h.HandleDeposit)
	r.Get("/allocations", h.HandleGetAllocations)
	r.Get("/allocations/{category}", h.HandleGetAllocation)
	r.Get("/policy", h.HandleGetPolicy)
	r.Put("/policy", h.HandleUpdatePolicy)
	r.Post("/reserve", h.HandleReserve)
	r.Post("/release", h.HandleRelease)
	r.Post("/rebalance", h.HandleRebalance)
}
