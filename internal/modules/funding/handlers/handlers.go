// Package handlers provides HTTP handlers for external funding pools.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/auth"
	"github.com/aristath/treasury/internal/modules/funding"
	"github.com/aristath/treasury/internal/server/respond"
)

// Handler provides HTTP handlers for pool endpoints
type Handler struct {
	service *funding.Service
	authz   *auth.Registry
	log     zerolog.Logger
}

// NewHandler creates a new funding handler
func NewHandler(service *funding.Service, authz *auth.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		authz:   authz,
		log:     log.With().Str("handler", "funding").Logger(),
	}
}

// HandleList handles GET /api/pools
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	pools, err := h.service.List()
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"count": len(pools),
		"pools": pools,
	})
}

// FundRequest is the body for POST /api/pools/{name}/fund.
type FundRequest struct {
	Amount int64 `json:"amount"`
}

// HandleFund handles POST /api/pools/{name}/fund
func (h *Handler) HandleFund(w http.ResponseWriter, r *http.Request) {
	if err := h.authz.Require(r.Header.Get("X-Principal"), auth.CapManage); err != nil {
		respond.Error(w, err)
		return
	}

	var req FundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	pool, err := h.service.FundPool(r.Context(), chi.URLParam(r, "name"), req.Amount)
	if err != nil {
		h.log.Warn().Err(err).Msg("Pool funding rejected")
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, pool)
}

// RegisterRoutes registers pool routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/pools", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/{name}/fund", h.HandleFund)
	})
}
