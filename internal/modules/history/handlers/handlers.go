// Package handlers provides HTTP handlers for the historical ledger and reports.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/modules/history"
	"github.com/aristath/treasury/internal/server/respond"
)

// Handler provides HTTP handlers for history endpoints
type Handler struct {
	service *history.Service
	log     zerolog.Logger
}

// NewHandler creates a new history handler
func NewHandler(service *history.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "history").Logger(),
	}
}

// HandleGetTransactions handles GET /api/history/transactions?from=&to=
// Bounds are Unix seconds, inclusive; defaults cover all history.
func (h *Handler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	from := time.Unix(0, 0)
	to := time.Now().UTC()

	if v := r.URL.Query().Get("from"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respond.ErrorMessage(w, http.StatusBadRequest, "Invalid 'from' timestamp")
			return
		}
		from = time.Unix(sec, 0)
	}
	if v := r.URL.Query().Get("to"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respond.ErrorMessage(w, http.StatusBadRequest, "Invalid 'to' timestamp")
			return
		}
		to = time.Unix(sec, 0)
	}

	transactions, err := h.service.Query(from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"count":        len(transactions),
		"transactions": transactions,
	})
}

// HandleGetMonthlyReport handles GET /api/history/monthly/{year}/{month}
func (h *Handler) HandleGetMonthlyReport(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		respond.ErrorMessage(w, http.StatusBadRequest, "Invalid year")
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		respond.ErrorMessage(w, http.StatusBadRequest, "Invalid month")
		return
	}

	report, err := h.service.MonthlyReport(year, month)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, report)
}

// HandleGetMetrics handles GET /api/treasury/metrics
func (h *Handler) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.service.GetMetrics())
}

// HandleGetBalance handles GET /api/treasury/balance
func (h *Handler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"balance": h.service.GetBalance(),
	})
}

// RegisterRoutes registers history routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Get("/transactions", h.HandleGetTransactions)
		r.Get("/monthly/{year}/{month}", h.HandleGetMonthlyReport)
	})
}
