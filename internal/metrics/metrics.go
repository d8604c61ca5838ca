// Package metrics exposes Prometheus instrumentation for the treasury engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the treasury engine.
type Registry struct {
	// Fund movement counters, in cents
	DepositsTotal    *prometheus.CounterVec
	DistributedTotal *prometheus.CounterVec
	EmergencyTotal   prometheus.Counter

	// Ledger state gauges, in cents
	CategoryAvailable *prometheus.GaugeVec
	CategoryReserved  *prometheus.GaugeVec
	CategorySpent     *prometheus.GaugeVec
	GlobalBalance     prometheus.Gauge

	// Workflow counters
	ProposalsTotal *prometheus.CounterVec
	BatchesTotal   *prometheus.CounterVec

	// Disbursement sink health
	DisbursementDuration *prometheus.HistogramVec
	DisbursementErrors   prometheus.Counter
	BreakerState         prometheus.Gauge

	// HTTP request metrics
	RequestDuration *prometheus.HistogramVec
}

// NewRegistry creates the metric set and registers it with a fresh Prometheus
// registry. A dedicated registry keeps tests from tripping over duplicate
// registration of the default one.
func NewRegistry() (*Registry, *prometheus.Registry) {
	r := &Registry{
		DepositsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_deposits_cents_total",
				Help: "Total deposited funds in cents by category",
			},
			[]string{"category"},
		),

		DistributedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_distributed_cents_total",
				Help: "Total distributed funds in cents by category and kind",
			},
			[]string{"category", "kind"},
		),

		EmergencyTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "treasury_emergency_withdrawn_cents_total",
				Help: "Total emergency withdrawals in cents",
			},
		),

		CategoryAvailable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "treasury_category_available_cents",
				Help: "Available funds in cents per category",
			},
			[]string{"category"},
		),

		CategoryReserved: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "treasury_category_reserved_cents",
				Help: "Reserved funds in cents per category",
			},
			[]string{"category"},
		),

		CategorySpent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "treasury_category_spent_cents",
				Help: "Spent funds in cents per category",
			},
			[]string{"category"},
		),

		GlobalBalance: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "treasury_global_balance_cents",
				Help: "Global treasury balance in cents",
			},
		),

		ProposalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_withdrawal_proposals_total",
				Help: "Withdrawal proposal lifecycle transitions",
			},
			[]string{"status"},
		),

		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_batch_distributions_total",
				Help: "Batch distribution lifecycle transitions",
			},
			[]string{"status"},
		),

		DisbursementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "treasury_disbursement_duration_seconds",
				Help:    "Duration of disbursement sink calls in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"operation", "result"},
		),

		DisbursementErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "treasury_disbursement_errors_total",
				Help: "Total failed disbursement sink calls",
			},
		),

		BreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "treasury_disbursement_breaker_state",
				Help: "Disbursement circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "treasury_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"method", "route", "status"},
		),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		r.DepositsTotal,
		r.DistributedTotal,
		r.EmergencyTotal,
		r.CategoryAvailable,
		r.CategoryReserved,
		r.CategorySpent,
		r.GlobalBalance,
		r.ProposalsTotal,
		r.BatchesTotal,
		r.DisbursementDuration,
		r.DisbursementErrors,
		r.BreakerState,
		r.RequestDuration,
	)

	return r, reg
}

// Handler returns the HTTP handler serving the given Prometheus registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
