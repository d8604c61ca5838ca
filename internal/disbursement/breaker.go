// Package disbursement provides outbound payment sinks. The engine never
// moves money itself; it hands validated payments to a DisbursementSink and
// trusts its all-or-nothing contract.
package disbursement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/metrics"
)

// BreakerSink wraps another sink in a circuit breaker. While the breaker is
// open every call fails fast with ErrDisbursementFailed, which the workflows
// surface without touching ledger state.
type BreakerSink struct {
	inner   domain.DisbursementSink
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewBreakerSink wraps inner with a circuit breaker tuned for payment rails:
// trip after 5 consecutive failures, probe again after 30 seconds.
func NewBreakerSink(inner domain.DisbursementSink, m *metrics.Registry, log zerolog.Logger) *BreakerSink {
	s := &BreakerSink{
		inner:   inner,
		metrics: m,
		log:     log.With().Str("service", "disbursement").Logger(),
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "disbursement",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Disbursement breaker state changed")
			if m != nil {
				m.BreakerState.Set(breakerStateValue(to))
			}
		},
	})

	return s
}

func breakerStateValue(st gobreaker.State) float64 {
	switch st {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Disburse sends a single payment through the breaker.
func (s *BreakerSink) Disburse(ctx context.Context, recipient string, amount int64, reference string) error {
	return s.execute(ctx, "disburse", func() error {
		return s.inner.Disburse(ctx, recipient, amount, reference)
	})
}

// DisburseBatch sends a batch through the breaker. Atomicity is the inner
// sink's contract; the breaker only adds fail-fast behavior.
func (s *BreakerSink) DisburseBatch(ctx context.Context, payments []domain.Payment, reference string) error {
	return s.execute(ctx, "disburse_batch", func() error {
		return s.inner.DisburseBatch(ctx, payments, reference)
	})
}

func (s *BreakerSink) execute(ctx context.Context, operation string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDisbursementFailed, err)
	}

	start := time.Now()
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	s.observe(operation, start, err)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: circuit open", domain.ErrDisbursementFailed)
		}
		if errors.Is(err, domain.ErrDisbursementFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrDisbursementFailed, err)
	}
	return nil
}

func (s *BreakerSink) observe(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		s.metrics.DisbursementErrors.Inc()
	}
	s.metrics.DisbursementDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}
