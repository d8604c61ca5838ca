package disbursement

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/domain"
)

// LogSink is the default sink for dev mode. It records each payment in the
// log and always succeeds, so the engine can run without real payment rails.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("sink", "log").Logger()}
}

// Disburse logs a single payment.
func (s *LogSink) Disburse(ctx context.Context, recipient string, amount int64, reference string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if recipient == "" {
		return fmt.Errorf("%w: empty recipient", domain.ErrInvalidRecipient)
	}
	s.log.Info().
		Str("recipient", recipient).
		Int64("amount", amount).
		Str("reference", reference).
		Msg("Disbursed")
	return nil
}

// DisburseBatch logs a batch of payments. Validation happens before any
// payment is logged so the batch succeeds or fails as a whole.
func (s *LogSink) DisburseBatch(ctx context.Context, payments []domain.Payment, reference string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, p := range payments {
		if p.Recipient == "" {
			return fmt.Errorf("%w: empty recipient in batch", domain.ErrInvalidRecipient)
		}
	}
	for _, p := range payments {
		s.log.Info().
			Str("recipient", p.Recipient).
			Int64("amount", p.Amount).
			Str("reference", reference).
			Msg("Disbursed (batch)")
	}
	return nil
}
