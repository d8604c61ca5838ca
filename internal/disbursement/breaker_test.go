package disbursement

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/metrics"
)

func newBreakerFixture(t *testing.T) (*BreakerSink, *RecordingSink) {
	t.Helper()
	m, _ := metrics.NewRegistry()
	inner := NewRecordingSink()
	return NewBreakerSink(inner, m, zerolog.Nop()), inner
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	sink, inner := newBreakerFixture(t)

	require.NoError(t, sink.Disburse(context.Background(), "vendor-1", 1000, "withdrawal:abc"))
	assert.Equal(t, 1, inner.Count())
	assert.Equal(t, int64(1000), inner.Total())

	require.NoError(t, sink.DisburseBatch(context.Background(), []domain.Payment{
		{Recipient: "vendor-2", Amount: 500},
		{Recipient: "vendor-3", Amount: 700},
	}, "batch:def"))
	assert.Equal(t, 3, inner.Count())
}

func TestBreakerWrapsInnerErrors(t *testing.T) {
	sink, inner := newBreakerFixture(t)
	inner.Err = errors.New("rail timeout")

	err := sink.Disburse(context.Background(), "vendor-1", 1000, "withdrawal:abc")
	assert.ErrorIs(t, err, domain.ErrDisbursementFailed)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	sink, inner := newBreakerFixture(t)
	inner.Err = errors.New("rail down")

	for i := 0; i < 5; i++ {
		err := sink.Disburse(context.Background(), "vendor-1", 100, "withdrawal:abc")
		assert.ErrorIs(t, err, domain.ErrDisbursementFailed)
	}

	// The breaker is now open: the rail recovers but calls still fail fast
	// without reaching it.
	inner.Err = nil
	err := sink.Disburse(context.Background(), "vendor-1", 100, "withdrawal:abc")
	assert.ErrorIs(t, err, domain.ErrDisbursementFailed)
	assert.Equal(t, 0, inner.Count())
}

func TestBreakerStaysClosedOnIntermittentFailures(t *testing.T) {
	sink, inner := newBreakerFixture(t)

	for i := 0; i < 4; i++ {
		inner.Err = errors.New("rail flake")
		_ = sink.Disburse(context.Background(), "vendor-1", 100, "w:1")
		inner.Err = nil
		require.NoError(t, sink.Disburse(context.Background(), "vendor-1", 100, "w:2"))
	}
	assert.Equal(t, 4, inner.Count())
}

func TestBreakerRejectsCancelledContext(t *testing.T) {
	sink, inner := newBreakerFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sink.Disburse(ctx, "vendor-1", 100, "withdrawal:abc")
	assert.ErrorIs(t, err, domain.ErrDisbursementFailed)
	assert.Equal(t, 0, inner.Count())
}

func TestLogSinkValidatesRecipients(t *testing.T) {
	sink := NewLogSink(zerolog.Nop())

	assert.NoError(t, sink.Disburse(context.Background(), "vendor-1", 100, "w:1"))
	assert.ErrorIs(t, sink.Disburse(context.Background(), "", 100, "w:2"), domain.ErrInvalidRecipient)

	err := sink.DisburseBatch(context.Background(), []domain.Payment{
		{Recipient: "vendor-1", Amount: 100},
		{Recipient: "", Amount: 200},
	}, "b:1")
	assert.ErrorIs(t, err, domain.ErrInvalidRecipient)
}
