package emergency

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/treasury/internal/disbursement"
	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/events"
	"github.com/aristath/treasury/internal/metrics"
)

type memPauseStore struct {
	paused bool
	err    error
}

func (s *memPauseStore) Paused() (bool, error) { return s.paused, s.err }

func (s *memPauseStore) SetPaused(paused bool) error {
	if s.err != nil {
		return s.err
	}
	s.paused = paused
	return nil
}

type memRecorder struct {
	balance int64
	kinds   []domain.TransactionKind
}

func (r *memRecorder) RecordEmergency(recipient string, amount int64, kind domain.TransactionKind) (int64, error) {
	r.balance -= amount
	r.kinds = append(r.kinds, kind)
	return r.balance, nil
}

func (r *memRecorder) GetBalance() int64 { return r.balance }

func setupController(t *testing.T, balance int64) (*Controller, *memPauseStore, *memRecorder, *disbursement.RecordingSink) {
	t.Helper()

	log := zerolog.Nop()
	m, _ := metrics.NewRegistry()
	store := &memPauseStore{}
	recorder := &memRecorder{balance: balance}
	sink := disbursement.NewRecordingSink()

	c := NewController(store, recorder, sink, events.NewManager(log), m, log)
	require.NoError(t, c.Init())
	return c, store, recorder, sink
}

func TestPauseAndResume(t *testing.T) {
	c, store, _, _ := setupController(t, 0)

	assert.NoError(t, c.Check())
	assert.False(t, c.Paused())

	require.NoError(t, c.Pause("guardian"))
	assert.True(t, c.Paused())
	assert.True(t, store.paused, "pause must be persisted")
	assert.ErrorIs(t, c.Check(), domain.ErrPaused)

	// Idempotent in both directions.
	require.NoError(t, c.Pause("guardian"))
	require.NoError(t, c.Resume("guardian"))
	require.NoError(t, c.Resume("guardian"))
	assert.False(t, c.Paused())
	assert.False(t, store.paused)
	assert.NoError(t, c.Check())
}

func TestInitRestoresPersistedPause(t *testing.T) {
	log := zerolog.Nop()
	m, _ := metrics.NewRegistry()
	store := &memPauseStore{paused: true}

	c := NewController(store, &memRecorder{}, disbursement.NewRecordingSink(), events.NewManager(log), m, log)
	require.NoError(t, c.Init())
	assert.True(t, c.Paused())
	assert.ErrorIs(t, c.Check(), domain.ErrPaused)
}

func TestEmergencyWithdraw(t *testing.T) {
	c, _, recorder, sink := setupController(t, 10000)

	balance, err := c.Withdraw(context.Background(), "safe-wallet", 4000, "exploit response")
	require.NoError(t, err)
	assert.Equal(t, int64(6000), balance)
	assert.Equal(t, 1, sink.Count())
	assert.Equal(t, "emergency:exploit response", sink.Refs[0])
	assert.Equal(t, []domain.TransactionKind{domain.KindEmergencyWithdrawal}, recorder.kinds)
}

func TestEmergencyWithdrawWorksWhilePaused(t *testing.T) {
	c, _, _, sink := setupController(t, 10000)
	require.NoError(t, c.Pause("guardian"))

	_, err := c.Withdraw(context.Background(), "safe-wallet", 1000, "drain")
	require.NoError(t, err)
	assert.Equal(t, 1, sink.Count())
}

func TestEmergencyWithdrawValidation(t *testing.T) {
	c, _, _, sink := setupController(t, 1000)

	_, err := c.Withdraw(context.Background(), "safe-wallet", 0, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = c.Withdraw(context.Background(), "", 100, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRecipient)

	_, err = c.Withdraw(context.Background(), "safe-wallet", 1001, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, 0, sink.Count())
}

func TestEmergencyWithdrawFailedSinkKeepsBalance(t *testing.T) {
	c, _, recorder, sink := setupController(t, 10000)
	sink.Err = domain.ErrDisbursementFailed

	_, err := c.Withdraw(context.Background(), "safe-wallet", 1000, "")
	assert.ErrorIs(t, err, domain.ErrDisbursementFailed)
	assert.Equal(t, int64(10000), recorder.balance)
	assert.Empty(t, recorder.kinds)
}

func TestRecoverySweepsEverything(t *testing.T) {
	c, _, recorder, sink := setupController(t, 12345)

	swept, err := c.Recovery(context.Background(), "guardian")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), swept)
	assert.Equal(t, int64(0), recorder.balance)
	assert.Equal(t, int64(12345), sink.Total())
	assert.Equal(t, "recovery", sink.Refs[0])
	assert.Equal(t, []domain.TransactionKind{domain.KindRecovery}, recorder.kinds)

	// Nothing left to recover.
	_, err = c.Recovery(context.Background(), "guardian")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestRecoveryRequiresPrincipal(t *testing.T) {
	c, _, _, _ := setupController(t, 1000)

	_, err := c.Recovery(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidRecipient)
}
