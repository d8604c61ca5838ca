package batches

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/aristath/treasury/internal/disbursement"
	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/events"
	"github.com/aristath/treasury/internal/metrics"
)

type fakeLedger struct {
	available map[domain.Category]int64
	reserved  map[domain.Category]int64
	spent     map[domain.Category]int64
}

func newFakeLedger(available int64) *fakeLedger {
	return &fakeLedger{
		available: map[domain.Category]int64{domain.CategoryMarketing: available},
		reserved:  map[domain.Category]int64{},
		spent:     map[domain.Category]int64{},
	}
}

func (l *fakeLedger) HasSufficientFunds(c domain.Category, amount int64) bool {
	return l.available[c] >= amount
}

func (l *fakeLedger) Reserve(c domain.Category, amount int64) error {
	if l.available[c] < amount {
		return domain.ErrInsufficientFunds
	}
	l.available[c] -= amount
	l.reserved[c] += amount
	return nil
}

func (l *fakeLedger) Release(c domain.Category, amount int64) error {
	if l.reserved[c] < amount {
		return domain.ErrInsufficientReservation
	}
	l.reserved[c] -= amount
	l.available[c] += amount
	return nil
}

func (l *fakeLedger) Spend(c domain.Category, amount int64) error {
	if l.reserved[c] < amount {
		return domain.ErrInsufficientReservation
	}
	l.reserved[c] -= amount
	l.spent[c] += amount
	return nil
}

type fakeRecorder struct {
	legs []int64
}

func (r *fakeRecorder) RecordDistribution(recipient string, amount int64, category domain.Category, kind domain.TransactionKind) (int64, error) {
	r.legs = append(r.legs, amount)
	return 0, nil
}

type fakeGate struct {
	err error
}

func (g *fakeGate) Check() error { return g.err }

type batchFixture struct {
	svc      *Service
	ledger   *fakeLedger
	recorder *fakeRecorder
	gate     *fakeGate
	sink     *disbursement.RecordingSink
}

func setupBatches(t *testing.T) *batchFixture {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, InitSchema(db))

	log := zerolog.Nop()
	m, _ := metrics.NewRegistry()

	f := &batchFixture{
		ledger:   newFakeLedger(100000),
		recorder: &fakeRecorder{},
		gate:     &fakeGate{},
		sink:     disbursement.NewRecordingSink(),
	}
	f.svc = NewService(NewRepository(db, log), f.ledger, f.recorder, f.gate,
		f.sink, events.NewManager(log), m, log)
	return f
}

func TestProposeBatchReservesTotal(t *testing.T) {
	f := setupBatches(t)

	b, err := f.svc.Propose(
		[]string{"vendor-1", "vendor-2", "vendor-3"},
		[]int64{1000, 2000, 3000},
		domain.CategoryMarketing, "sponsorships")
	require.NoError(t, err)

	assert.Equal(t, int64(6000), b.TotalAmount)
	assert.False(t, b.Executed)
	assert.Equal(t, int64(6000), f.ledger.reserved[domain.CategoryMarketing])
	assert.Equal(t, int64(94000), f.ledger.available[domain.CategoryMarketing])
}

func TestProposeBatchValidation(t *testing.T) {
	f := setupBatches(t)

	_, err := f.svc.Propose(nil, nil, domain.CategoryMarketing, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRecipient)

	_, err = f.svc.Propose([]string{"a", "b"}, []int64{100}, domain.CategoryMarketing, "")
	assert.ErrorIs(t, err, domain.ErrArrayLengthMismatch)

	_, err = f.svc.Propose([]string{"a", ""}, []int64{100, 200}, domain.CategoryMarketing, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRecipient)

	_, err = f.svc.Propose([]string{"a", "b"}, []int64{100, 0}, domain.CategoryMarketing, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Propose([]string{"a"}, []int64{200000}, domain.CategoryMarketing, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// No partial reservations from rejected proposals.
	assert.Equal(t, int64(0), f.ledger.reserved[domain.CategoryMarketing])
}

func TestExecuteBatchPaysEveryone(t *testing.T) {
	f := setupBatches(t)

	b, err := f.svc.Propose(
		[]string{"vendor-1", "vendor-2"},
		[]int64{1500, 2500},
		domain.CategoryMarketing, "")
	require.NoError(t, err)

	got, err := f.svc.Execute(context.Background(), b.ID)
	require.NoError(t, err)
	assert.True(t, got.Executed)
	assert.Equal(t, 2, f.sink.Count())
	assert.Equal(t, int64(4000), f.sink.Total())
	assert.Equal(t, []string{"batch:" + b.ID}, f.sink.Refs)
	assert.Equal(t, int64(4000), f.ledger.spent[domain.CategoryMarketing])
	assert.Equal(t, int64(0), f.ledger.reserved[domain.CategoryMarketing])
	assert.Len(t, f.recorder.legs, 2)
}

func TestExecuteBatchIsAtomicOnFailure(t *testing.T) {
	f := setupBatches(t)
	f.sink.Err = domain.ErrDisbursementFailed

	b, err := f.svc.Propose(
		[]string{"vendor-1", "vendor-2"},
		[]int64{1500, 2500},
		domain.CategoryMarketing, "")
	require.NoError(t, err)

	_, err = f.svc.Execute(context.Background(), b.ID)
	assert.ErrorIs(t, err, domain.ErrDisbursementFailed)

	// Nobody was paid and nothing settled.
	assert.Equal(t, 0, f.sink.Count())
	got, err := f.svc.Get(b.ID)
	require.NoError(t, err)
	assert.False(t, got.Executed)
	assert.Equal(t, int64(4000), f.ledger.reserved[domain.CategoryMarketing])
	assert.Equal(t, int64(0), f.ledger.spent[domain.CategoryMarketing])
	assert.Empty(t, f.recorder.legs)

	// Retry succeeds once the rail recovers.
	f.sink.Err = nil
	got, err = f.svc.Execute(context.Background(), b.ID)
	require.NoError(t, err)
	assert.True(t, got.Executed)
}

func TestExecuteBatchOnlyOnce(t *testing.T) {
	f := setupBatches(t)

	b, err := f.svc.Propose([]string{"vendor-1"}, []int64{1000}, domain.CategoryMarketing, "")
	require.NoError(t, err)

	_, err = f.svc.Execute(context.Background(), b.ID)
	require.NoError(t, err)

	_, err = f.svc.Execute(context.Background(), b.ID)
	assert.ErrorIs(t, err, domain.ErrBatchExecuted)
	assert.Equal(t, 1, f.sink.Count())
}

func TestCancelBatchReleasesReservation(t *testing.T) {
	f := setupBatches(t)

	b, err := f.svc.Propose([]string{"vendor-1"}, []int64{1000}, domain.CategoryMarketing, "")
	require.NoError(t, err)

	got, err := f.svc.Cancel(b.ID)
	require.NoError(t, err)
	assert.True(t, got.Cancelled)
	assert.Equal(t, int64(100000), f.ledger.available[domain.CategoryMarketing])

	_, err = f.svc.Execute(context.Background(), b.ID)
	assert.ErrorIs(t, err, domain.ErrBatchExecuted)
}

func TestExecuteUnknownBatch(t *testing.T) {
	f := setupBatches(t)

	_, err := f.svc.Execute(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, domain.ErrBatchNotFound)
}

func TestBatchGatedWhilePaused(t *testing.T) {
	f := setupBatches(t)

	b, err := f.svc.Propose([]string{"vendor-1"}, []int64{1000}, domain.CategoryMarketing, "")
	require.NoError(t, err)

	f.gate.err = domain.ErrPaused
	_, err = f.svc.Execute(context.Background(), b.ID)
	assert.ErrorIs(t, err, domain.ErrPaused)
	_, err = f.svc.Cancel(b.ID)
	assert.ErrorIs(t, err, domain.ErrPaused)
	_, err = f.svc.Propose([]string{"vendor-2"}, []int64{500}, domain.CategoryMarketing, "")
	assert.ErrorIs(t, err, domain.ErrPaused)
}
