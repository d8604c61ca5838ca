package funding

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

func (l *fakeLedger) Reserve(c domain.Category, amount int64) error {
	if l.available[c] < amount {
		return domain.ErrInsufficientFunds
	}
	l.available[c] -= amount
	l.reserved[c] += amount
	return nil
}

func (l *fakeLedger) Release(c domain.Category, amount int64) error {
	l.reserved[c] -= amount
	l.available[c] += amount
	return nil
}

func (l *fakeLedger) Spend(c domain.Category, amount int64) error {
	l.reserved[c] -= amount
	l.spent[c] += amount
	return nil
}

type fakeRecorder struct {
	kinds []domain.TransactionKind
}

func (r *fakeRecorder) RecordDistribution(recipient string, amount int64, category domain.Category, kind domain.TransactionKind) (int64, error) {
	r.kinds = append(r.kinds, kind)
	return 0, nil
}

type fakeGate struct {
	err error
}

func (g *fakeGate) Check() error { return g.err }

func setupFunding(t *testing.T) (*Service, *fakeLedger, *fakeGate, *disbursement.RecordingSink) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, InitSchema(db))

	log := zerolog.Nop()
	m, _ := metrics.NewRegistry()
	ledger := &fakeLedger{
		available: map[domain.Category]int64{domain.CategoryBuyback: 50000},
		reserved:  map[domain.Category]int64{},
		spent:     map[domain.Category]int64{},
	}
	gate := &fakeGate{}
	sink := disbursement.NewRecordingSink()

	svc := NewService(NewRepository(db, log), ledger, &fakeRecorder{}, gate,
		sink, events.NewManager(log), m, log)
	require.NoError(t, svc.Seed([]Pool{
		{Name: "amm-pool", Recipient: "pool-contract", Category: domain.CategoryBuyback},
	}))
	return svc, ledger, gate, sink
}

func TestFundPool(t *testing.T) {
	svc, ledger, _, sink := setupFunding(t)

	pool, err := svc.FundPool(context.Background(), "amm-pool", 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), pool.TotalFunded)
	assert.Equal(t, 1, sink.Count())
	assert.Equal(t, "pool:amm-pool", sink.Refs[0])
	assert.Equal(t, "pool-contract", sink.Payments[0].Recipient)
	assert.Equal(t, int64(10000), ledger.spent[domain.CategoryBuyback])
	assert.Equal(t, int64(0), ledger.reserved[domain.CategoryBuyback])

	// The funded total accumulates across calls and is persisted.
	pool, err = svc.FundPool(context.Background(), "amm-pool", 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), pool.TotalFunded)

	pools, err := svc.List()
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, int64(15000), pools[0].TotalFunded)
}

func TestFundPoolValidation(t *testing.T) {
	svc, _, gate, _ := setupFunding(t)

	_, err := svc.FundPool(context.Background(), "amm-pool", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.FundPool(context.Background(), "no-such-pool", 100)
	assert.ErrorIs(t, err, domain.ErrUnknownPool)

	_, err = svc.FundPool(context.Background(), "amm-pool", 60000)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	gate.err = domain.ErrPaused
	_, err = svc.FundPool(context.Background(), "amm-pool", 100)
	assert.ErrorIs(t, err, domain.ErrPaused)
}

func TestFundPoolReleasesOnTransferFailure(t *testing.T) {
	svc, ledger, _, sink := setupFunding(t)
	sink.Err = domain.ErrDisbursementFailed

	_, err := svc.FundPool(context.Background(), "amm-pool", 10000)
	assert.ErrorIs(t, err, domain.ErrDisbursementFailed)

	assert.Equal(t, int64(50000), ledger.available[domain.CategoryBuyback])
	assert.Equal(t, int64(0), ledger.reserved[domain.CategoryBuyback])
	assert.Equal(t, int64(0), ledger.spent[domain.CategoryBuyback])

	pools, err := svc.List()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pools[0].TotalFunded)
}

func TestSeedUpsertsIdempotently(t *testing.T) {
	svc, _, _, _ := setupFunding(t)

	// Re-seeding the same pool must not duplicate or reset it.
	_, err := svc.FundPool(context.Background(), "amm-pool", 1000)
	require.NoError(t, err)

	require.NoError(t, svc.Seed([]Pool{
		{Name: "amm-pool", Recipient: "pool-contract", Category: domain.CategoryBuyback},
	}))

	pools, err := svc.List()
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, int64(1000), pools[0].TotalFunded)
}
