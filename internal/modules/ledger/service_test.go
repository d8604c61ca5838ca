package ledger

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/events"
	"github.com/aristath/treasury/internal/metrics"
)

type stubGate struct {
	err error
}

func (g *stubGate) Check() error { return g.err }

type stubRecorder struct {
	deposits         int
	categoryDeposits int
	balance          int64
	err              error
}

func (r *stubRecorder) RecordDeposit(source string, amount int64, description string) (int64, error) {
	if r.err != nil {
		return r.balance, r.err
	}
	r.deposits++
	r.balance += amount
	return r.balance, nil
}

func (r *stubRecorder) RecordCategoryDeposit(source string, amount int64, description string) (int64, error) {
	if r.err != nil {
		return r.balance, r.err
	}
	r.categoryDeposits++
	r.balance += amount
	return r.balance, nil
}

func testPolicy() []domain.PolicyEntry {
	return []domain.PolicyEntry{
		{Category: domain.CategoryMarketing, Bps: 3000},
		{Category: domain.CategoryPartnerships, Bps: 2000},
		{Category: domain.CategoryDevelopment, Bps: 3000},
		{Category: domain.CategoryBuyback, Bps: 2000},
	}
}

func setupTestService(t *testing.T) (*Service, *stubGate, *stubRecorder) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, InitSchema(db))

	log := zerolog.Nop()
	m, _ := metrics.NewRegistry()
	gate := &stubGate{}
	recorder := &stubRecorder{}

	svc := NewService(db, NewRepository(db, log), gate, recorder, events.NewManager(log), m, log)
	require.NoError(t, svc.Init(testPolicy()))

	return svc, gate, recorder
}

func sumAllocations(allocs []domain.CategoryAllocation) (allocated, available, reserved, spent int64) {
	for _, a := range allocs {
		allocated += a.TotalAllocated
		available += a.Available
		reserved += a.Reserved
		spent += a.TotalSpent
	}
	return
}

func TestDepositSplitsByPolicy(t *testing.T) {
	svc, _, recorder := setupTestService(t)

	increments, err := svc.Deposit("dao", 10000, "monthly funding")
	require.NoError(t, err)

	assert.Equal(t, int64(3000), increments[domain.CategoryMarketing])
	assert.Equal(t, int64(2000), increments[domain.CategoryPartnerships])
	assert.Equal(t, int64(3000), increments[domain.CategoryDevelopment])
	assert.Equal(t, int64(2000), increments[domain.CategoryBuyback])
	assert.Equal(t, 1, recorder.deposits)
}

func TestDepositRemainderGoesToLastCategory(t *testing.T) {
	svc, _, _ := setupTestService(t)

	increments, err := svc.Deposit("dao", 10001, "odd amount")
	require.NoError(t, err)

	// Floors for the first three entries, the last absorbs the remainder
	// so the increments sum to exactly the deposit.
	assert.Equal(t, int64(3000), increments[domain.CategoryMarketing])
	assert.Equal(t, int64(2000), increments[domain.CategoryPartnerships])
	assert.Equal(t, int64(3000), increments[domain.CategoryDevelopment])
	assert.Equal(t, int64(2001), increments[domain.CategoryBuyback])

	var total int64
	for _, inc := range increments {
		total += inc
	}
	assert.Equal(t, int64(10001), total)
}

func TestDepositRejectsNonPositiveAmounts(t *testing.T) {
	svc, _, _ := setupTestService(t)

	_, err := svc.Deposit("dao", 0, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Deposit("dao", -500, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestDepositRejectedWhilePaused(t *testing.T) {
	svc, gate, _ := setupTestService(t)
	gate.err = domain.ErrPaused

	_, err := svc.Deposit("dao", 1000, "")
	assert.ErrorIs(t, err, domain.ErrPaused)
}

func TestDepositToCategory(t *testing.T) {
	svc, _, recorder := setupTestService(t)

	require.NoError(t, svc.DepositToCategory("grant", 5000, domain.CategoryDevelopment, "earmarked"))

	alloc, err := svc.GetAllocation(domain.CategoryDevelopment)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), alloc.TotalAllocated)
	assert.Equal(t, int64(5000), alloc.Available)

	// A category-hinted deposit bypasses the split, so it must not be
	// recorded as a policy application.
	assert.Equal(t, 0, recorder.deposits)
	assert.Equal(t, 1, recorder.categoryDeposits)

	err = svc.DepositToCategory("grant", 100, domain.Category("UNKNOWN"), "")
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)
}

func TestDepositEmitsErrorEventWhenRecordFails(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, InitSchema(db))

	log := zerolog.Nop()
	m, _ := metrics.NewRegistry()
	recorder := &stubRecorder{err: errors.New("history db locked")}
	eventManager := events.NewManager(log)

	svc := NewService(db, NewRepository(db, log), &stubGate{}, recorder, eventManager, m, log)
	require.NoError(t, svc.Init(testPolicy()))

	ch, cancel := eventManager.Subscribe()
	defer cancel()

	_, err = svc.Deposit("dao", 10000, "")
	require.NoError(t, err)
	require.NoError(t, svc.DepositToCategory("grant", 5000, domain.CategoryDevelopment, ""))

	var errorEvents int
	for len(ch) > 0 {
		if e := <-ch; e.Type == events.ErrorOccurred {
			errorEvents++
		}
	}
	assert.Equal(t, 2, errorEvents, "each failed history write should surface an error event")
}

func TestConservationAcrossLifecycle(t *testing.T) {
	svc, _, _ := setupTestService(t)

	_, err := svc.Deposit("dao", 100000, "")
	require.NoError(t, err)

	require.NoError(t, svc.Reserve(domain.CategoryMarketing, 10000))
	require.NoError(t, svc.Spend(domain.CategoryMarketing, 4000))
	require.NoError(t, svc.Reserve(domain.CategoryDevelopment, 7000))
	require.NoError(t, svc.Release(domain.CategoryDevelopment, 2000))

	for _, alloc := range svc.GetAllocations() {
		assert.Equal(t, alloc.TotalAllocated-alloc.TotalSpent-alloc.Reserved, alloc.Available,
			"conservation broken for %s", alloc.Category)
		assert.GreaterOrEqual(t, alloc.Available, int64(0))
		assert.GreaterOrEqual(t, alloc.Reserved, int64(0))
		assert.GreaterOrEqual(t, alloc.TotalSpent, int64(0))
	}

	allocated, available, reserved, spent := sumAllocations(svc.GetAllocations())
	assert.Equal(t, int64(100000), allocated)
	assert.Equal(t, allocated, available+reserved+spent)
}

func TestReserveInsufficientFunds(t *testing.T) {
	svc, _, _ := setupTestService(t)

	_, err := svc.Deposit("dao", 10000, "")
	require.NoError(t, err)

	// Marketing got 3000.
	err = svc.Reserve(domain.CategoryMarketing, 3001)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.NoError(t, svc.Reserve(domain.CategoryMarketing, 3000))
	alloc, err := svc.GetAllocation(domain.CategoryMarketing)
	require.NoError(t, err)
	assert.Equal(t, int64(0), alloc.Available)
	assert.Equal(t, int64(3000), alloc.Reserved)
}

func TestReleaseMoreThanReserved(t *testing.T) {
	svc, _, _ := setupTestService(t)

	_, err := svc.Deposit("dao", 10000, "")
	require.NoError(t, err)

	require.NoError(t, svc.Reserve(domain.CategoryMarketing, 1000))
	err = svc.Release(domain.CategoryMarketing, 1500)
	assert.ErrorIs(t, err, domain.ErrInsufficientReservation)
}

func TestSpendRequiresReservation(t *testing.T) {
	svc, _, _ := setupTestService(t)

	_, err := svc.Deposit("dao", 10000, "")
	require.NoError(t, err)

	err = svc.Spend(domain.CategoryMarketing, 500)
	assert.ErrorIs(t, err, domain.ErrInsufficientReservation)
}

func TestSpendNotPauseGated(t *testing.T) {
	svc, gate, _ := setupTestService(t)

	_, err := svc.Deposit("dao", 10000, "")
	require.NoError(t, err)
	require.NoError(t, svc.Reserve(domain.CategoryMarketing, 1000))

	// Pausing must not block settlement of an outstanding disbursement.
	gate.err = domain.ErrPaused
	assert.NoError(t, svc.Spend(domain.CategoryMarketing, 1000))
}

func TestUpdatePolicyRebalancesCeilings(t *testing.T) {
	svc, _, _ := setupTestService(t)

	_, err := svc.Deposit("dao", 100000, "")
	require.NoError(t, err)

	newPolicy := []domain.PolicyEntry{
		{Category: domain.CategoryMarketing, Bps: 5000},
		{Category: domain.CategoryPartnerships, Bps: 2000},
		{Category: domain.CategoryDevelopment, Bps: 2000},
		{Category: domain.CategoryBuyback, Bps: 1000},
	}
	require.NoError(t, svc.UpdatePolicy(newPolicy))

	marketing, err := svc.GetAllocation(domain.CategoryMarketing)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), marketing.TotalAllocated)
	assert.Equal(t, int64(50000), marketing.Available)

	allocated, _, _, _ := sumAllocations(svc.GetAllocations())
	assert.Equal(t, int64(100000), allocated, "rebalance must conserve the total")
}

func TestUpdatePolicyRejectsBadPercentages(t *testing.T) {
	svc, _, _ := setupTestService(t)

	err := svc.UpdatePolicy([]domain.PolicyEntry{
		{Category: domain.CategoryMarketing, Bps: 5000},
		{Category: domain.CategoryDevelopment, Bps: 4000},
	})
	assert.ErrorIs(t, err, domain.ErrPolicyPercentages)

	err = svc.UpdatePolicy([]domain.PolicyEntry{
		{Category: domain.CategoryMarketing, Bps: 5000},
		{Category: domain.CategoryMarketing, Bps: 5000},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)

	err = svc.UpdatePolicy(nil)
	assert.ErrorIs(t, err, domain.ErrPolicyPercentages)
}

func TestUpdatePolicyRejectsCeilingBelowCommitments(t *testing.T) {
	svc, _, _ := setupTestService(t)

	_, err := svc.Deposit("dao", 100000, "")
	require.NoError(t, err)

	// Marketing has 30000; commit 25000 of it.
	require.NoError(t, svc.Reserve(domain.CategoryMarketing, 25000))
	require.NoError(t, svc.Spend(domain.CategoryMarketing, 10000))

	// 10% of 100000 = 10000 ceiling, below the 25000 still committed.
	err = svc.UpdatePolicy([]domain.PolicyEntry{
		{Category: domain.CategoryMarketing, Bps: 1000},
		{Category: domain.CategoryPartnerships, Bps: 3000},
		{Category: domain.CategoryDevelopment, Bps: 3000},
		{Category: domain.CategoryBuyback, Bps: 3000},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// The failed update must leave the old policy in place.
	assert.Len(t, svc.GetPolicy().Entries, 4)
	marketing, err := svc.GetAllocation(domain.CategoryMarketing)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), marketing.TotalAllocated)
}

func TestUpdatePolicyRejectsDroppingFundedCategory(t *testing.T) {
	svc, _, _ := setupTestService(t)

	_, err := svc.Deposit("dao", 100000, "")
	require.NoError(t, err)

	err = svc.UpdatePolicy([]domain.PolicyEntry{
		{Category: domain.CategoryMarketing, Bps: 4000},
		{Category: domain.CategoryPartnerships, Bps: 3000},
		{Category: domain.CategoryDevelopment, Bps: 3000},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestRebalanceMovesAvailableFunds(t *testing.T) {
	svc, _, _ := setupTestService(t)

	_, err := svc.Deposit("dao", 100000, "")
	require.NoError(t, err)

	require.NoError(t, svc.Rebalance(domain.CategoryMarketing, domain.CategoryBuyback, 10000))

	marketing, err := svc.GetAllocation(domain.CategoryMarketing)
	require.NoError(t, err)
	buyback, err := svc.GetAllocation(domain.CategoryBuyback)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), marketing.TotalAllocated)
	assert.Equal(t, int64(30000), buyback.TotalAllocated)

	allocated, _, _, _ := sumAllocations(svc.GetAllocations())
	assert.Equal(t, int64(100000), allocated)

	err = svc.Rebalance(domain.CategoryMarketing, domain.CategoryBuyback, 50000)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	err = svc.Rebalance(domain.CategoryMarketing, domain.CategoryMarketing, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)
}

func TestStateSurvivesRestart(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, InitSchema(db))

	log := zerolog.Nop()
	m, _ := metrics.NewRegistry()
	recorder := &stubRecorder{}

	svc := NewService(db, NewRepository(db, log), &stubGate{}, recorder, events.NewManager(log), m, log)
	require.NoError(t, svc.Init(testPolicy()))

	_, err = svc.Deposit("dao", 50000, "")
	require.NoError(t, err)
	require.NoError(t, svc.Reserve(domain.CategoryMarketing, 5000))

	// Fresh service over the same database.
	m2, _ := metrics.NewRegistry()
	svc2 := NewService(db, NewRepository(db, log), &stubGate{}, recorder, events.NewManager(log), m2, log)
	require.NoError(t, svc2.Init(nil))

	marketing, err := svc2.GetAllocation(domain.CategoryMarketing)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), marketing.TotalAllocated)
	assert.Equal(t, int64(5000), marketing.Reserved)
	assert.Equal(t, int64(10000), marketing.Available)
	assert.Len(t, svc2.GetPolicy().Entries, 4)
}

func TestHasSufficientFunds(t *testing.T) {
	svc, _, _ := setupTestService(t)

	_, err := svc.Deposit("dao", 10000, "")
	require.NoError(t, err)

	assert.True(t, svc.HasSufficientFunds(domain.CategoryMarketing, 3000))
	assert.False(t, svc.HasSufficientFunds(domain.CategoryMarketing, 3001))
	assert.False(t, svc.HasSufficientFunds(domain.Category("UNKNOWN"), 1))
}

func TestGetAllocationsInPolicyOrder(t *testing.T) {
	svc, _, _ := setupTestService(t)

	_, err := svc.Deposit("dao", 10000, "")
	require.NoError(t, err)

	allocs := svc.GetAllocations()
	require.Len(t, allocs, 4)
	assert.Equal(t, domain.CategoryMarketing, allocs[0].Category)
	assert.Equal(t, domain.CategoryPartnerships, allocs[1].Category)
	assert.Equal(t, domain.CategoryDevelopment, allocs[2].Category)
	assert.Equal(t, domain.CategoryBuyback, allocs[3].Category)
}

func TestGateErrorPropagates(t *testing.T) {
	svc, gate, _ := setupTestService(t)

	_, err := svc.Deposit("dao", 10000, "")
	require.NoError(t, err)

	gate.err = domain.ErrPaused
	assert.True(t, errors.Is(svc.Reserve(domain.CategoryMarketing, 100), domain.ErrPaused))
	assert.True(t, errors.Is(svc.Release(domain.CategoryMarketing, 100), domain.ErrPaused))
	assert.True(t, errors.Is(svc.Rebalance(domain.CategoryMarketing, domain.CategoryBuyback, 100), domain.ErrPaused))
	assert.True(t, errors.Is(svc.UpdatePolicy(testPolicy()), domain.ErrPaused))
}
