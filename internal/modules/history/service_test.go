package history

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/metrics"
)

func setupHistory(t *testing.T) (*Service, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, InitSchema(db))

	log := zerolog.Nop()
	m, _ := metrics.NewRegistry()
	svc := NewService(db, NewRepository(db, log), m, log)
	require.NoError(t, svc.Init())
	return svc, db
}

func TestRecordDepositUpdatesCounters(t *testing.T) {
	svc, _ := setupHistory(t)

	balance, err := svc.RecordDeposit("dao", 10000, "monthly funding")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), balance)

	balance, err = svc.RecordDeposit("dao", 5000, "")
	require.NoError(t, err)
	assert.Equal(t, int64(15000), balance)

	counters := svc.GetMetrics()
	assert.Equal(t, int64(15000), counters.TotalReceived)
	assert.Equal(t, int64(15000), counters.Balance)
	assert.Equal(t, int64(2), counters.PolicyApplications)
	assert.Equal(t, int64(0), counters.TotalDistributed)
}

func TestRecordCategoryDepositSkipsPolicyCounter(t *testing.T) {
	svc, _ := setupHistory(t)

	balance, err := svc.RecordCategoryDeposit("grant", 5000, "earmarked")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)

	counters := svc.GetMetrics()
	assert.Equal(t, int64(5000), counters.TotalReceived)
	assert.Equal(t, int64(5000), counters.Balance)
	assert.Equal(t, int64(0), counters.PolicyApplications,
		"category-hinted deposits do not apply the allocation policy")

	_, err = svc.RecordDeposit("dao", 1000, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), svc.GetMetrics().PolicyApplications)
}

func TestRecordDistributionCountsWithdrawalsOnly(t *testing.T) {
	svc, _ := setupHistory(t)

	_, err := svc.RecordDeposit("dao", 10000, "")
	require.NoError(t, err)

	_, err = svc.RecordDistribution("vendor-1", 2000, domain.CategoryMarketing, domain.KindWithdrawal)
	require.NoError(t, err)
	_, err = svc.RecordDistribution("vendor-2", 1000, domain.CategoryMarketing, domain.KindBatchDistribution)
	require.NoError(t, err)

	counters := svc.GetMetrics()
	assert.Equal(t, int64(3000), counters.TotalDistributed)
	assert.Equal(t, int64(7000), counters.Balance)
	assert.Equal(t, int64(1), counters.WithdrawalCount, "batch legs are not withdrawal proposals")
}

func TestRecordEmergencyBypassesDistributedTotal(t *testing.T) {
	svc, _ := setupHistory(t)

	_, err := svc.RecordDeposit("dao", 10000, "")
	require.NoError(t, err)

	balance, err := svc.RecordEmergency("safe-wallet", 4000, domain.KindEmergencyWithdrawal)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), balance)

	counters := svc.GetMetrics()
	assert.Equal(t, int64(0), counters.TotalDistributed)
	assert.Equal(t, int64(1), counters.EmergencyCount)
}

func TestCountersSurviveRestart(t *testing.T) {
	svc, db := setupHistory(t)

	_, err := svc.RecordDeposit("dao", 10000, "")
	require.NoError(t, err)
	_, err = svc.RecordDistribution("vendor-1", 3000, domain.CategoryMarketing, domain.KindWithdrawal)
	require.NoError(t, err)

	log := zerolog.Nop()
	m, _ := metrics.NewRegistry()
	svc2 := NewService(db, NewRepository(db, log), m, log)
	require.NoError(t, svc2.Init())

	assert.Equal(t, int64(7000), svc2.GetBalance())
	counters := svc2.GetMetrics()
	assert.Equal(t, int64(10000), counters.TotalReceived)
	assert.Equal(t, int64(3000), counters.TotalDistributed)
	assert.Equal(t, int64(1), counters.WithdrawalCount)
}

func TestQueryReturnsChronologicalRange(t *testing.T) {
	svc, _ := setupHistory(t)

	before := time.Now().UTC().Add(-time.Second)
	_, err := svc.RecordDeposit("dao", 1000, "")
	require.NoError(t, err)
	_, err = svc.RecordDistribution("vendor-1", 400, domain.CategoryMarketing, domain.KindWithdrawal)
	require.NoError(t, err)
	after := time.Now().UTC().Add(time.Second)

	txs, err := svc.Query(before, after)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.KindDeposit, txs[0].Kind)
	assert.Equal(t, int64(1000), txs[0].BalanceAfter)
	assert.Equal(t, domain.KindWithdrawal, txs[1].Kind)
	assert.Equal(t, int64(600), txs[1].BalanceAfter)

	// Empty window.
	txs, err = svc.Query(after, after.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestMonthlyReportAccumulates(t *testing.T) {
	svc, _ := setupHistory(t)

	_, err := svc.RecordDeposit("dao", 10000, "")
	require.NoError(t, err)
	_, err = svc.RecordDistribution("vendor-1", 2500, domain.CategoryMarketing, domain.KindWithdrawal)
	require.NoError(t, err)
	_, err = svc.RecordEmergency("safe-wallet", 1000, domain.KindEmergencyWithdrawal)
	require.NoError(t, err)

	now := time.Now().UTC()
	report, err := svc.MonthlyReport(now.Year(), int(now.Month()))
	require.NoError(t, err)
	assert.Equal(t, int64(10000), report.Received)
	assert.Equal(t, int64(2500), report.Distributed)
	assert.Equal(t, int64(1000), report.EmergencyWithdrawn)
}

func TestMonthlyReportValidatesMonth(t *testing.T) {
	svc, _ := setupHistory(t)

	_, err := svc.MonthlyReport(2026, 0)
	assert.Error(t, err)
	_, err = svc.MonthlyReport(2026, 13)
	assert.Error(t, err)

	// An untouched month reads back as a zero bucket, not an error.
	report, err := svc.MonthlyReport(2020, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.MonthlyAggregate{Year: 2020, Month: 1}, report)
}
