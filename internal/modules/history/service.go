package history

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/database"
	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/metrics"
)

// Service owns the treasury counters and the append-only transaction log.
// Each record call appends one history row, bumps the counters, and
// accumulates the calendar-month bucket in a single database transaction.
type Service struct {
	mu sync.Mutex

	db      *sql.DB
	repo    *Repository
	metrics *metrics.Registry
	log     zerolog.Logger

	counters domain.TreasuryMetrics
}

// NewService creates a history service. Call Init before use.
func NewService(db *sql.DB, repo *Repository, m *metrics.Registry, log zerolog.Logger) *Service {
	return &Service{
		db:      db,
		repo:    repo,
		metrics: m,
		log:     log.With().Str("service", "history").Logger(),
	}
}

// Init loads the persisted counters.
func (s *Service) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counters, err := s.repo.GetMetrics()
	if err != nil {
		return err
	}
	s.counters = counters
	s.metrics.GlobalBalance.Set(float64(counters.Balance))
	return nil
}

// RecordDeposit records an incoming policy-split deposit and returns the
// new balance. The policy-application counter tracks splits only, so
// category-hinted deposits go through RecordCategoryDeposit instead.
func (s *Service) RecordDeposit(source string, amount int64, description string) (int64, error) {
	return s.recordDeposit(source, amount, description, true)
}

// RecordCategoryDeposit records a deposit credited to a single category
// without running the allocation policy.
func (s *Service) RecordCategoryDeposit(source string, amount int64, description string) (int64, error) {
	return s.recordDeposit(source, amount, description, false)
}

func (s *Service) recordDeposit(source string, amount int64, description string, policyApplied bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.counters
	next.TotalReceived += amount
	next.Balance += amount
	if policyApplied {
		next.PolicyApplications++
	}

	err := s.commit(next, &domain.HistoricalTransaction{
		Timestamp:    time.Now().UTC(),
		Counterparty: source,
		Amount:       amount,
		Kind:         domain.KindDeposit,
		BalanceAfter: next.Balance,
	}, amount, 0, 0)
	if err != nil {
		return s.counters.Balance, err
	}

	s.log.Debug().
		Str("source", source).
		Int64("amount", amount).
		Str("description", description).
		Msg("Deposit recorded")
	return s.counters.Balance, nil
}

// RecordDistribution records an outgoing payout (withdrawal, batch leg, or
// pool funding) and returns the new balance.
func (s *Service) RecordDistribution(recipient string, amount int64, category domain.Category, kind domain.TransactionKind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.counters
	next.TotalDistributed += amount
	next.Balance -= amount
	if kind == domain.KindWithdrawal {
		next.WithdrawalCount++
	}

	err := s.commit(next, &domain.HistoricalTransaction{
		Timestamp:    time.Now().UTC(),
		Counterparty: recipient,
		Amount:       amount,
		Category:     category,
		Kind:         kind,
		BalanceAfter: next.Balance,
	}, 0, amount, 0)
	if err != nil {
		return s.counters.Balance, err
	}

	s.metrics.DistributedTotal.WithLabelValues(string(category), string(kind)).Add(float64(amount))
	return s.counters.Balance, nil
}

// RecordEmergency records an emergency withdrawal or recovery sweep.
func (s *Service) RecordEmergency(recipient string, amount int64, kind domain.TransactionKind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.counters
	next.Balance -= amount
	next.EmergencyCount++

	err := s.commit(next, &domain.HistoricalTransaction{
		Timestamp:    time.Now().UTC(),
		Counterparty: recipient,
		Amount:       amount,
		Kind:         kind,
		BalanceAfter: next.Balance,
	}, 0, 0, amount)
	if err != nil {
		return s.counters.Balance, err
	}

	s.metrics.EmergencyTotal.Add(float64(amount))
	return s.counters.Balance, nil
}

// commit persists counters, one history row, and the month bucket
// atomically, then installs the new counters. Caller holds the lock.
func (s *Service) commit(next domain.TreasuryMetrics, t *domain.HistoricalTransaction, received, distributed, emergency int64) error {
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if err := s.repo.SaveMetricsTx(tx, next); err != nil {
			return err
		}
		if err := s.repo.AppendTx(tx, t); err != nil {
			return err
		}
		return s.repo.AccumulateMonthlyTx(tx, t.Timestamp.Year(), int(t.Timestamp.Month()), received, distributed, emergency)
	})
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", t.Kind, err)
	}

	s.counters = next
	s.metrics.GlobalBalance.Set(float64(next.Balance))
	return nil
}

// Query returns transactions in [from, to] in chronological order.
func (s *Service) Query(from, to time.Time) ([]domain.HistoricalTransaction, error) {
	return s.repo.Query(from, to)
}

// MonthlyReport returns the aggregate bucket for a UTC calendar month.
func (s *Service) MonthlyReport(year, month int) (domain.MonthlyAggregate, error) {
	if month < 1 || month > 12 {
		return domain.MonthlyAggregate{}, fmt.Errorf("%w: month %d out of range", domain.ErrInvalidAmount, month)
	}
	return s.repo.GetMonthly(year, month)
}

// GetMetrics returns a copy of the running counters.
func (s *Service) GetMetrics() domain.TreasuryMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// GetBalance returns the custodied global balance.
func (s *Service) GetBalance() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters.Balance
}
