// Package history is the append-only record of every value movement, the
// running treasury counters, and the monthly report buckets.
package history

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/domain"
)

// Repository persists historical transactions, monthly aggregates, and the
// metrics row. Transactions are insert-only.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new history repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "history").Logger(),
	}
}

// AppendTx inserts one transaction row inside a transaction.
func (r *Repository) AppendTx(tx *sql.Tx, t *domain.HistoricalTransaction) error {
	res, err := tx.Exec(`
		INSERT INTO transactions (timestamp, counterparty, amount, category, kind, balance_after)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.Timestamp.Unix(), t.Counterparty, t.Amount, string(t.Category), string(t.Kind), t.BalanceAfter)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		t.ID = strconv.FormatInt(id, 10)
	}
	return nil
}

// Query returns transactions with timestamps in [from, to], in insertion order.
func (r *Repository) Query(from, to time.Time) ([]domain.HistoricalTransaction, error) {
	rows, err := r.db.Query(`
		SELECT id, timestamp, counterparty, amount, category, kind, balance_after
		FROM transactions
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY id
	`, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var result []domain.HistoricalTransaction
	for rows.Next() {
		var (
			t        domain.HistoricalTransaction
			id, ts   int64
			category string
			kind     string
		)
		if err := rows.Scan(&id, &ts, &t.Counterparty, &t.Amount, &category, &kind, &t.BalanceAfter); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		t.ID = strconv.FormatInt(id, 10)
		t.Timestamp = time.Unix(ts, 0).UTC()
		t.Category = domain.Category(category)
		t.Kind = domain.TransactionKind(kind)
		result = append(result, t)
	}
	return result, rows.Err()
}

// AccumulateMonthlyTx adds deltas to a month bucket, creating it on first write.
func (r *Repository) AccumulateMonthlyTx(tx *sql.Tx, year, month int, received, distributed, emergency int64) error {
	_, err := tx.Exec(`
		INSERT INTO monthly_aggregates (year, month, received, distributed, emergency_withdrawn)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(year, month) DO UPDATE SET
			received = received + excluded.received,
			distributed = distributed + excluded.distributed,
			emergency_withdrawn = emergency_withdrawn + excluded.emergency_withdrawn
	`, year, month, received, distributed, emergency)
	if err != nil {
		return fmt.Errorf("failed to accumulate monthly aggregate %d-%02d: %w", year, month, err)
	}
	return nil
}

// GetMonthly reads one month bucket. A month with no activity is all zeros.
func (r *Repository) GetMonthly(year, month int) (domain.MonthlyAggregate, error) {
	agg := domain.MonthlyAggregate{Year: year, Month: month}
	err := r.db.QueryRow(`
		SELECT received, distributed, emergency_withdrawn
		FROM monthly_aggregates
		WHERE year = ? AND month = ?
	`, year, month).Scan(&agg.Received, &agg.Distributed, &agg.EmergencyWithdrawn)
	if err == sql.ErrNoRows {
		return agg, nil
	}
	if err != nil {
		return agg, fmt.Errorf("failed to get monthly aggregate %d-%02d: %w", year, month, err)
	}
	return agg, nil
}

// GetMetrics reads the metrics row.
func (r *Repository) GetMetrics() (domain.TreasuryMetrics, error) {
	var m domain.TreasuryMetrics
	err := r.db.QueryRow(`
		SELECT total_received, total_distributed, balance, policy_applications, withdrawal_count, emergency_count
		FROM metrics WHERE id = 1
	`).Scan(&m.TotalReceived, &m.TotalDistributed, &m.Balance, &m.PolicyApplications, &m.WithdrawalCount, &m.EmergencyCount)
	if err != nil {
		return m, fmt.Errorf("failed to get metrics: %w", err)
	}
	return m, nil
}

// SaveMetricsTx writes the metrics row inside a transaction.
func (r *Repository) SaveMetricsTx(tx *sql.Tx, m domain.TreasuryMetrics) error {
	_, err := tx.Exec(`
		UPDATE metrics SET
			total_received = ?,
			total_distributed = ?,
			balance = ?,
			policy_applications = ?,
			withdrawal_count = ?,
			emergency_count = ?
		WHERE id = 1
	`, m.TotalReceived, m.TotalDistributed, m.Balance, m.PolicyApplications, m.WithdrawalCount, m.EmergencyCount)
	if err != nil {
		return fmt.Errorf("failed to save metrics: %w", err)
	}
	return nil
}
