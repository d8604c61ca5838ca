// Package batches implements atomic multi-recipient payouts against a
// single category: reserve at proposal, all-or-nothing execution.
package batches

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/domain"
)

// Repository persists batch distributions. Recipient and amount arrays are
// stored as parallel JSON arrays.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new batches repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "batches").Logger(),
	}
}

// Save upserts a batch.
func (r *Repository) Save(b *domain.BatchDistribution) error {
	recipients, err := json.Marshal(b.Recipients)
	if err != nil {
		return fmt.Errorf("failed to marshal recipients for %s: %w", b.ID, err)
	}
	amounts, err := json.Marshal(b.Amounts)
	if err != nil {
		return fmt.Errorf("failed to marshal amounts for %s: %w", b.ID, err)
	}

	executed, cancelled := 0, 0
	if b.Executed {
		executed = 1
	}
	if b.Cancelled {
		cancelled = 1
	}

	_, err = r.db.Exec(`
		INSERT INTO batches (id, recipients, amounts, category, description, total_amount, created_at, executed, cancelled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			executed = excluded.executed,
			cancelled = excluded.cancelled
	`, b.ID, string(recipients), string(amounts), string(b.Category), b.Description,
		b.TotalAmount, b.CreatedAt.Unix(), executed, cancelled)
	if err != nil {
		return fmt.Errorf("failed to save batch %s: %w", b.ID, err)
	}
	return nil
}

// Get loads one batch. Returns ErrBatchNotFound for unknown ids.
func (r *Repository) Get(id string) (*domain.BatchDistribution, error) {
	row := r.db.QueryRow(`
		SELECT id, recipients, amounts, category, description, total_amount, created_at, executed, cancelled
		FROM batches WHERE id = ?
	`, id)

	b, err := scanBatch(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrBatchNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %s: %w", id, err)
	}
	return b, nil
}

// List returns all batches, newest first.
func (r *Repository) List() ([]domain.BatchDistribution, error) {
	rows, err := r.db.Query(`
		SELECT id, recipients, amounts, category, description, total_amount, created_at, executed, cancelled
		FROM batches ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var result []domain.BatchDistribution
	for rows.Next() {
		b, err := scanBatch(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch row: %w", err)
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

func scanBatch(scan func(...interface{}) error) (*domain.BatchDistribution, error) {
	var (
		b                   domain.BatchDistribution
		recipients, amounts string
		category            string
		createdAt           int64
		executed, cancelled int
	)
	err := scan(&b.ID, &recipients, &amounts, &category, &b.Description,
		&b.TotalAmount, &createdAt, &executed, &cancelled)
	if err != nil {
		return nil, err
	}

	b.Category = domain.Category(category)
	b.CreatedAt = time.Unix(createdAt, 0).UTC()
	b.Executed = executed != 0
	b.Cancelled = cancelled != 0
	if err := json.Unmarshal([]byte(recipients), &b.Recipients); err != nil {
		return nil, fmt.Errorf("corrupt recipients for %s: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(amounts), &b.Amounts); err != nil {
		return nil, fmt.Errorf("corrupt amounts for %s: %w", b.ID, err)
	}
	return &b, nil
}
