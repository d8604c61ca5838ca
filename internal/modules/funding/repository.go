// Package funding routes category funds to named external systems (a
// gas-sponsorship pool, a buy-back pool, a reward pool). Each pool binds a
// name to a disbursement recipient and a source category.
package funding

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/domain"
)

// Pool binds a named external system to its recipient and source category.
type Pool struct {
	Name        string          `json:"name"`
	Recipient   string          `json:"recipient"`
	Category    domain.Category `json:"category"`
	TotalFunded int64           `json:"total_funded"`
}

// Repository persists funding pools.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new funding repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "funding").Logger(),
	}
}

// Upsert registers a pool, keeping the funded total on conflict.
func (r *Repository) Upsert(p Pool) error {
	_, err := r.db.Exec(`
		INSERT INTO pools (name, recipient, category)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			recipient = excluded.recipient,
			category = excluded.category
	`, p.Name, p.Recipient, string(p.Category))
	if err != nil {
		return fmt.Errorf("failed to upsert pool %s: %w", p.Name, err)
	}
	return nil
}

// Get loads one pool. Returns ErrUnknownPool for unknown names.
func (r *Repository) Get(name string) (*Pool, error) {
	var (
		p        Pool
		category string
	)
	err := r.db.QueryRow(`
		SELECT name, recipient, category, total_funded FROM pools WHERE name = ?
	`, name).Scan(&p.Name, &p.Recipient, &category, &p.TotalFunded)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPool, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pool %s: %w", name, err)
	}
	p.Category = domain.Category(category)
	return &p, nil
}

// AddFunded bumps a pool's funded total.
func (r *Repository) AddFunded(name string, amount int64) error {
	_, err := r.db.Exec("UPDATE pools SET total_funded = total_funded + ? WHERE name = ?", amount, name)
	if err != nil {
		return fmt.Errorf("failed to update funded total for %s: %w", name, err)
	}
	return nil
}

// List returns all pools by name.
func (r *Repository) List() ([]Pool, error) {
	rows, err := r.db.Query("SELECT name, recipient, category, total_funded FROM pools ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	defer rows.Close()

	var result []Pool
	for rows.Next() {
		var (
			p        Pool
			category string
		)
		if err := rows.Scan(&p.Name, &p.Recipient, &category, &p.TotalFunded); err != nil {
			return nil, fmt.Errorf("failed to scan pool row: %w", err)
		}
		p.Category = domain.Category(category)
		result = append(result, p)
	}
	return result, rows.Err()
}
