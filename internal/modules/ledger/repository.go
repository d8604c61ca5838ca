// Package ledger implements the category allocation ledger: per-category
// balances under a basis-point allocation policy, with exact integer
// splitting and a single serialization point for every fund movement.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/domain"
)

// Repository persists category allocations and the allocation policy.
// Available balances are derived, never stored.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "ledger").Logger(),
	}
}

// LoadAllocations reads every category row.
func (r *Repository) LoadAllocations() (map[domain.Category]*domain.CategoryAllocation, error) {
	rows, err := r.db.Query(`
		SELECT category, total_allocated, reserved, total_spent, last_distribution
		FROM categories
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations: %w", err)
	}
	defer rows.Close()

	result := make(map[domain.Category]*domain.CategoryAllocation)
	for rows.Next() {
		var (
			category string
			alloc    domain.CategoryAllocation
			lastDist int64
		)
		if err := rows.Scan(&category, &alloc.TotalAllocated, &alloc.Reserved, &alloc.TotalSpent, &lastDist); err != nil {
			return nil, fmt.Errorf("failed to scan allocation row: %w", err)
		}
		alloc.Category = domain.Category(category)
		alloc.Available = alloc.TotalAllocated - alloc.TotalSpent - alloc.Reserved
		if lastDist > 0 {
			alloc.LastDistributionTime = time.Unix(lastDist, 0).UTC()
		}
		result[alloc.Category] = &alloc
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocation rows: %w", err)
	}
	return result, nil
}

// SaveAllocationTx upserts one category row inside a transaction.
func (r *Repository) SaveAllocationTx(tx *sql.Tx, alloc *domain.CategoryAllocation) error {
	var lastDist int64
	if !alloc.LastDistributionTime.IsZero() {
		lastDist = alloc.LastDistributionTime.Unix()
	}

	_, err := tx.Exec(`
		INSERT INTO categories (category, total_allocated, reserved, total_spent, last_distribution)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET
			total_allocated = excluded.total_allocated,
			reserved = excluded.reserved,
			total_spent = excluded.total_spent,
			last_distribution = excluded.last_distribution
	`, string(alloc.Category), alloc.TotalAllocated, alloc.Reserved, alloc.TotalSpent, lastDist)
	if err != nil {
		return fmt.Errorf("failed to save allocation for %s: %w", alloc.Category, err)
	}
	return nil
}

// LoadPolicy reads the allocation policy in stored order.
// Returns nil when no policy has been written yet.
func (r *Repository) LoadPolicy() (*domain.AllocationPolicy, error) {
	rows, err := r.db.Query(`
		SELECT category, bps, updated_at
		FROM policy_entries
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	defer rows.Close()

	policy := &domain.AllocationPolicy{}
	var updatedAt int64
	for rows.Next() {
		var (
			category string
			bps      int64
		)
		if err := rows.Scan(&category, &bps, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan policy row: %w", err)
		}
		policy.Entries = append(policy.Entries, domain.PolicyEntry{
			Category: domain.Category(category),
			Bps:      bps,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating policy rows: %w", err)
	}
	if len(policy.Entries) == 0 {
		return nil, nil
	}
	policy.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return policy, nil
}

// SavePolicyTx replaces the stored policy inside a transaction.
func (r *Repository) SavePolicyTx(tx *sql.Tx, policy *domain.AllocationPolicy) error {
	if _, err := tx.Exec("DELETE FROM policy_entries"); err != nil {
		return fmt.Errorf("failed to clear policy: %w", err)
	}

	updatedAt := policy.UpdatedAt.Unix()
	for i, entry := range policy.Entries {
		_, err := tx.Exec(`
			INSERT INTO policy_entries (position, category, bps, updated_at)
			VALUES (?, ?, ?, ?)
		`, i, string(entry.Category), entry.Bps, updatedAt)
		if err != nil {
			return fmt.Errorf("failed to save policy entry %s: %w", entry.Category, err)
		}
	}
	return nil
}
