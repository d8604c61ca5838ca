// Package withdrawals implements the single-recipient withdrawal workflow:
// proposal, multi-party approval, optional timelock, execution, cancellation.
package withdrawals

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/domain"
)

// Repository persists withdrawal proposals. The approval set is stored as a
// JSON array in insertion order.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new withdrawals repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "withdrawals").Logger(),
	}
}

// Save upserts a proposal.
func (r *Repository) Save(p *domain.WithdrawalProposal) error {
	approvals, err := json.Marshal(p.Approvals)
	if err != nil {
		return fmt.Errorf("failed to marshal approvals for %s: %w", p.ID, err)
	}

	isLarge := 0
	if p.IsLarge {
		isLarge = 1
	}

	_, err = r.db.Exec(`
		INSERT INTO proposals (id, proposer, recipient, amount, category, description, created_at, execution_time, status, approvals, is_large)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			approvals = excluded.approvals
	`, p.ID, p.Proposer, p.Recipient, p.Amount, string(p.Category), p.Description,
		p.CreatedAt.Unix(), p.ExecutionTime.Unix(), string(p.Status), string(approvals), isLarge)
	if err != nil {
		return fmt.Errorf("failed to save proposal %s: %w", p.ID, err)
	}
	return nil
}

// Get loads one proposal. Returns ErrProposalNotFound for unknown ids.
func (r *Repository) Get(id string) (*domain.WithdrawalProposal, error) {
	row := r.db.QueryRow(`
		SELECT id, proposer, recipient, amount, category, description, created_at, execution_time, status, approvals, is_large
		FROM proposals WHERE id = ?
	`, id)

	p, err := scanProposal(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrProposalNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal %s: %w", id, err)
	}
	return p, nil
}

// List returns proposals, newest first, optionally filtered by status.
func (r *Repository) List(status domain.ProposalStatus) ([]domain.WithdrawalProposal, error) {
	query := `
		SELECT id, proposer, recipient, amount, category, description, created_at, execution_time, status, approvals, is_large
		FROM proposals
	`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var result []domain.WithdrawalProposal
	for rows.Next() {
		p, err := scanProposal(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal row: %w", err)
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func scanProposal(scan func(...interface{}) error) (*domain.WithdrawalProposal, error) {
	var (
		p                   domain.WithdrawalProposal
		category, status    string
		createdAt, execTime int64
		approvalsJSON       string
		isLarge             int
	)
	err := scan(&p.ID, &p.Proposer, &p.Recipient, &p.Amount, &category, &p.Description,
		&createdAt, &execTime, &status, &approvalsJSON, &isLarge)
	if err != nil {
		return nil, err
	}

	p.Category = domain.Category(category)
	p.Status = domain.ProposalStatus(status)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.ExecutionTime = time.Unix(execTime, 0).UTC()
	p.IsLarge = isLarge != 0
	if err := json.Unmarshal([]byte(approvalsJSON), &p.Approvals); err != nil {
		return nil, fmt.Errorf("corrupt approvals for %s: %w", p.ID, err)
	}
	return &p, nil
}
