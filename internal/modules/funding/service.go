package funding

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/events"
	"github.com/aristath/treasury/internal/metrics"
)

// Ledger is the slice of the category ledger pool funding needs.
type Ledger interface {
	Reserve(category domain.Category, amount int64) error
	Release(category domain.Category, amount int64) error
	Spend(category domain.Category, amount int64) error
}

// Recorder appends pool fundings to the historical ledger.
type Recorder interface {
	RecordDistribution(recipient string, amount int64, category domain.Category, kind domain.TransactionKind) (int64, error)
}

// PauseGate rejects mutating entry points while the treasury is paused.
type PauseGate interface {
	Check() error
}

// Service funds external pools out of their bound categories. Funding is a
// reserve-disburse-spend sequence, so a failed transfer releases cleanly.
type Service struct {
	mu sync.Mutex

	repo     *Repository
	ledger   Ledger
	recorder Recorder
	gate     PauseGate
	sink     domain.DisbursementSink
	events   *events.Manager
	metrics  *metrics.Registry
	log      zerolog.Logger
}

// NewService creates a funding service.
func NewService(repo *Repository, ledger Ledger, recorder Recorder, gate PauseGate, sink domain.DisbursementSink, eventManager *events.Manager, m *metrics.Registry, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledger,
		recorder: recorder,
		gate:     gate,
		sink:     sink,
		events:   eventManager,
		metrics:  m,
		log:      log.With().Str("service", "funding").Logger(),
	}
}

// Seed registers the configured pools.
func (s *Service) Seed(pools []Pool) error {
	for _, p := range pools {
		if err := s.repo.Upsert(p); err != nil {
			return err
		}
	}
	return nil
}

// FundPool routes category funds to a named external pool.
func (s *Service) FundPool(ctx context.Context, name string, amount int64) (*Pool, error) {
	if err := s.gate.Check(); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: funding must be positive, got %d", domain.ErrInvalidAmount, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.repo.Get(name)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Reserve(pool.Category, amount); err != nil {
		return nil, err
	}

	if err := s.sink.Disburse(ctx, pool.Recipient, amount, "pool:"+name); err != nil {
		if relErr := s.ledger.Release(pool.Category, amount); relErr != nil {
			s.log.Error().Err(relErr).Str("pool", name).Msg("Failed to release reservation after funding failure")
		}
		return nil, err
	}

	if err := s.ledger.Spend(pool.Category, amount); err != nil {
		s.log.Error().Err(err).Str("pool", name).Msg("Spend failed after successful pool funding")
		return nil, err
	}
	if err := s.repo.AddFunded(name, amount); err != nil {
		s.log.Error().Err(err).Str("pool", name).Msg("Failed to update funded total")
	}

	if _, err := s.recorder.RecordDistribution(pool.Recipient, amount, pool.Category, domain.KindExternalFunding); err != nil {
		s.log.Error().Err(err).Str("pool", name).Msg("Failed to record pool funding")
	}

	s.events.Emit(events.PoolFunded, "funding", map[string]interface{}{
		"pool":   name,
		"amount": amount,
	})
	s.log.Info().Str("pool", name).Int64("amount", amount).Msg("Pool funded")

	pool.TotalFunded += amount
	return pool, nil
}

// List returns all pools.
func (s *Service) List() ([]Pool, error) {
	return s.repo.List()
}
