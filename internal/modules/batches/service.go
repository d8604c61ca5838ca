package batches

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/events"
	"github.com/aristath/treasury/internal/metrics"
)

// Ledger is the slice of the category ledger the workflow needs.
type Ledger interface {
	HasSufficientFunds(category domain.Category, amount int64) bool
	Reserve(category domain.Category, amount int64) error
	Release(category domain.Category, amount int64) error
	Spend(category domain.Category, amount int64) error
}

// Recorder appends executed batch legs to the historical ledger.
type Recorder interface {
	RecordDistribution(recipient string, amount int64, category domain.Category, kind domain.TransactionKind) (int64, error)
}

// PauseGate rejects mutating entry points while the treasury is paused.
type PauseGate interface {
	Check() error
}

// Service drives batch distributions. The sum is reserved at proposal time;
// execution sends everything through the sink's atomic batch call, so either
// every recipient is paid or the reservation stays untouched.
type Service struct {
	mu       sync.Mutex
	inFlight map[string]bool

	repo     *Repository
	ledger   Ledger
	recorder Recorder
	gate     PauseGate
	sink     domain.DisbursementSink
	events   *events.Manager
	metrics  *metrics.Registry
	log      zerolog.Logger
}

// NewService creates a batch distribution service.
func NewService(repo *Repository, ledger Ledger, recorder Recorder, gate PauseGate, sink domain.DisbursementSink, eventManager *events.Manager, m *metrics.Registry, log zerolog.Logger) *Service {
	return &Service{
		inFlight: make(map[string]bool),
		repo:     repo,
		ledger:   ledger,
		recorder: recorder,
		gate:     gate,
		sink:     sink,
		events:   eventManager,
		metrics:  m,
		log:      log.With().Str("service", "batches").Logger(),
	}
}

// Propose validates the recipient and amount arrays, reserves their sum, and
// stores the batch unexecuted.
func (s *Service) Propose(recipients []string, amounts []int64, category domain.Category, description string) (*domain.BatchDistribution, error) {
	if err := s.gate.Check(); err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: empty batch", domain.ErrInvalidRecipient)
	}
	if len(recipients) != len(amounts) {
		return nil, fmt.Errorf("%w: %d recipients, %d amounts", domain.ErrArrayLengthMismatch, len(recipients), len(amounts))
	}

	var total int64
	for i, recipient := range recipients {
		if recipient == "" {
			return nil, fmt.Errorf("%w: empty recipient at index %d", domain.ErrInvalidRecipient, i)
		}
		if amounts[i] <= 0 {
			return nil, fmt.Errorf("%w: amount at index %d must be positive, got %d", domain.ErrInvalidAmount, i, amounts[i])
		}
		total += amounts[i]
	}

	if !s.ledger.HasSufficientFunds(category, total) {
		return nil, fmt.Errorf("%w: category %s cannot cover %d", domain.ErrInsufficientFunds, category, total)
	}
	if err := s.ledger.Reserve(category, total); err != nil {
		return nil, err
	}

	b := &domain.BatchDistribution{
		ID:          uuid.New().String(),
		Recipients:  recipients,
		Amounts:     amounts,
		Category:    category,
		Description: description,
		TotalAmount: total,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.Save(b); err != nil {
		if relErr := s.ledger.Release(category, total); relErr != nil {
			s.log.Error().Err(relErr).Str("id", b.ID).Msg("Failed to release reservation after save failure")
		}
		return nil, err
	}

	s.metrics.BatchesTotal.WithLabelValues("proposed").Inc()
	s.events.Emit(events.BatchProposed, "batches", map[string]interface{}{
		"id":         b.ID,
		"recipients": len(recipients),
		"total":      total,
		"category":   string(category),
	})
	s.log.Info().
		Str("id", b.ID).
		Int("recipients", len(recipients)).
		Int64("total", total).
		Msg("Batch proposed")
	return b, nil
}

// Execute pays every recipient in one atomic step. Any failure leaves the
// batch unexecuted with its reservation intact.
func (s *Service) Execute(ctx context.Context, id string) (*domain.BatchDistribution, error) {
	if err := s.gate.Check(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	b, err := s.openLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	payments := make([]domain.Payment, len(b.Recipients))
	for i, recipient := range b.Recipients {
		payments[i] = domain.Payment{Recipient: recipient, Amount: b.Amounts[i]}
	}

	s.inFlight[id] = true
	s.mu.Unlock()

	err = s.sink.DisburseBatch(ctx, payments, "batch:"+id)

	s.mu.Lock()
	delete(s.inFlight, id)
	if err != nil {
		s.mu.Unlock()
		s.metrics.BatchesTotal.WithLabelValues("disbursement_failed").Inc()
		s.log.Warn().Err(err).Str("id", id).Msg("Batch disbursement failed, reservation intact")
		return nil, err
	}

	if err := s.ledger.Spend(b.Category, b.TotalAmount); err != nil {
		s.mu.Unlock()
		s.log.Error().Err(err).Str("id", id).Msg("Spend failed after successful batch disbursement")
		return nil, err
	}

	b.Executed = true
	if err := s.repo.Save(b); err != nil {
		s.mu.Unlock()
		s.log.Error().Err(err).Str("id", id).Msg("Failed to persist executed batch")
		return nil, err
	}
	s.mu.Unlock()

	for i, recipient := range b.Recipients {
		if _, err := s.recorder.RecordDistribution(recipient, b.Amounts[i], b.Category, domain.KindBatchDistribution); err != nil {
			s.log.Error().Err(err).Str("id", id).Str("recipient", recipient).Msg("Failed to record batch leg")
		}
	}

	s.metrics.BatchesTotal.WithLabelValues("executed").Inc()
	s.events.Emit(events.BatchExecuted, "batches", map[string]interface{}{
		"id":         id,
		"recipients": len(b.Recipients),
		"total":      b.TotalAmount,
	})
	s.log.Info().Str("id", id).Int64("total", b.TotalAmount).Msg("Batch executed")
	return b, nil
}

// Cancel voids an unexecuted batch and returns its reservation to available.
func (s *Service) Cancel(id string) (*domain.BatchDistribution, error) {
	if err := s.gate.Check(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	b, err := s.openLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	b.Cancelled = true
	if err := s.repo.Save(b); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	if err := s.ledger.Release(b.Category, b.TotalAmount); err != nil {
		s.log.Error().Err(err).Str("id", id).Msg("Failed to release reservation on cancel")
	}

	s.metrics.BatchesTotal.WithLabelValues("cancelled").Inc()
	s.events.Emit(events.BatchCancelled, "batches", map[string]interface{}{
		"id":    id,
		"total": b.TotalAmount,
	})
	s.log.Info().Str("id", id).Msg("Batch cancelled")
	return b, nil
}

// Get returns one batch.
func (s *Service) Get(id string) (*domain.BatchDistribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Get(id)
}

// List returns all batches.
func (s *Service) List() ([]domain.BatchDistribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.List()
}

// openLocked loads a batch that must be neither executed, cancelled, nor
// mid-execution. Caller holds the lock.
func (s *Service) openLocked(id string) (*domain.BatchDistribution, error) {
	if s.inFlight[id] {
		return nil, fmt.Errorf("%w: %s has a disbursement outstanding", domain.ErrBatchExecuted, id)
	}
	b, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if b.Executed || b.Cancelled {
		return nil, fmt.Errorf("%w: %s", domain.ErrBatchExecuted, id)
	}
	return b, nil
}
