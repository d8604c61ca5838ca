package withdrawals

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

// Recorder appends executed withdrawals to the historical ledger.
type Recorder interface {
	RecordDistribution(recipient string, amount int64, category domain.Category, kind domain.TransactionKind) (int64, error)
	GetBalance() int64
}

// Governance reads the runtime approval parameters.
type Governance interface {
	MultisigThreshold() (int, error)
	TimelockSeconds() (int64, error)
	LargeWithdrawalThresholdBps() (int64, error)
}

// PauseGate rejects mutating entry points while the treasury is paused.
type PauseGate interface {
	Check() error
}

// Service drives the proposal state machine. A single mutex serializes all
// proposal bookkeeping; the in-flight set blocks any mutation of a proposal
// whose disbursement is outstanding, which also bars re-entrant execution.
type Service struct {
	mu       sync.Mutex
	inFlight map[string]bool

	repo       *Repository
	ledger     Ledger
	recorder   Recorder
	governance Governance
	gate       PauseGate
	sink       domain.DisbursementSink
	events     *events.Manager
	metrics    *metrics.Registry
	log        zerolog.Logger
}

// NewService creates a withdrawal workflow service.
func NewService(repo *Repository, ledger Ledger, recorder Recorder, governance Governance, gate PauseGate, sink domain.DisbursementSink, eventManager *events.Manager, m *metrics.Registry, log zerolog.Logger) *Service {
	return &Service{
		inFlight:   make(map[string]bool),
		repo:       repo,
		ledger:     ledger,
		recorder:   recorder,
		governance: governance,
		gate:       gate,
		sink:       sink,
		events:     eventManager,
		metrics:    m,
		log:        log.With().Str("service", "withdrawals").Logger(),
	}
}

// Propose creates a PENDING proposal and reserves its amount. A proposal is
// large when its amount exceeds the configured share of the global balance,
// not of the category balance; large proposals carry a timelock.
func (s *Service) Propose(proposer, recipient string, amount int64, category domain.Category, description string) (*domain.WithdrawalProposal, error) {
	if err := s.gate.Check(); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: withdrawal must be positive, got %d", domain.ErrInvalidAmount, amount)
	}
	if recipient == "" {
		return nil, fmt.Errorf("%w: empty recipient", domain.ErrInvalidRecipient)
	}
	if !s.ledger.HasSufficientFunds(category, amount) {
		return nil, fmt.Errorf("%w: category %s cannot cover %d", domain.ErrInsufficientFunds, category, amount)
	}

	thresholdBps, err := s.governance.LargeWithdrawalThresholdBps()
	if err != nil {
		return nil, err
	}
	timelock, err := s.governance.TimelockSeconds()
	if err != nil {
		return nil, err
	}

	balance := s.recorder.GetBalance()
	isLarge := amount > balance*thresholdBps/domain.BpsDenominator

	now := time.Now().UTC()
	executionTime := now
	if isLarge {
		executionTime = now.Add(time.Duration(timelock) * time.Second)
	}

	if err := s.ledger.Reserve(category, amount); err != nil {
		return nil, err
	}

	p := &domain.WithdrawalProposal{
		ID:            uuid.New().String(),
		Proposer:      proposer,
		Recipient:     recipient,
		Amount:        amount,
		Category:      category,
		Description:   description,
		CreatedAt:     now,
		ExecutionTime: executionTime,
		Status:        domain.ProposalPending,
		Approvals:     []string{},
		IsLarge:       isLarge,
	}

	if err := s.repo.Save(p); err != nil {
		if relErr := s.ledger.Release(category, amount); relErr != nil {
			s.log.Error().Err(relErr).Str("id", p.ID).Msg("Failed to release reservation after save failure")
		}
		return nil, err
	}

	s.metrics.ProposalsTotal.WithLabelValues("proposed").Inc()
	s.events.Emit(events.WithdrawalProposed, "withdrawals", map[string]interface{}{
		"id":        p.ID,
		"recipient": recipient,
		"amount":    amount,
		"category":  string(category),
		"is_large":  isLarge,
	})
	s.log.Info().
		Str("id", p.ID).
		Str("proposer", proposer).
		Int64("amount", amount).
		Bool("is_large", isLarge).
		Msg("Withdrawal proposed")
	return p, nil
}

// Approve adds an approver to a PENDING proposal. When the approval reaches
// quorum and the timelock has expired, the same call executes the proposal.
func (s *Service) Approve(ctx context.Context, id, approver string) (*domain.WithdrawalProposal, error) {
	if err := s.gate.Check(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	p, err := s.pendingLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if p.HasApproval(approver) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s already approved %s", domain.ErrAlreadyApproved, approver, id)
	}

	p.Approvals = append(p.Approvals, approver)
	if err := s.repo.Save(p); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.events.Emit(events.WithdrawalApproved, "withdrawals", map[string]interface{}{
		"id":        id,
		"approver":  approver,
		"approvals": len(p.Approvals),
	})

	threshold, err := s.governance.MultisigThreshold()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if len(p.Approvals) < threshold || time.Now().Before(p.ExecutionTime) {
		s.mu.Unlock()
		return p, nil
	}

	// Quorum reached and timelock expired: this approve call executes.
	return s.finishExecution(ctx, p)
}

// Execute runs a PENDING proposal once quorum and timelock already hold.
func (s *Service) Execute(ctx context.Context, id string) (*domain.WithdrawalProposal, error) {
	if err := s.gate.Check(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	p, err := s.pendingLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	threshold, err := s.governance.MultisigThreshold()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if len(p.Approvals) < threshold {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d of %d approvals", domain.ErrInsufficientApprovals, len(p.Approvals), threshold)
	}
	if time.Now().Before(p.ExecutionTime) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: executable at %s", domain.ErrTimelockNotExpired, p.ExecutionTime.Format(time.RFC3339))
	}

	return s.finishExecution(ctx, p)
}

// finishExecution disburses and settles a proposal. Entered with the mutex
// held; returns with it released. The proposal stays PENDING and in-flight
// while the disbursement call is outstanding, so a failed transfer leaves
// every ledger field exactly as it was.
func (s *Service) finishExecution(ctx context.Context, p *domain.WithdrawalProposal) (*domain.WithdrawalProposal, error) {
	s.inFlight[p.ID] = true
	s.mu.Unlock()

	err := s.sink.Disburse(ctx, p.Recipient, p.Amount, "withdrawal:"+p.ID)

	s.mu.Lock()
	delete(s.inFlight, p.ID)
	if err != nil {
		s.mu.Unlock()
		s.metrics.ProposalsTotal.WithLabelValues("disbursement_failed").Inc()
		s.log.Warn().Err(err).Str("id", p.ID).Msg("Disbursement failed, proposal stays pending")
		return nil, err
	}

	if err := s.ledger.Spend(p.Category, p.Amount); err != nil {
		// Funds already left custody; this must not happen.
		s.mu.Unlock()
		s.log.Error().Err(err).Str("id", p.ID).Msg("Spend failed after successful disbursement")
		return nil, err
	}

	p.Status = domain.ProposalExecuted
	if err := s.repo.Save(p); err != nil {
		s.mu.Unlock()
		s.log.Error().Err(err).Str("id", p.ID).Msg("Failed to persist executed proposal")
		return nil, err
	}
	s.mu.Unlock()

	balance, err := s.recorder.RecordDistribution(p.Recipient, p.Amount, p.Category, domain.KindWithdrawal)
	if err != nil {
		s.log.Error().Err(err).Str("id", p.ID).Msg("Failed to record withdrawal history")
	}

	s.metrics.ProposalsTotal.WithLabelValues("executed").Inc()
	s.events.Emit(events.WithdrawalExecuted, "withdrawals", map[string]interface{}{
		"id":        p.ID,
		"recipient": p.Recipient,
		"amount":    p.Amount,
		"balance":   balance,
	})
	s.log.Info().
		Str("id", p.ID).
		Str("recipient", p.Recipient).
		Int64("amount", p.Amount).
		Msg("Withdrawal executed")
	return p, nil
}

// Cancel voids a PENDING proposal and returns its reservation to available.
func (s *Service) Cancel(id string) (*domain.WithdrawalProposal, error) {
	if err := s.gate.Check(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	p, err := s.pendingLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	p.Status = domain.ProposalCancelled
	if err := s.repo.Save(p); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	if err := s.ledger.Release(p.Category, p.Amount); err != nil {
		s.log.Error().Err(err).Str("id", id).Msg("Failed to release reservation on cancel")
	}

	s.metrics.ProposalsTotal.WithLabelValues("cancelled").Inc()
	s.events.Emit(events.WithdrawalCancelled, "withdrawals", map[string]interface{}{
		"id":     id,
		"amount": p.Amount,
	})
	s.log.Info().Str("id", id).Msg("Withdrawal cancelled")
	return p, nil
}

// Get returns one proposal.
func (s *Service) Get(id string) (*domain.WithdrawalProposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Get(id)
}

// List returns proposals, optionally filtered by status.
func (s *Service) List(status domain.ProposalStatus) ([]domain.WithdrawalProposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.List(status)
}

// pendingLocked loads a proposal that must be PENDING and not mid-execution.
// Caller holds the lock.
func (s *Service) pendingLocked(id string) (*domain.WithdrawalProposal, error) {
	if s.inFlight[id] {
		return nil, fmt.Errorf("%w: %s has a disbursement outstanding", domain.ErrProposalNotPending, id)
	}
	p, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.ProposalPending {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrProposalNotPending, id, p.Status)
	}
	return p, nil
}
