package ledger

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/database"
	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/events"
	"github.com/aristath/treasury/internal/metrics"
)

// PauseGate rejects mutating entry points while the treasury is paused.
type PauseGate interface {
	Check() error
}

// Recorder appends deposit movements to the historical ledger and returns
// the post-operation global balance. RecordDeposit counts a policy
// application; RecordCategoryDeposit does not.
type Recorder interface {
	RecordDeposit(source string, amount int64, description string) (int64, error)
	RecordCategoryDeposit(source string, amount int64, description string) (int64, error)
}

// Service is the single serialization point for every category mutation.
// All state lives behind one mutex; reads return copies, never aliases.
type Service struct {
	mu sync.Mutex

	db       *sql.DB
	repo     *Repository
	gate     PauseGate
	recorder Recorder
	events   *events.Manager
	metrics  *metrics.Registry
	log      zerolog.Logger

	allocations map[domain.Category]*domain.CategoryAllocation
	policy      *domain.AllocationPolicy
}

// NewService creates a ledger service. Call Init before use.
func NewService(db *sql.DB, repo *Repository, gate PauseGate, recorder Recorder, eventManager *events.Manager, m *metrics.Registry, log zerolog.Logger) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		gate:     gate,
		recorder: recorder,
		events:   eventManager,
		metrics:  m,
		log:      log.With().Str("service", "ledger").Logger(),
	}
}

// Init loads persisted state and, on first run, installs the seed policy.
func (s *Service) Init(seed []domain.PolicyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	allocations, err := s.repo.LoadAllocations()
	if err != nil {
		return err
	}
	s.allocations = allocations

	policy, err := s.repo.LoadPolicy()
	if err != nil {
		return err
	}
	if policy == nil {
		policy = &domain.AllocationPolicy{Entries: seed, UpdatedAt: time.Now().UTC()}
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("seed policy invalid: %w", err)
		}
		err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
			return s.repo.SavePolicyTx(tx, policy)
		})
		if err != nil {
			return err
		}
		s.log.Info().Int("categories", len(policy.Entries)).Msg("Seed policy installed")
	}
	s.policy = policy

	// Every policy category gets an allocation record, zeroed if new.
	for _, c := range policy.Categories() {
		if s.allocations[c] == nil {
			s.allocations[c] = &domain.CategoryAllocation{Category: c}
		}
	}

	s.refreshGauges()
	return nil
}

// Deposit splits an incoming amount across categories per the current
// policy. The last policy category absorbs the integer remainder so the
// increments sum to exactly the deposited amount.
func (s *Service) Deposit(source string, amount int64, description string) (map[domain.Category]int64, error) {
	if err := s.gate.Check(); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: deposit must be positive, got %d", domain.ErrInvalidAmount, amount)
	}

	s.mu.Lock()
	increments := s.splitByPolicy(amount)
	for category, inc := range increments {
		alloc := s.allocations[category]
		alloc.TotalAllocated += inc
		alloc.Available += inc
	}

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		for category := range increments {
			if err := s.repo.SaveAllocationTx(tx, s.allocations[category]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Undo the in-memory update so state matches the database.
		for category, inc := range increments {
			alloc := s.allocations[category]
			alloc.TotalAllocated -= inc
			alloc.Available -= inc
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to persist deposit: %w", err)
	}
	s.refreshGauges()
	s.mu.Unlock()

	balance, err := s.recorder.RecordDeposit(source, amount, description)
	if err != nil {
		s.reportRecordFailure("deposit", source, amount, err)
	}

	for category, inc := range increments {
		s.metrics.DepositsTotal.WithLabelValues(string(category)).Add(float64(inc))
	}
	s.events.Emit(events.DepositReceived, "ledger", map[string]interface{}{
		"source":  source,
		"amount":  amount,
		"balance": balance,
	})

	s.log.Info().
		Str("source", source).
		Int64("amount", amount).
		Int64("balance", balance).
		Msg("Deposit applied")
	return increments, nil
}

// DepositToCategory credits a single category directly, bypassing the
// policy split. Used for deposits that arrive with a category hint.
func (s *Service) DepositToCategory(source string, amount int64, category domain.Category, description string) error {
	if err := s.gate.Check(); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: deposit must be positive, got %d", domain.ErrInvalidAmount, amount)
	}

	s.mu.Lock()
	alloc, err := s.allocation(category)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	alloc.TotalAllocated += amount
	alloc.Available += amount
	if err := s.persistAllocation(alloc); err != nil {
		alloc.TotalAllocated -= amount
		alloc.Available -= amount
		s.mu.Unlock()
		return err
	}
	s.refreshGauges()
	s.mu.Unlock()

	balance, err := s.recorder.RecordCategoryDeposit(source, amount, description)
	if err != nil {
		s.reportRecordFailure("category deposit", source, amount, err)
	}

	s.metrics.DepositsTotal.WithLabelValues(string(category)).Add(float64(amount))
	s.events.Emit(events.DepositReceived, "ledger", map[string]interface{}{
		"source":   source,
		"amount":   amount,
		"category": string(category),
		"balance":  balance,
	})
	return nil
}

// splitByPolicy computes per-category increments. Caller holds the lock.
func (s *Service) splitByPolicy(amount int64) map[domain.Category]int64 {
	increments := make(map[domain.Category]int64, len(s.policy.Entries))
	var allocated int64
	for i, entry := range s.policy.Entries {
		if i == len(s.policy.Entries)-1 {
			increments[entry.Category] = amount - allocated
			break
		}
		share := amount * entry.Bps / domain.BpsDenominator
		increments[entry.Category] = share
		allocated += share
	}
	return increments
}

// UpdatePolicy validates and installs a new allocation policy, rebalancing
// every category's ceiling against the total allocated sum. Spent and
// reserved amounts are untouched; a new ceiling below a category's
// spent+reserved is rejected outright.
func (s *Service) UpdatePolicy(entries []domain.PolicyEntry) error {
	if err := s.gate.Check(); err != nil {
		return err
	}

	policy := &domain.AllocationPolicy{Entries: entries, UpdatedAt: time.Now().UTC()}
	if err := policy.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var base int64
	for _, alloc := range s.allocations {
		base += alloc.TotalAllocated
	}

	// Compute new ceilings, remainder to the last policy category.
	targets := make(map[domain.Category]int64, len(entries))
	var assigned int64
	for i, entry := range entries {
		if i == len(entries)-1 {
			targets[entry.Category] = base - assigned
			break
		}
		share := base * entry.Bps / domain.BpsDenominator
		targets[entry.Category] = share
		assigned += share
	}

	// A category absent from the new policy keeps nothing; it must be empty.
	for category, alloc := range s.allocations {
		if _, ok := targets[category]; !ok {
			if alloc.TotalSpent != 0 || alloc.Reserved != 0 {
				return fmt.Errorf("%w: category %s holds funds and is absent from new policy", domain.ErrInsufficientFunds, category)
			}
			if alloc.TotalAllocated != 0 {
				return fmt.Errorf("%w: category %s has allocated funds and is absent from new policy", domain.ErrInsufficientFunds, category)
			}
		}
	}
	for category, target := range targets {
		alloc := s.allocations[category]
		if alloc == nil {
			continue
		}
		if target < alloc.TotalSpent+alloc.Reserved {
			return fmt.Errorf("%w: new ceiling %d for %s is below spent+reserved %d",
				domain.ErrInsufficientFunds, target, category, alloc.TotalSpent+alloc.Reserved)
		}
	}

	prev := make(map[domain.Category]domain.CategoryAllocation, len(s.allocations))
	for c, alloc := range s.allocations {
		prev[c] = *alloc
	}

	for category, target := range targets {
		alloc := s.allocations[category]
		if alloc == nil {
			alloc = &domain.CategoryAllocation{Category: category}
			s.allocations[category] = alloc
		}
		alloc.TotalAllocated = target
		alloc.Available = alloc.TotalAllocated - alloc.TotalSpent - alloc.Reserved
	}

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if err := s.repo.SavePolicyTx(tx, policy); err != nil {
			return err
		}
		for _, alloc := range s.allocations {
			if err := s.repo.SaveAllocationTx(tx, alloc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for c := range s.allocations {
			if old, ok := prev[c]; ok {
				*s.allocations[c] = old
			} else {
				delete(s.allocations, c)
			}
		}
		return fmt.Errorf("failed to persist policy: %w", err)
	}

	s.policy = policy
	s.refreshGauges()

	s.events.Emit(events.PolicyUpdated, "ledger", map[string]interface{}{
		"categories": len(entries),
	})
	s.log.Info().Int("categories", len(entries)).Msg("Allocation policy updated")
	return nil
}

// Reserve moves funds from available to reserved.
func (s *Service) Reserve(category domain.Category, amount int64) error {
	if err := s.gate.Check(); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: reservation must be positive, got %d", domain.ErrInvalidAmount, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alloc, err := s.allocation(category)
	if err != nil {
		return err
	}
	if alloc.Available < amount {
		return fmt.Errorf("%w: %s has %d available, need %d", domain.ErrInsufficientFunds, category, alloc.Available, amount)
	}

	alloc.Available -= amount
	alloc.Reserved += amount
	if err := s.persistAllocation(alloc); err != nil {
		alloc.Available += amount
		alloc.Reserved -= amount
		return err
	}

	s.refreshGauges()
	s.events.Emit(events.FundsReserved, "ledger", map[string]interface{}{
		"category": string(category),
		"amount":   amount,
	})
	return nil
}

// Release moves funds from reserved back to available.
func (s *Service) Release(category domain.Category, amount int64) error {
	if err := s.gate.Check(); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: release must be positive, got %d", domain.ErrInvalidAmount, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alloc, err := s.allocation(category)
	if err != nil {
		return err
	}
	if alloc.Reserved < amount {
		return fmt.Errorf("%w: %s has %d reserved, need %d", domain.ErrInsufficientReservation, category, alloc.Reserved, amount)
	}

	alloc.Reserved -= amount
	alloc.Available += amount
	if err := s.persistAllocation(alloc); err != nil {
		alloc.Reserved += amount
		alloc.Available -= amount
		return err
	}

	s.refreshGauges()
	s.events.Emit(events.FundsReleased, "ledger", map[string]interface{}{
		"category": string(category),
		"amount":   amount,
	})
	return nil
}

// Spend converts a reservation into spent funds. Not pause-gated: it is
// only reachable from an execution already past its own gate, and must
// succeed after a disbursement has gone out.
func (s *Service) Spend(category domain.Category, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: spend must be positive, got %d", domain.ErrInvalidAmount, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alloc, err := s.allocation(category)
	if err != nil {
		return err
	}
	if alloc.Reserved < amount {
		return fmt.Errorf("%w: %s has %d reserved, need %d", domain.ErrInsufficientReservation, category, alloc.Reserved, amount)
	}

	prev := *alloc
	alloc.Reserved -= amount
	alloc.TotalSpent += amount
	alloc.LastDistributionTime = time.Now().UTC()
	if err := s.persistAllocation(alloc); err != nil {
		*alloc = prev
		return err
	}

	s.refreshGauges()
	return nil
}

// Rebalance moves available funds from one category to another, adjusting
// both ceilings so each category's conservation invariant holds.
func (s *Service) Rebalance(from, to domain.Category, amount int64) error {
	if err := s.gate.Check(); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: rebalance must be positive, got %d", domain.ErrInvalidAmount, amount)
	}
	if from == to {
		return fmt.Errorf("%w: rebalance requires two distinct categories", domain.ErrInvalidCategory)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.allocation(from)
	if err != nil {
		return err
	}
	dst, err := s.allocation(to)
	if err != nil {
		return err
	}
	if src.Available < amount {
		return fmt.Errorf("%w: %s has %d available, need %d", domain.ErrInsufficientFunds, from, src.Available, amount)
	}

	prevSrc, prevDst := *src, *dst
	src.TotalAllocated -= amount
	src.Available -= amount
	dst.TotalAllocated += amount
	dst.Available += amount

	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if err := s.repo.SaveAllocationTx(tx, src); err != nil {
			return err
		}
		return s.repo.SaveAllocationTx(tx, dst)
	})
	if err != nil {
		*src, *dst = prevSrc, prevDst
		return fmt.Errorf("failed to persist rebalance: %w", err)
	}

	s.refreshGauges()
	s.events.Emit(events.Rebalanced, "ledger", map[string]interface{}{
		"from":   string(from),
		"to":     string(to),
		"amount": amount,
	})
	return nil
}

// HasSufficientFunds reports whether the category can cover the amount.
func (s *Service) HasSufficientFunds(category domain.Category, amount int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	alloc := s.allocations[category]
	return alloc != nil && alloc.Available >= amount
}

// GetAllocation returns a copy of one category's allocation.
func (s *Service) GetAllocation(category domain.Category) (domain.CategoryAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alloc := s.allocations[category]
	if alloc == nil {
		return domain.CategoryAllocation{}, fmt.Errorf("%w: %s", domain.ErrInvalidCategory, category)
	}
	return *alloc, nil
}

// GetAllocations returns copies of every allocation in policy order, with
// any off-policy categories appended.
func (s *Service) GetAllocations() []domain.CategoryAllocation {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[domain.Category]bool, len(s.allocations))
	out := make([]domain.CategoryAllocation, 0, len(s.allocations))
	for _, c := range s.policy.Categories() {
		if alloc := s.allocations[c]; alloc != nil {
			out = append(out, *alloc)
			seen[c] = true
		}
	}
	for c, alloc := range s.allocations {
		if !seen[c] {
			out = append(out, *alloc)
		}
	}
	return out
}

// GetPolicy returns a copy of the current allocation policy.
func (s *Service) GetPolicy() domain.AllocationPolicy {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy := domain.AllocationPolicy{
		Entries:   make([]domain.PolicyEntry, len(s.policy.Entries)),
		UpdatedAt: s.policy.UpdatedAt,
	}
	copy(policy.Entries, s.policy.Entries)
	return policy
}

// reportRecordFailure logs a failed history write and emits an error
// event so operators see the category book and the global balance
// counter diverging.
func (s *Service) reportRecordFailure(operation, source string, amount int64, err error) {
	s.log.Error().Err(err).
		Str("operation", operation).
		Str("source", source).
		Int64("amount", amount).
		Msg("Failed to record deposit history")
	s.events.EmitError("ledger", err, map[string]interface{}{
		"operation": operation,
		"source":    source,
		"amount":    amount,
	})
}

// allocation resolves a category or fails with ErrInvalidCategory.
// Caller holds the lock.
func (s *Service) allocation(category domain.Category) (*domain.CategoryAllocation, error) {
	alloc := s.allocations[category]
	if alloc == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCategory, category)
	}
	return alloc, nil
}

// persistAllocation writes one allocation row. Caller holds the lock.
func (s *Service) persistAllocation(alloc *domain.CategoryAllocation) error {
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		return s.repo.SaveAllocationTx(tx, alloc)
	})
	if err != nil {
		return fmt.Errorf("failed to persist allocation for %s: %w", alloc.Category, err)
	}
	return nil
}

// refreshGauges republishes category gauges. Caller holds the lock.
func (s *Service) refreshGauges() {
	for category, alloc := range s.allocations {
		s.metrics.CategoryAvailable.WithLabelValues(string(category)).Set(float64(alloc.Available))
		s.metrics.CategoryReserved.WithLabelValues(string(category)).Set(float64(alloc.Reserved))
		s.metrics.CategorySpent.WithLabelValues(string(category)).Set(float64(alloc.TotalSpent))
	}
}
