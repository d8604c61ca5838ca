// Package emergency implements the pause gate and the privileged bypass
// paths: direct withdrawal and the full-balance recovery sweep. Both bypass
// the category ledger entirely; they are escape hatches, not workflows.
package emergency

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/events"
	"github.com/aristath/treasury/internal/metrics"
)

// Recorder appends emergency movements to the historical ledger.
type Recorder interface {
	RecordEmergency(recipient string, amount int64, kind domain.TransactionKind) (int64, error)
	GetBalance() int64
}

// PauseStore persists the pause flag across restarts.
type PauseStore interface {
	Paused() (bool, error)
	SetPaused(paused bool) error
}

// Controller owns the ACTIVE/PAUSED state and the bypass operations. Its
// Check method is the pause gate every other module consults.
type Controller struct {
	mu     sync.Mutex
	paused bool

	store    PauseStore
	recorder Recorder
	sink     domain.DisbursementSink
	events   *events.Manager
	metrics  *metrics.Registry
	log      zerolog.Logger
}

// NewController creates an emergency controller. Call Init before use.
func NewController(store PauseStore, recorder Recorder, sink domain.DisbursementSink, eventManager *events.Manager, m *metrics.Registry, log zerolog.Logger) *Controller {
	return &Controller{
		store:    store,
		recorder: recorder,
		sink:     sink,
		events:   eventManager,
		metrics:  m,
		log:      log.With().Str("service", "emergency").Logger(),
	}
}

// Init restores the persisted pause state.
func (c *Controller) Init() error {
	paused, err := c.store.Paused()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.paused = paused
	c.mu.Unlock()
	if paused {
		c.log.Warn().Msg("Treasury starts paused")
	}
	return nil
}

// Check returns ErrPaused while the treasury is paused.
func (c *Controller) Check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return domain.ErrPaused
	}
	return nil
}

// Paused reports the current state.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Pause halts every mutating entry point except the emergency paths.
func (c *Controller) Pause(principal string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		return nil
	}
	if err := c.store.SetPaused(true); err != nil {
		return fmt.Errorf("failed to persist pause: %w", err)
	}
	c.paused = true

	c.events.Emit(events.TreasuryPaused, "emergency", map[string]interface{}{
		"principal": principal,
	})
	c.log.Warn().Str("principal", principal).Msg("Treasury paused")
	return nil
}

// Resume lifts the pause.
func (c *Controller) Resume(principal string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.paused {
		return nil
	}
	if err := c.store.SetPaused(false); err != nil {
		return fmt.Errorf("failed to persist resume: %w", err)
	}
	c.paused = false

	c.events.Emit(events.TreasuryResumed, "emergency", map[string]interface{}{
		"principal": principal,
	})
	c.log.Warn().Str("principal", principal).Msg("Treasury resumed")
	return nil
}

// Withdraw disburses directly against the global balance, bypassing the
// category system. Works in both ACTIVE and PAUSED states.
func (c *Controller) Withdraw(ctx context.Context, recipient string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: emergency withdrawal must be positive, got %d", domain.ErrInvalidAmount, amount)
	}
	if recipient == "" {
		return 0, fmt.Errorf("%w: empty recipient", domain.ErrInvalidRecipient)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	balance := c.recorder.GetBalance()
	if amount > balance {
		return 0, fmt.Errorf("%w: balance %d cannot cover %d", domain.ErrInsufficientFunds, balance, amount)
	}

	if err := c.sink.Disburse(ctx, recipient, amount, "emergency:"+reason); err != nil {
		return 0, err
	}

	newBalance, err := c.recorder.RecordEmergency(recipient, amount, domain.KindEmergencyWithdrawal)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to record emergency withdrawal")
	}

	c.events.Emit(events.EmergencyWithdrawal, "emergency", map[string]interface{}{
		"recipient": recipient,
		"amount":    amount,
		"reason":    reason,
		"balance":   newBalance,
	})
	c.log.Warn().
		Str("recipient", recipient).
		Int64("amount", amount).
		Str("reason", reason).
		Msg("Emergency withdrawal")
	return newBalance, nil
}

// Recovery sweeps the entire remaining balance to the calling principal.
// Strictly for catastrophic recovery.
func (c *Controller) Recovery(ctx context.Context, principal string) (int64, error) {
	if principal == "" {
		return 0, fmt.Errorf("%w: empty principal", domain.ErrInvalidRecipient)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	balance := c.recorder.GetBalance()
	if balance <= 0 {
		return 0, fmt.Errorf("%w: nothing to recover", domain.ErrInsufficientFunds)
	}

	if err := c.sink.Disburse(ctx, principal, balance, "recovery"); err != nil {
		return 0, err
	}

	if _, err := c.recorder.RecordEmergency(principal, balance, domain.KindRecovery); err != nil {
		c.log.Error().Err(err).Msg("Failed to record recovery sweep")
	}

	c.events.Emit(events.EmergencyRecovery, "emergency", map[string]interface{}{
		"principal": principal,
		"amount":    balance,
	})
	c.log.Warn().Str("principal", principal).Int64("amount", balance).Msg("Emergency recovery sweep")
	return balance, nil
}
