package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	DepositReceived EventType = "DEPOSIT_RECEIVED"
	PolicyUpdated   EventType = "POLICY_UPDATED"
	FundsReserved   EventType = "FUNDS_RESERVED"
	FundsReleased   EventType = "FUNDS_RELEASED"
	Rebalanced      EventType = "REBALANCED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"

	// Withdrawal lifecycle events
	WithdrawalProposed  EventType = "WITHDRAWAL_PROPOSED"
	WithdrawalApproved  EventType = "WITHDRAWAL_APPROVED"
	WithdrawalExecuted  EventType = "WITHDRAWAL_EXECUTED"
	WithdrawalCancelled EventType = "WITHDRAWAL_CANCELLED"

	// Batch distribution events
	BatchProposed  EventType = "BATCH_PROPOSED"
	BatchExecuted  EventType = "BATCH_EXECUTED"
	BatchCancelled EventType = "BATCH_CANCELLED"

	// Emergency events
	TreasuryPaused      EventType = "TREASURY_PAUSED"
	TreasuryResumed     EventType = "TREASURY_RESUMED"
	EmergencyWithdrawal EventType = "EMERGENCY_WITHDRAWAL"
	EmergencyRecovery   EventType = "EMERGENCY_RECOVERY"

	// Pool events
	PoolFunded EventType = "POOL_FUNDED"

	// Maintenance events
	BackupCompleted EventType = "BACKUP_COMPLETED"
	SettingsUpdated EventType = "SETTINGS_UPDATED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Manager handles event emission, logging, and subscriber fan-out.
type Manager struct {
	log zerolog.Logger

	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:         log.With().Str("service", "events").Logger(),
		subscribers: make(map[int]chan Event),
	}
}

// Emit emits an event
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Module:    module,
	}

	// Log event
	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subscribers {
		// Slow consumers miss events rather than block emitters.
		select {
		case ch <- event:
		default:
		}
	}
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	m.Emit(ErrorOccurred, module, data)
}

// Subscribe registers a new event subscriber. The returned channel receives
// every event emitted after the call; cancel releases it.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Event, 64)
	m.subscribers[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}
