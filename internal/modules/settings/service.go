package settings

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/domain"
	"github.com/aristath/treasury/internal/events"
)

// Defaults carries the environment-derived fallback values used when a key
// has never been written to the database.
type Defaults struct {
	MultisigThreshold           int
	TimelockSeconds             int64
	LargeWithdrawalThresholdBps int64
}

// Service provides typed access to governance parameters.
type Service struct {
	repo     *Repository
	defaults Defaults
	events   *events.Manager
	log      zerolog.Logger
}

// NewService creates a new settings service.
func NewService(repo *Repository, defaults Defaults, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		defaults: defaults,
		events:   eventManager,
		log:      log.With().Str("service", "settings").Logger(),
	}
}

// MultisigThreshold returns the number of approvals a large withdrawal needs.
func (s *Service) MultisigThreshold() (int, error) {
	return s.repo.GetInt(KeyMultisigThreshold, s.defaults.MultisigThreshold)
}

// TimelockSeconds returns the delay imposed on large withdrawals.
func (s *Service) TimelockSeconds() (int64, error) {
	return s.repo.GetInt64(KeyTimelockSeconds, s.defaults.TimelockSeconds)
}

// LargeWithdrawalThresholdBps returns the share of the global balance, in
// basis points, above which a withdrawal counts as large.
func (s *Service) LargeWithdrawalThresholdBps() (int64, error) {
	return s.repo.GetInt64(KeyLargeWithdrawalThresholdBps, s.defaults.LargeWithdrawalThresholdBps)
}

// Paused reports whether the treasury is paused.
func (s *Service) Paused() (bool, error) {
	return s.repo.GetBool(KeyPaused, false)
}

// SetPaused persists the pause flag. Called by the emergency controller.
func (s *Service) SetPaused(paused bool) error {
	return s.repo.SetBool(KeyPaused, paused)
}

// GetAll returns every stored setting.
func (s *Service) GetAll() (map[string]string, error) {
	return s.repo.GetAll()
}

// Update validates and stores a governance parameter, then emits an event.
// The pause flag is not updatable here; it belongs to the emergency API.
func (s *Service) Update(key string, value int64) error {
	switch key {
	case KeyMultisigThreshold:
		if value < 1 {
			return fmt.Errorf("%w: multisig threshold must be at least 1", domain.ErrInvalidAmount)
		}
	case KeyTimelockSeconds:
		if value < 0 {
			return fmt.Errorf("%w: timelock must not be negative", domain.ErrInvalidAmount)
		}
	case KeyLargeWithdrawalThresholdBps:
		if value < 0 || value > domain.BpsDenominator {
			return fmt.Errorf("%w: threshold bps must be between 0 and %d", domain.ErrInvalidAmount, domain.BpsDenominator)
		}
	default:
		return fmt.Errorf("unknown setting key: %s", key)
	}

	if err := s.repo.SetInt64(key, value); err != nil {
		return fmt.Errorf("failed to update setting %s: %w", key, err)
	}

	s.log.Info().Str("key", key).Int64("value", value).Msg("Setting updated")
	s.events.Emit(events.SettingsUpdated, "settings", map[string]interface{}{
		"key":   key,
		"value": value,
	})
	return nil
}
