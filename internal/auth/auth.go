// Package auth implements role gating as a capability-set check against the
// calling principal. Role bootstrap happens outside the engine; the registry
// is fed from the configuration seed at startup.
package auth

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/domain"
)

// Capability is a single permitted operation class.
type Capability string

const (
	CapDeposit   Capability = "deposit"   // deposit funds
	CapPropose   Capability = "propose"   // propose/cancel withdrawals and batches
	CapApprove   Capability = "approve"   // approve/execute withdrawals and batches
	CapManage    Capability = "manage"    // policy updates, direct reserve/release, rebalance, pool funding
	CapEmergency Capability = "emergency" // pause/unpause, emergency withdraw
	CapAdmin     Capability = "admin"     // settings, emergency recovery
)

// roleCapabilities maps configured role names to capability sets.
// The admin role implies every capability.
var roleCapabilities = map[string][]Capability{
	"treasurer": {CapDeposit},
	"proposer":  {CapPropose},
	"approver":  {CapApprove},
	"manager":   {CapManage, CapDeposit},
	"emergency": {CapEmergency},
	"admin":     {CapDeposit, CapPropose, CapApprove, CapManage, CapEmergency, CapAdmin},
}

// Registry holds principal capability sets.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]map[Capability]bool
	log  zerolog.Logger
}

// NewRegistry creates an empty capability registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		caps: make(map[string]map[Capability]bool),
		log:  log.With().Str("service", "auth").Logger(),
	}
}

// Grant assigns the named roles to a principal.
func (r *Registry) Grant(principal string, roles []string) error {
	if principal == "" {
		return fmt.Errorf("principal must not be empty")
	}

	// Resolve every role before mutating so an unknown name leaves no
	// partial grant behind.
	var grants []Capability
	for _, role := range roles {
		caps, ok := roleCapabilities[role]
		if !ok {
			return fmt.Errorf("unknown role %q for principal %s", role, principal)
		}
		grants = append(grants, caps...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.caps[principal]
	if set == nil {
		set = make(map[Capability]bool)
		r.caps[principal] = set
	}
	for _, c := range grants {
		set[c] = true
	}

	r.log.Debug().Str("principal", principal).Strs("roles", roles).Msg("Roles granted")
	return nil
}

// Has reports whether the principal holds the capability.
func (r *Registry) Has(principal string, cap Capability) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps[principal][cap]
}

// Require returns ErrUnauthorized unless the principal holds the capability.
func (r *Registry) Require(principal string, cap Capability) error {
	if !r.Has(principal, cap) {
		return fmt.Errorf("%w: %s lacks %s", domain.ErrUnauthorized, principal, cap)
	}
	return nil
}

// Principals returns all known principals (for the settings API).
func (r *Registry) Principals() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.caps))
	for p := range r.caps {
		out = append(out, p)
	}
	return out
}
