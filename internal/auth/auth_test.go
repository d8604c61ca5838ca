package auth

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/treasury/internal/domain"
)

func TestGrantAndHas(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	require.NoError(t, r.Grant("alice", []string{"proposer", "approver"}))
	require.NoError(t, r.Grant("bob", []string{"treasurer"}))

	assert.True(t, r.Has("alice", CapPropose))
	assert.True(t, r.Has("alice", CapApprove))
	assert.False(t, r.Has("alice", CapDeposit))
	assert.False(t, r.Has("alice", CapAdmin))

	assert.True(t, r.Has("bob", CapDeposit))
	assert.False(t, r.Has("bob", CapPropose))

	assert.False(t, r.Has("stranger", CapDeposit))
}

func TestGrantAccumulatesAcrossCalls(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	require.NoError(t, r.Grant("alice", []string{"proposer"}))
	require.NoError(t, r.Grant("alice", []string{"emergency"}))

	assert.True(t, r.Has("alice", CapPropose))
	assert.True(t, r.Has("alice", CapEmergency))
}

func TestAdminImpliesEverything(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Grant("root", []string{"admin"}))

	for _, c := range []Capability{CapDeposit, CapPropose, CapApprove, CapManage, CapEmergency, CapAdmin} {
		assert.True(t, r.Has("root", c), "admin must hold %s", c)
	}
}

func TestManagerCanDeposit(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Grant("ops", []string{"manager"}))

	assert.True(t, r.Has("ops", CapManage))
	assert.True(t, r.Has("ops", CapDeposit))
	assert.False(t, r.Has("ops", CapApprove))
}

func TestGrantRejectsBadInput(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	assert.Error(t, r.Grant("", []string{"admin"}))
	assert.Error(t, r.Grant("alice", []string{"superuser"}))
}

func TestGrantUnknownRoleLeavesNoPartialGrant(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	assert.Error(t, r.Grant("ops", []string{"manager", "superuser"}))

	assert.False(t, r.Has("ops", CapManage))
	assert.False(t, r.Has("ops", CapDeposit))
	assert.NotContains(t, r.Principals(), "ops")
}

func TestRequire(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Grant("alice", []string{"proposer"}))

	assert.NoError(t, r.Require("alice", CapPropose))
	assert.ErrorIs(t, r.Require("alice", CapApprove), domain.ErrUnauthorized)
	assert.ErrorIs(t, r.Require("nobody", CapPropose), domain.ErrUnauthorized)
}

func TestPrincipals(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Grant("alice", []string{"proposer"}))
	require.NoError(t, r.Grant("bob", []string{"approver"}))

	assert.ElementsMatch(t, []string{"alice", "bob"}, r.Principals())
}
