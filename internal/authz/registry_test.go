package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phessophissy/POSVault/internal/fault"
	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/state"
)

func newInitialized(t *testing.T) (*state.Store, *Registry) {
	t.Helper()
	s := state.New(nil)
	r := NewRegistry("vault")
	require.NoError(t, s.Update(context.Background(), 0, func(tx *state.Tx) error {
		return r.Init(tx, "owner")
	}))
	return s, r
}

func TestInit_Once(t *testing.T) {
	s, r := newInitialized(t)
	err := s.Update(context.Background(), 0, func(tx *state.Tx) error {
		return r.Init(tx, "mallory")
	})
	require.ErrorIs(t, err, fault.ErrAlreadyInitialized)
	require.NoError(t, s.View(0, func(tx *state.Tx) error {
		assert.Equal(t, models.Principal("owner"), r.Owner(tx))
		return nil
	}))
}

func TestOwnerIsImplicitAdminButNotMinter(t *testing.T) {
	s, r := newInitialized(t)
	require.NoError(t, s.View(0, func(tx *state.Tx) error {
		assert.True(t, r.IsOwner(tx, "owner"))
		assert.True(t, r.IsAdmin(tx, "owner"))
		assert.False(t, r.IsMinter(tx, "owner"))
		assert.False(t, r.IsAdmin(tx, "alice"))
		return nil
	}))
}

func TestGrantRevoke_OwnerOnly(t *testing.T) {
	s, r := newInitialized(t)
	ctx := context.Background()

	err := s.Update(ctx, 0, func(tx *state.Tx) error {
		return r.Grant(tx, "alice", models.RoleAdmin, "alice")
	})
	require.ErrorIs(t, err, fault.ErrNotAuthorized)

	require.NoError(t, s.Update(ctx, 0, func(tx *state.Tx) error {
		return r.Grant(tx, "owner", models.RoleAdmin, "alice")
	}))
	require.NoError(t, s.View(0, func(tx *state.Tx) error {
		assert.True(t, r.IsAdmin(tx, "alice"))
		assert.Equal(t, []models.Principal{"alice"}, r.Members(tx, models.RoleAdmin))
		return nil
	}))

	// an admin cannot manage the admin set
	err = s.Update(ctx, 0, func(tx *state.Tx) error {
		return r.Grant(tx, "alice", models.RoleAdmin, "bob")
	})
	require.ErrorIs(t, err, fault.ErrNotAuthorized)

	require.NoError(t, s.Update(ctx, 0, func(tx *state.Tx) error {
		return r.Revoke(tx, "owner", models.RoleAdmin, "alice")
	}))
	require.NoError(t, s.View(0, func(tx *state.Tx) error {
		assert.False(t, r.IsAdmin(tx, "alice"))
		assert.Empty(t, r.Members(tx, models.RoleAdmin))
		return nil
	}))
}

func TestGrant_RejectsBadPrincipal(t *testing.T) {
	s, r := newInitialized(t)
	for _, p := range []models.Principal{"", "a/b", "-lead", "white space"} {
		err := s.Update(context.Background(), 0, func(tx *state.Tx) error {
			return r.Grant(tx, "owner", models.RoleMinter, p)
		})
		assert.ErrorIs(t, err, fault.ErrInvalidPrincipal, "principal %q", p)
	}
}

func TestScopesAreIndependent(t *testing.T) {
	s := state.New(nil)
	vaultReg := NewRegistry("vault")
	ledgerReg := NewRegistry("ledger.reward")
	require.NoError(t, s.Update(context.Background(), 0, func(tx *state.Tx) error {
		require.NoError(t, vaultReg.Init(tx, "owner"))
		require.NoError(t, ledgerReg.Init(tx, "owner"))
		return ledgerReg.Grant(tx, "owner", models.RoleMinter, "vault.posvault")
	}))
	require.NoError(t, s.View(0, func(tx *state.Tx) error {
		assert.True(t, ledgerReg.IsMinter(tx, "vault.posvault"))
		assert.False(t, vaultReg.IsMinter(tx, "vault.posvault"))
		return nil
	}))
}
