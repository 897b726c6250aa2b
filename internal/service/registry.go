package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/phessophissy/POSVault/internal/authz"
	"github.com/phessophissy/POSVault/internal/fault"
	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/state"
)

const principalPrefix = "principals/"

// reservedPrefixes name module identities that certificates are never issued for.
var reservedPrefixes = []string{"vault.", "governance.", "ledger."}

type registration struct {
	RegisteredAt uint64 `json:"registered_at"`
}

// PrincipalExists reports whether name has been registered.
func (e *Engine) PrincipalExists(ctx context.Context, name models.Principal) (bool, error) {
	var ok bool
	err := e.view(ctx, func(tx *state.Tx) error {
		_, ok = tx.Get(principalPrefix + string(name))
		return nil
	})
	return ok, err
}

// RegisterPrincipal records name so a client certificate can be issued for it.
// Module identities, the owner and taken names fail with PrincipalTaken.
func (e *Engine) RegisterPrincipal(ctx context.Context, name models.Principal) error {
	return e.run(ctx, "principal.register", name, func(tx *state.Tx) error {
		if e.reserved(name) {
			return fmt.Errorf("%s is reserved: %w", name, fault.ErrPrincipalTaken)
		}
		return e.register(tx, name)
	})
}

func (e *Engine) reserved(name models.Principal) bool {
	if name == e.opts.Owner || name == e.opts.VaultPrincipal || name == e.opts.GovernancePrincipal {
		return true
	}
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(string(name), prefix) {
			return true
		}
	}
	return false
}

func (e *Engine) register(tx *state.Tx, name models.Principal) error {
	if !authz.ValidPrincipal(name) {
		return fmt.Errorf("register %q: %w", name, fault.ErrInvalidPrincipal)
	}
	key := principalPrefix + string(name)
	if _, taken := tx.Get(key); taken {
		return fmt.Errorf("register %s: %w", name, fault.ErrPrincipalTaken)
	}
	if err := state.PutJSON(tx, key, registration{RegisteredAt: tx.Now()}); err != nil {
		return err
	}
	tx.Emit("principal.register", name, nil)
	return nil
}
