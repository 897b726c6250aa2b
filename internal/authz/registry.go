// Package authz implements the per-module capability store: a fixed owner
// plus admin and minter sets that only the owner may change.
package authz

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phessophissy/POSVault/internal/fault"
	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/state"
)

var principalPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,63}$`)

// ValidPrincipal reports whether p can be used as a principal. Slashes are
// excluded because principals are embedded in state keys.
func ValidPrincipal(p models.Principal) bool {
	return principalPattern.MatchString(string(p))
}

// Registry is the authorization set of one scope ("vault", "ledger.reward", ...).
type Registry struct {
	scope string
}

// NewRegistry returns the registry for scope.
func NewRegistry(scope string) *Registry {
	return &Registry{scope: scope}
}

// Scope returns the registry's scope name.
func (r *Registry) Scope() string { return r.scope }

func (r *Registry) ownerKey() string {
	return "authz/" + r.scope + "/owner"
}

func (r *Registry) memberPrefix(role models.Role) string {
	return "authz/" + r.scope + "/" + string(role) + "/"
}

// Init fixes the owner. It fails with AlreadyInitialized on a second call.
func (r *Registry) Init(tx *state.Tx, owner models.Principal) error {
	if !ValidPrincipal(owner) {
		return fmt.Errorf("%s owner %q: %w", r.scope, owner, fault.ErrInvalidPrincipal)
	}
	if _, ok := tx.Get(r.ownerKey()); ok {
		return fmt.Errorf("%s registry: %w", r.scope, fault.ErrAlreadyInitialized)
	}
	return tx.Put(r.ownerKey(), []byte(owner))
}

// Owner returns the owner, or "" before Init.
func (r *Registry) Owner(tx *state.Tx) models.Principal {
	v, ok := tx.Get(r.ownerKey())
	if !ok {
		return ""
	}
	return models.Principal(v)
}

// IsOwner reports whether p owns this scope.
func (r *Registry) IsOwner(tx *state.Tx, p models.Principal) bool {
	owner := r.Owner(tx)
	return owner != "" && owner == p
}

// Has reports whether p holds role. The owner is not implied here.
func (r *Registry) Has(tx *state.Tx, role models.Role, p models.Principal) bool {
	_, ok := tx.Get(r.memberPrefix(role) + string(p))
	return ok
}

// IsAdmin reports whether p is the owner or a registered admin.
func (r *Registry) IsAdmin(tx *state.Tx, p models.Principal) bool {
	return r.IsOwner(tx, p) || r.Has(tx, models.RoleAdmin, p)
}

// IsMinter reports whether p is a registered minter.
func (r *Registry) IsMinter(tx *state.Tx, p models.Principal) bool {
	return r.Has(tx, models.RoleMinter, p)
}

// RequireOwner fails with NotAuthorized unless caller is the owner.
func (r *Registry) RequireOwner(tx *state.Tx, caller models.Principal) error {
	if !r.IsOwner(tx, caller) {
		return fmt.Errorf("%s: %s is not owner: %w", r.scope, caller, fault.ErrNotAuthorized)
	}
	return nil
}

// RequireAdmin fails with NotAuthorized unless caller is the owner or an admin.
func (r *Registry) RequireAdmin(tx *state.Tx, caller models.Principal) error {
	if !r.IsAdmin(tx, caller) {
		return fmt.Errorf("%s: %s is not admin: %w", r.scope, caller, fault.ErrNotAuthorized)
	}
	return nil
}

// Grant adds p to role. Owner only. Granting an existing member is a no-op.
func (r *Registry) Grant(tx *state.Tx, caller models.Principal, role models.Role, p models.Principal) error {
	if err := r.RequireOwner(tx, caller); err != nil {
		return err
	}
	if !ValidPrincipal(p) {
		return fmt.Errorf("%s grant %q: %w", r.scope, p, fault.ErrInvalidPrincipal)
	}
	if r.Has(tx, role, p) {
		return nil
	}
	if err := tx.Put(r.memberPrefix(role)+string(p), []byte{1}); err != nil {
		return err
	}
	tx.Emit("authz.grant", caller, map[string]any{"scope": r.scope, "role": string(role), "principal": string(p)})
	return nil
}

// Revoke removes p from role. Owner only. Revoking a non-member is a no-op.
func (r *Registry) Revoke(tx *state.Tx, caller models.Principal, role models.Role, p models.Principal) error {
	if err := r.RequireOwner(tx, caller); err != nil {
		return err
	}
	if !r.Has(tx, role, p) {
		return nil
	}
	if err := tx.Delete(r.memberPrefix(role) + string(p)); err != nil {
		return err
	}
	tx.Emit("authz.revoke", caller, map[string]any{"scope": r.scope, "role": string(role), "principal": string(p)})
	return nil
}

// Members lists the principals holding role, sorted.
func (r *Registry) Members(tx *state.Tx, role models.Role) []models.Principal {
	prefix := r.memberPrefix(role)
	keys := tx.Keys(prefix)
	out := make([]models.Principal, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.Principal(strings.TrimPrefix(k, prefix)))
	}
	return out
}
