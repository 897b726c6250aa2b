// Package ledger implements a fungible token ledger for one named asset.
//
// Every balance change also writes a checkpoint keyed by the commit
// sequence, so balances and supply can be read as of an earlier operation.
// Checkpoints older than the ledger's Retention horizon are pruned as new
// ones are written.
package ledger

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/phessophissy/POSVault/internal/authz"
	"github.com/phessophissy/POSVault/internal/fault"
	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/state"
)

// Retention tells a ledger which checkpoints are still needed.
type Retention interface {
	// RetainFrom returns the oldest sequence BalanceAt or TotalSupplyAt may
	// still be called with. ok is false when no historic read is pending.
	RetainFrom(tx *state.Tx) (seq uint64, ok bool, err error)
}

type latestOnly struct{}

func (latestOnly) RetainFrom(*state.Tx) (uint64, bool, error) { return 0, false, nil }

// KeepLatest keeps only the newest checkpoint of every holder.
var KeepLatest Retention = latestOnly{}

// Ledger holds balances of one asset.
type Ledger struct {
	asset     string
	auth      *authz.Registry
	retention Retention
}

// New returns the ledger for asset. Its authorization scope is "ledger.<asset>".
func New(asset string) *Ledger {
	return &Ledger{asset: asset, auth: authz.NewRegistry("ledger." + asset)}
}

// Asset returns the asset name.
func (l *Ledger) Asset() string { return l.asset }

// Auth exposes the ledger's minter registry.
func (l *Ledger) Auth() *authz.Registry { return l.auth }

// SetRetention installs the checkpoint pruning policy. Without one every
// checkpoint is kept.
func (l *Ledger) SetRetention(r Retention) { l.retention = r }

func (l *Ledger) balanceKey(p models.Principal) string {
	return "ledger/" + l.asset + "/balance/" + string(p)
}

func (l *Ledger) supplyKey() string { return "ledger/" + l.asset + "/supply" }

func (l *Ledger) mintingKey() string { return "ledger/" + l.asset + "/minting-disabled" }

func (l *Ledger) checkpointPrefix(p models.Principal) string {
	return "ledger/" + l.asset + "/ckpt/" + string(p) + "/"
}

func (l *Ledger) supplyCheckpointPrefix() string {
	return "ledger/" + l.asset + "/supply-ckpt/"
}

// Init fixes the ledger owner and enables minting.
func (l *Ledger) Init(tx *state.Tx, owner models.Principal) error {
	return l.auth.Init(tx, owner)
}

// BalanceOf returns p's current balance.
func (l *Ledger) BalanceOf(tx *state.Tx, p models.Principal) (uint64, error) {
	return state.GetUint(tx, l.balanceKey(p))
}

// TotalSupply returns the current supply.
func (l *Ledger) TotalSupply(tx *state.Tx) (uint64, error) {
	return state.GetUint(tx, l.supplyKey())
}

// BalanceAt returns p's balance after the last change committed at or before seq.
func (l *Ledger) BalanceAt(tx *state.Tx, p models.Principal, seq uint64) (uint64, error) {
	return l.valueAt(tx, l.checkpointPrefix(p), seq)
}

// TotalSupplyAt returns the supply after the last change committed at or before seq.
func (l *Ledger) TotalSupplyAt(tx *state.Tx, seq uint64) (uint64, error) {
	return l.valueAt(tx, l.supplyCheckpointPrefix(), seq)
}

func (l *Ledger) valueAt(tx *state.Tx, prefix string, seq uint64) (uint64, error) {
	key, ok := tx.Floor(prefix, prefix+state.SeqKey(seq))
	if !ok {
		return 0, nil
	}
	if _, err := state.ParseSeqKey(strings.TrimPrefix(key, prefix)); err != nil {
		return 0, fmt.Errorf("checkpoint %s: %w", key, err)
	}
	return state.GetUint(tx, key)
}

// MintingEnabled reports whether Mint is currently allowed.
func (l *Ledger) MintingEnabled(tx *state.Tx) bool {
	_, disabled := tx.Get(l.mintingKey())
	return !disabled
}

// SetMintingEnabled switches minting on or off. Owner only.
func (l *Ledger) SetMintingEnabled(tx *state.Tx, caller models.Principal, enabled bool) error {
	if err := l.auth.RequireOwner(tx, caller); err != nil {
		return err
	}
	var err error
	if enabled {
		err = tx.Delete(l.mintingKey())
	} else {
		err = tx.Put(l.mintingKey(), []byte{1})
	}
	if err != nil {
		return err
	}
	tx.Emit("ledger.minting", caller, map[string]any{"asset": l.asset, "enabled": enabled})
	return nil
}

// Mint creates amount tokens for recipient. caller must be a registered
// minter and minting must be enabled.
func (l *Ledger) Mint(tx *state.Tx, caller models.Principal, amount uint64, recipient models.Principal) error {
	if !l.auth.IsMinter(tx, caller) {
		return fmt.Errorf("mint %s: %s is not minter: %w", l.asset, caller, fault.ErrNotAuthorized)
	}
	if !l.MintingEnabled(tx) {
		return fmt.Errorf("mint %s: %w", l.asset, fault.ErrMintingDisabled)
	}
	if amount == 0 {
		return fmt.Errorf("mint %s: %w", l.asset, fault.ErrInvalidAmount)
	}
	if !authz.ValidPrincipal(recipient) {
		return fmt.Errorf("mint %s to %q: %w", l.asset, recipient, fault.ErrInvalidPrincipal)
	}
	supply, err := l.TotalSupply(tx)
	if err != nil {
		return err
	}
	newSupply, carry := bits.Add64(supply, amount, 0)
	if carry != 0 {
		return fmt.Errorf("mint %s: supply: %w", l.asset, fault.ErrInvalidAmount)
	}
	bal, err := l.BalanceOf(tx, recipient)
	if err != nil {
		return err
	}
	// balance <= supply, so this cannot overflow once the supply check passed
	if err := l.setBalance(tx, recipient, bal+amount); err != nil {
		return err
	}
	if err := l.setSupply(tx, newSupply); err != nil {
		return err
	}
	tx.Emit("ledger.mint", caller, map[string]any{"asset": l.asset, "amount": amount, "recipient": string(recipient)})
	return nil
}

// Burn destroys amount of owner's own tokens.
func (l *Ledger) Burn(tx *state.Tx, caller models.Principal, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("burn %s: %w", l.asset, fault.ErrInvalidAmount)
	}
	bal, err := l.BalanceOf(tx, caller)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("burn %s: %w", l.asset, fault.ErrInsufficientBalance)
	}
	supply, err := l.TotalSupply(tx)
	if err != nil {
		return err
	}
	if err := l.setBalance(tx, caller, bal-amount); err != nil {
		return err
	}
	if err := l.setSupply(tx, supply-amount); err != nil {
		return err
	}
	tx.Emit("ledger.burn", caller, map[string]any{"asset": l.asset, "amount": amount})
	return nil
}

// Transfer moves amount from sender to recipient.
func (l *Ledger) Transfer(tx *state.Tx, sender, recipient models.Principal, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("transfer %s: %w", l.asset, fault.ErrInvalidAmount)
	}
	if !authz.ValidPrincipal(recipient) {
		return fmt.Errorf("transfer %s to %q: %w", l.asset, recipient, fault.ErrInvalidPrincipal)
	}
	from, err := l.BalanceOf(tx, sender)
	if err != nil {
		return err
	}
	if from < amount {
		return fmt.Errorf("transfer %s: %s has %d, needs %d: %w", l.asset, sender, from, amount, fault.ErrInsufficientBalance)
	}
	if sender == recipient {
		return nil
	}
	to, err := l.BalanceOf(tx, recipient)
	if err != nil {
		return err
	}
	if err := l.setBalance(tx, sender, from-amount); err != nil {
		return err
	}
	if err := l.setBalance(tx, recipient, to+amount); err != nil {
		return err
	}
	tx.Emit("ledger.transfer", sender, map[string]any{"asset": l.asset, "amount": amount, "recipient": string(recipient)})
	return nil
}

// AddMinter registers p as a minter. Owner only.
func (l *Ledger) AddMinter(tx *state.Tx, caller, p models.Principal) error {
	return l.auth.Grant(tx, caller, models.RoleMinter, p)
}

// RemoveMinter unregisters p. Owner only.
func (l *Ledger) RemoveMinter(tx *state.Tx, caller, p models.Principal) error {
	return l.auth.Revoke(tx, caller, models.RoleMinter, p)
}

func (l *Ledger) setBalance(tx *state.Tx, p models.Principal, v uint64) error {
	if v == 0 {
		if err := tx.Delete(l.balanceKey(p)); err != nil {
			return err
		}
	} else if err := state.PutUint(tx, l.balanceKey(p), v); err != nil {
		return err
	}
	return l.checkpoint(tx, l.checkpointPrefix(p), v)
}

func (l *Ledger) setSupply(tx *state.Tx, v uint64) error {
	if err := state.PutUint(tx, l.supplyKey(), v); err != nil {
		return err
	}
	return l.checkpoint(tx, l.supplyCheckpointPrefix(), v)
}

// checkpoint records v at the current sequence and drops every checkpoint
// under prefix that no read at or after the retention horizon can reach.
func (l *Ledger) checkpoint(tx *state.Tx, prefix string, v uint64) error {
	current := prefix + state.SeqKey(tx.Seq())
	if err := state.PutUint(tx, current, v); err != nil {
		return err
	}
	if l.retention == nil {
		return nil
	}
	horizon, pending, err := l.retention.RetainFrom(tx)
	if err != nil {
		return err
	}
	if !pending || horizon > tx.Seq() {
		horizon = tx.Seq()
	}
	keep, ok := tx.Floor(prefix, prefix+state.SeqKey(horizon))
	if !ok {
		return nil
	}
	for _, k := range tx.Range(prefix, keep) {
		if err := tx.Delete(k); err != nil {
			return err
		}
	}
	if !pending && v == 0 {
		// absent checkpoints read as zero
		return tx.Delete(current)
	}
	return nil
}
