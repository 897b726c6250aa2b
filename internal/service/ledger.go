package service

import (
	"context"
	"fmt"

	"github.com/phessophissy/POSVault/internal/fault"
	"github.com/phessophissy/POSVault/internal/ledger"
	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/state"
)

// Assets returns the base and reward asset names.
func (e *Engine) Assets() []string {
	return []string{e.base.Asset(), e.reward.Asset()}
}

func (e *Engine) ledger(asset string) (*ledger.Ledger, error) {
	switch asset {
	case e.base.Asset():
		return e.base, nil
	case e.reward.Asset():
		return e.reward, nil
	default:
		return nil, fmt.Errorf("asset %q: %w", asset, fault.ErrUnknownAsset)
	}
}

func (e *Engine) onLedger(ctx context.Context, op, asset string, caller models.Principal, fn func(tx *state.Tx, l *ledger.Ledger) error) error {
	l, err := e.ledger(asset)
	if err != nil {
		return err
	}
	return e.run(ctx, "ledger."+op, caller, func(tx *state.Tx) error {
		return fn(tx, l)
	})
}

// Transfer moves amount of asset from caller to recipient.
func (e *Engine) Transfer(ctx context.Context, caller models.Principal, asset string, recipient models.Principal, amount uint64) error {
	return e.onLedger(ctx, "transfer", asset, caller, func(tx *state.Tx, l *ledger.Ledger) error {
		return l.Transfer(tx, caller, recipient, amount)
	})
}

// Mint creates amount of asset for recipient. caller must be a minter.
func (e *Engine) Mint(ctx context.Context, caller models.Principal, asset string, amount uint64, recipient models.Principal) error {
	return e.onLedger(ctx, "mint", asset, caller, func(tx *state.Tx, l *ledger.Ledger) error {
		return l.Mint(tx, caller, amount, recipient)
	})
}

// Burn destroys amount of caller's asset.
func (e *Engine) Burn(ctx context.Context, caller models.Principal, asset string, amount uint64) error {
	return e.onLedger(ctx, "burn", asset, caller, func(tx *state.Tx, l *ledger.Ledger) error {
		return l.Burn(tx, caller, amount)
	})
}

// AddMinter registers p as a minter of asset.
func (e *Engine) AddMinter(ctx context.Context, caller models.Principal, asset string, p models.Principal) error {
	return e.onLedger(ctx, "add_minter", asset, caller, func(tx *state.Tx, l *ledger.Ledger) error {
		return l.AddMinter(tx, caller, p)
	})
}

// RemoveMinter unregisters p as a minter of asset.
func (e *Engine) RemoveMinter(ctx context.Context, caller models.Principal, asset string, p models.Principal) error {
	return e.onLedger(ctx, "remove_minter", asset, caller, func(tx *state.Tx, l *ledger.Ledger) error {
		return l.RemoveMinter(tx, caller, p)
	})
}

// SetMintingEnabled switches minting of asset on or off.
func (e *Engine) SetMintingEnabled(ctx context.Context, caller models.Principal, asset string, enabled bool) error {
	return e.onLedger(ctx, "set_minting", asset, caller, func(tx *state.Tx, l *ledger.Ledger) error {
		return l.SetMintingEnabled(tx, caller, enabled)
	})
}

// LedgerInfo is the public state of one asset ledger.
type LedgerInfo struct {
	Asset          string             `json:"asset"`
	Owner          models.Principal   `json:"owner"`
	TotalSupply    uint64             `json:"total_supply"`
	MintingEnabled bool               `json:"minting_enabled"`
	Minters        []models.Principal `json:"minters"`
}

// Ledger describes asset.
func (e *Engine) Ledger(ctx context.Context, asset string) (*LedgerInfo, error) {
	l, err := e.ledger(asset)
	if err != nil {
		return nil, err
	}
	info := &LedgerInfo{Asset: asset}
	err = e.view(ctx, func(tx *state.Tx) error {
		supply, err := l.TotalSupply(tx)
		if err != nil {
			return err
		}
		info.TotalSupply = supply
		info.Owner = l.Auth().Owner(tx)
		info.MintingEnabled = l.MintingEnabled(tx)
		info.Minters = l.Auth().Members(tx, models.RoleMinter)
		return nil
	})
	return info, err
}

// Balance returns p's balance of asset.
func (e *Engine) Balance(ctx context.Context, asset string, p models.Principal) (uint64, error) {
	l, err := e.ledger(asset)
	if err != nil {
		return 0, err
	}
	var bal uint64
	err = e.view(ctx, func(tx *state.Tx) error {
		var err error
		bal, err = l.BalanceOf(tx, p)
		return err
	})
	return bal, err
}
