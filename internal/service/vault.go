package service

import (
	"context"

	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/state"
)

// Deposit locks amount of the caller's base asset in the vault.
func (e *Engine) Deposit(ctx context.Context, caller models.Principal, amount uint64) error {
	return e.run(ctx, "vault.deposit", caller, func(tx *state.Tx) error {
		return e.vault.Deposit(tx, caller, amount)
	})
}

// Withdraw closes the caller's deposit and pays out pending rewards.
func (e *Engine) Withdraw(ctx context.Context, caller models.Principal) (*models.WithdrawResult, error) {
	var res *models.WithdrawResult
	err := e.run(ctx, "vault.withdraw", caller, func(tx *state.Tx) error {
		var err error
		res, err = e.vault.Withdraw(tx, caller)
		return err
	})
	return res, err
}

// ClaimRewards mints the caller's pending reward.
func (e *Engine) ClaimRewards(ctx context.Context, caller models.Principal) (uint64, error) {
	var reward uint64
	err := e.run(ctx, "vault.claim", caller, func(tx *state.Tx) error {
		var err error
		reward, err = e.vault.ClaimRewards(tx, caller)
		return err
	})
	return reward, err
}

// SetRewardRate changes the vault reward rate.
func (e *Engine) SetRewardRate(ctx context.Context, caller models.Principal, rateBps uint32) error {
	return e.run(ctx, "vault.set_reward_rate", caller, func(tx *state.Tx) error {
		return e.vault.SetRewardRate(tx, caller, rateBps)
	})
}

// TogglePause flips the vault pause flag and returns the new value.
func (e *Engine) TogglePause(ctx context.Context, caller models.Principal) (bool, error) {
	var paused bool
	err := e.run(ctx, "vault.toggle_pause", caller, func(tx *state.Tx) error {
		var err error
		paused, err = e.vault.TogglePause(tx, caller)
		return err
	})
	return paused, err
}

// EmergencyWithdraw sweeps all locked funds to the owner.
func (e *Engine) EmergencyWithdraw(ctx context.Context, caller models.Principal) (uint64, error) {
	var swept uint64
	err := e.run(ctx, "vault.emergency_withdraw", caller, func(tx *state.Tx) error {
		var err error
		swept, err = e.vault.EmergencyWithdraw(tx, caller)
		return err
	})
	return swept, err
}

// AddAdmin registers p as vault admin.
func (e *Engine) AddAdmin(ctx context.Context, caller, p models.Principal) error {
	return e.run(ctx, "vault.add_admin", caller, func(tx *state.Tx) error {
		return e.vault.AddAdmin(tx, caller, p)
	})
}

// RemoveAdmin unregisters p as vault admin.
func (e *Engine) RemoveAdmin(ctx context.Context, caller, p models.Principal) error {
	return e.run(ctx, "vault.remove_admin", caller, func(tx *state.Tx) error {
		return e.vault.RemoveAdmin(tx, caller, p)
	})
}

// VaultState returns the vault totals, rate and pause flag.
func (e *Engine) VaultState(ctx context.Context) (*models.VaultState, error) {
	var vs *models.VaultState
	err := e.view(ctx, func(tx *state.Tx) error {
		var err error
		vs, err = e.vault.State(tx)
		return err
	})
	return vs, err
}

// Account returns p's deposit, stats, pending reward and admin flag from
// one snapshot of the state.
func (e *Engine) Account(ctx context.Context, p models.Principal) (*models.Account, error) {
	acct := &models.Account{Principal: p}
	err := e.view(ctx, func(tx *state.Tx) error {
		var err error
		if acct.Deposit, err = e.vault.DepositOf(tx, p); err != nil {
			return err
		}
		if acct.Stats, err = e.vault.Stats(tx, p); err != nil {
			return err
		}
		if acct.PendingReward, err = e.vault.PendingReward(tx, p); err != nil {
			return err
		}
		acct.IsAdmin = e.vault.IsAdmin(tx, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// DepositOf returns p's live deposit or nil.
func (e *Engine) DepositOf(ctx context.Context, p models.Principal) (*models.Deposit, error) {
	var d *models.Deposit
	err := e.view(ctx, func(tx *state.Tx) error {
		var err error
		d, err = e.vault.DepositOf(tx, p)
		return err
	})
	return d, err
}

// UserStats returns p's cumulative vault stats.
func (e *Engine) UserStats(ctx context.Context, p models.Principal) (*models.UserStats, error) {
	var st *models.UserStats
	err := e.view(ctx, func(tx *state.Tx) error {
		var err error
		st, err = e.vault.Stats(tx, p)
		return err
	})
	return st, err
}

// PendingReward returns what p could claim now.
func (e *Engine) PendingReward(ctx context.Context, p models.Principal) (uint64, error) {
	var reward uint64
	err := e.view(ctx, func(tx *state.Tx) error {
		var err error
		reward, err = e.vault.PendingReward(tx, p)
		return err
	})
	return reward, err
}

// IsAdmin reports whether p may change vault parameters.
func (e *Engine) IsAdmin(ctx context.Context, p models.Principal) (bool, error) {
	var ok bool
	err := e.view(ctx, func(tx *state.Tx) error {
		ok = e.vault.IsAdmin(tx, p)
		return nil
	})
	return ok, err
}

// VaultAdmins lists the registered vault admins, owner excluded.
func (e *Engine) VaultAdmins(ctx context.Context) ([]models.Principal, error) {
	var admins []models.Principal
	err := e.view(ctx, func(tx *state.Tx) error {
		admins = e.vault.Auth().Members(tx, models.RoleAdmin)
		return nil
	})
	return admins, err
}
