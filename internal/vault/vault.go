// Package vault implements the treasury vault: base-asset deposits, reward
// accrual and minting, and the admin-gated rate and pause parameters.
package vault

import (
	"fmt"
	"math/bits"

	"github.com/phessophissy/POSVault/internal/authz"
	"github.com/phessophissy/POSVault/internal/fault"
	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/state"
)

const (
	// DefaultCycleLength is the accrual cycle in ticks.
	DefaultCycleLength = 144
	// DefaultRewardRateBps is the rate installed at initialization.
	DefaultRewardRateBps = 100
	// DefaultMaxRewardRateBps caps the rate at 100% per cycle.
	DefaultMaxRewardRateBps = BpsDenominator
)

const (
	stateKey      = "vault/state"
	depositPrefix = "vault/deposit/"
	statsPrefix   = "vault/stats/"
)

// Params are the vault's fixed parameters.
type Params struct {
	CycleLength      uint64
	MaxRewardRateBps uint32
}

// DefaultParams returns the default vault parameters.
func DefaultParams() Params {
	return Params{
		CycleLength:      DefaultCycleLength,
		MaxRewardRateBps: DefaultMaxRewardRateBps,
	}
}

// Custody moves the base asset in and out of the vault.
type Custody interface {
	BalanceOf(tx *state.Tx, p models.Principal) (uint64, error)
	Transfer(tx *state.Tx, sender, recipient models.Principal, amount uint64) error
}

// Minter mints reward tokens.
type Minter interface {
	Mint(tx *state.Tx, caller models.Principal, amount uint64, recipient models.Principal) error
}

// Vault is the treasury vault.
type Vault struct {
	principal models.Principal
	params    Params
	auth      *authz.Registry
	base      Custody
	reward    Minter
}

// New returns a vault acting as principal. base holds deposited funds and
// reward mints accrued rewards with principal as caller.
func New(principal models.Principal, params Params, base Custody, reward Minter) (*Vault, error) {
	if params.CycleLength == 0 {
		return nil, fmt.Errorf("vault: cycle length must be positive")
	}
	if params.MaxRewardRateBps == 0 {
		params.MaxRewardRateBps = DefaultMaxRewardRateBps
	}
	return &Vault{
		principal: principal,
		params:    params,
		auth:      authz.NewRegistry("vault"),
		base:      base,
		reward:    reward,
	}, nil
}

// Principal is the identity the vault uses for custody and minting.
func (v *Vault) Principal() models.Principal { return v.principal }

// Params returns the vault parameters.
func (v *Vault) Params() Params { return v.params }

// Auth exposes the vault's admin registry.
func (v *Vault) Auth() *authz.Registry { return v.auth }

// Init fixes the owner and installs the initial reward rate.
func (v *Vault) Init(tx *state.Tx, owner models.Principal, rateBps uint32) error {
	if rateBps > v.params.MaxRewardRateBps {
		return fmt.Errorf("initial rate %d: %w", rateBps, fault.ErrInvalidRewardRate)
	}
	if err := v.auth.Init(tx, owner); err != nil {
		return err
	}
	return v.saveState(tx, &models.VaultState{RewardRateBps: rateBps})
}

// State returns the vault singleton.
func (v *Vault) State(tx *state.Tx) (*models.VaultState, error) {
	var vs models.VaultState
	if _, err := state.GetJSON(tx, stateKey, &vs); err != nil {
		return nil, err
	}
	return &vs, nil
}

// DepositOf returns p's live deposit, or nil.
func (v *Vault) DepositOf(tx *state.Tx, p models.Principal) (*models.Deposit, error) {
	var d models.Deposit
	ok, err := state.GetJSON(tx, depositPrefix+string(p), &d)
	if err != nil || !ok {
		return nil, err
	}
	return &d, nil
}

// Stats returns p's cumulative stats (zero value if p never deposited).
func (v *Vault) Stats(tx *state.Tx, p models.Principal) (*models.UserStats, error) {
	var st models.UserStats
	if _, err := state.GetJSON(tx, statsPrefix+string(p), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// PendingReward is the reward p could claim now. Zero without a deposit.
func (v *Vault) PendingReward(tx *state.Tx, p models.Principal) (uint64, error) {
	d, err := v.DepositOf(tx, p)
	if err != nil || d == nil {
		return 0, err
	}
	vs, err := v.State(tx)
	if err != nil {
		return 0, err
	}
	return v.pending(tx.Now(), d, vs.RewardRateBps)
}

func (v *Vault) pending(now uint64, d *models.Deposit, rateBps uint32) (uint64, error) {
	var elapsed uint64
	if now > d.LastClaimTime {
		elapsed = now - d.LastClaimTime
	}
	return Accrue(d.Amount, rateBps, elapsed, v.params.CycleLength)
}

// IsAdmin reports whether p may change vault parameters.
func (v *Vault) IsAdmin(tx *state.Tx, p models.Principal) bool {
	return v.auth.IsAdmin(tx, p)
}

// Deposit locks amount of caller's base asset in the vault.
func (v *Vault) Deposit(tx *state.Tx, caller models.Principal, amount uint64) error {
	vs, err := v.State(tx)
	if err != nil {
		return err
	}
	if vs.Paused {
		return fault.ErrVaultPaused
	}
	if amount == 0 {
		return fault.ErrInvalidAmount
	}
	existing, err := v.DepositOf(tx, caller)
	if err != nil {
		return err
	}
	if existing != nil {
		return fault.ErrAlreadyDeposited
	}

	locked, err := add(vs.TotalLocked, amount)
	if err != nil {
		return err
	}
	st, err := v.Stats(tx, caller)
	if err != nil {
		return err
	}
	if st.TotalDeposited, err = add(st.TotalDeposited, amount); err != nil {
		return err
	}
	st.DepositCount++

	if err := v.base.Transfer(tx, caller, v.principal, amount); err != nil {
		return fmt.Errorf("lock deposit: %w", err)
	}
	now := tx.Now()
	d := &models.Deposit{Amount: amount, DepositTime: now, LastClaimTime: now}
	if err := state.PutJSON(tx, depositPrefix+string(caller), d); err != nil {
		return err
	}
	if err := state.PutJSON(tx, statsPrefix+string(caller), st); err != nil {
		return err
	}
	vs.TotalLocked = locked
	vs.DepositorCount++
	if err := v.saveState(tx, vs); err != nil {
		return err
	}
	tx.Emit("vault.deposit", caller, map[string]any{"amount": amount, "time": now})
	return nil
}

// Withdraw returns caller's principal, mints pending rewards and closes the deposit.
func (v *Vault) Withdraw(tx *state.Tx, caller models.Principal) (*models.WithdrawResult, error) {
	d, err := v.DepositOf(tx, caller)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fault.ErrNoDeposit
	}
	vs, err := v.State(tx)
	if err != nil {
		return nil, err
	}
	if vs.Paused {
		return nil, fault.ErrVaultPaused
	}
	reward, err := v.pending(tx.Now(), d, vs.RewardRateBps)
	if err != nil {
		return nil, err
	}

	st, err := v.Stats(tx, caller)
	if err != nil {
		return nil, err
	}
	if st.TotalWithdrawn, err = add(st.TotalWithdrawn, d.Amount); err != nil {
		return nil, err
	}
	if st.TotalRewards, err = add(st.TotalRewards, reward); err != nil {
		return nil, err
	}

	if err := v.base.Transfer(tx, v.principal, caller, d.Amount); err != nil {
		return nil, fmt.Errorf("release deposit: %w", err)
	}
	if reward > 0 {
		if err := v.reward.Mint(tx, v.principal, reward, caller); err != nil {
			return nil, fmt.Errorf("mint rewards: %w", err)
		}
	}
	if err := tx.Delete(depositPrefix + string(caller)); err != nil {
		return nil, err
	}
	if err := state.PutJSON(tx, statsPrefix+string(caller), st); err != nil {
		return nil, err
	}
	// total_locked may already be zero after an emergency sweep
	if vs.TotalLocked >= d.Amount {
		vs.TotalLocked -= d.Amount
	} else {
		vs.TotalLocked = 0
	}
	vs.DepositorCount--
	if err := v.saveState(tx, vs); err != nil {
		return nil, err
	}
	tx.Emit("vault.withdraw", caller, map[string]any{"amount": d.Amount, "rewards": reward})
	return &models.WithdrawResult{ReturnedAmount: d.Amount, RewardsEarned: reward}, nil
}

// ClaimRewards mints the pending reward and restarts the accrual window.
func (v *Vault) ClaimRewards(tx *state.Tx, caller models.Principal) (uint64, error) {
	d, err := v.DepositOf(tx, caller)
	if err != nil {
		return 0, err
	}
	if d == nil {
		return 0, fault.ErrNoDeposit
	}
	vs, err := v.State(tx)
	if err != nil {
		return 0, err
	}
	if vs.Paused {
		return 0, fault.ErrVaultPaused
	}
	reward, err := v.pending(tx.Now(), d, vs.RewardRateBps)
	if err != nil {
		return 0, err
	}
	if reward == 0 {
		return 0, fault.ErrInvalidAmount
	}

	st, err := v.Stats(tx, caller)
	if err != nil {
		return 0, err
	}
	if st.TotalRewards, err = add(st.TotalRewards, reward); err != nil {
		return 0, err
	}
	if d.RewardsClaimed, err = add(d.RewardsClaimed, reward); err != nil {
		return 0, err
	}
	d.LastClaimTime = tx.Now()

	if err := v.reward.Mint(tx, v.principal, reward, caller); err != nil {
		return 0, fmt.Errorf("mint rewards: %w", err)
	}
	if err := state.PutJSON(tx, depositPrefix+string(caller), d); err != nil {
		return 0, err
	}
	if err := state.PutJSON(tx, statsPrefix+string(caller), st); err != nil {
		return 0, err
	}
	tx.Emit("vault.claim", caller, map[string]any{"rewards": reward})
	return reward, nil
}

// SetRewardRate changes the reward rate. Owner or admin.
func (v *Vault) SetRewardRate(tx *state.Tx, caller models.Principal, rateBps uint32) error {
	if err := v.auth.RequireAdmin(tx, caller); err != nil {
		return err
	}
	if rateBps > v.params.MaxRewardRateBps {
		return fmt.Errorf("rate %d above %d: %w", rateBps, v.params.MaxRewardRateBps, fault.ErrInvalidRewardRate)
	}
	vs, err := v.State(tx)
	if err != nil {
		return err
	}
	old := vs.RewardRateBps
	vs.RewardRateBps = rateBps
	if err := v.saveState(tx, vs); err != nil {
		return err
	}
	tx.Emit("vault.reward_rate", caller, map[string]any{"old": old, "new": rateBps})
	return nil
}

// TogglePause flips the pause flag and returns the new value. Owner or admin.
func (v *Vault) TogglePause(tx *state.Tx, caller models.Principal) (bool, error) {
	if err := v.auth.RequireAdmin(tx, caller); err != nil {
		return false, err
	}
	vs, err := v.State(tx)
	if err != nil {
		return false, err
	}
	vs.Paused = !vs.Paused
	if err := v.saveState(tx, vs); err != nil {
		return false, err
	}
	tx.Emit("vault.pause", caller, map[string]any{"paused": vs.Paused})
	return vs.Paused, nil
}

// EmergencyWithdraw sweeps every locked token to the owner and zeroes
// total_locked. Deposit records are left in place, so they no longer match
// custody; this is an escape hatch, not a normal path. Owner only.
func (v *Vault) EmergencyWithdraw(tx *state.Tx, caller models.Principal) (uint64, error) {
	if err := v.auth.RequireOwner(tx, caller); err != nil {
		return 0, err
	}
	vs, err := v.State(tx)
	if err != nil {
		return 0, err
	}
	if vs.TotalLocked == 0 {
		return 0, fault.ErrInsufficientBalance
	}
	swept := vs.TotalLocked
	if err := v.base.Transfer(tx, v.principal, caller, swept); err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	vs.TotalLocked = 0
	if err := v.saveState(tx, vs); err != nil {
		return 0, err
	}
	tx.Emit("vault.emergency_withdraw", caller, map[string]any{"amount": swept})
	return swept, nil
}

// AddAdmin registers p as vault admin. Owner only.
func (v *Vault) AddAdmin(tx *state.Tx, caller, p models.Principal) error {
	return v.auth.Grant(tx, caller, models.RoleAdmin, p)
}

// RemoveAdmin unregisters p. Owner only.
func (v *Vault) RemoveAdmin(tx *state.Tx, caller, p models.Principal) error {
	return v.auth.Revoke(tx, caller, models.RoleAdmin, p)
}

func (v *Vault) saveState(tx *state.Tx, vs *models.VaultState) error {
	return state.PutJSON(tx, stateKey, vs)
}

func add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fault.ErrArithmeticOverflow
	}
	return sum, nil
}
