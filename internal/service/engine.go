// Package service wires the vault, governance and ledger modules over one
// state store and exposes every public operation as a single atomic call.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/phessophissy/POSVault/internal/clock"
	"github.com/phessophissy/POSVault/internal/fault"
	"github.com/phessophissy/POSVault/internal/governance"
	"github.com/phessophissy/POSVault/internal/ledger"
	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/state"
	"github.com/phessophissy/POSVault/internal/vault"
)

// Recorder observes finished operations and vault totals.
type Recorder interface {
	Operation(name, outcome string, elapsed time.Duration)
	VaultState(vs *models.VaultState)
}

type nopRecorder struct{}

func (nopRecorder) Operation(string, string, time.Duration) {}
func (nopRecorder) VaultState(*models.VaultState)           {}

// Options configure the engine and its modules.
type Options struct {
	Owner               models.Principal
	VaultPrincipal      models.Principal
	GovernancePrincipal models.Principal
	BaseAsset           string
	RewardAsset         string
	InitialRewardRate   uint32
	Vault               vault.Params
	Governance          governance.Params
}

// DefaultOptions returns the default module setup owned by owner.
func DefaultOptions(owner models.Principal) Options {
	return Options{
		Owner:               owner,
		VaultPrincipal:      "vault.posvault",
		GovernancePrincipal: "governance.posvault",
		BaseAsset:           "base",
		RewardAsset:         "reward",
		InitialRewardRate:   vault.DefaultRewardRateBps,
		Vault:               vault.DefaultParams(),
		Governance:          governance.DefaultParams(),
	}
}

// Engine runs operations against the shared store. Each operation reads the
// clock once and commits or rolls back as a whole.
type Engine struct {
	store *state.Store
	clock clock.Clock
	log   *zap.Logger
	rec   Recorder
	opts  Options

	base   *ledger.Ledger
	reward *ledger.Ledger
	vault  *vault.Vault
	gov    *governance.Governor
}

// NewEngine builds the modules and wires them: the vault mints through the
// reward ledger and governance drives the vault. rec may be nil.
func NewEngine(store *state.Store, clk clock.Clock, opts Options, log *zap.Logger, rec Recorder) (*Engine, error) {
	if opts.Owner == "" {
		return nil, errors.New("engine: owner is required")
	}
	if opts.BaseAsset == "" || opts.RewardAsset == "" || opts.BaseAsset == opts.RewardAsset {
		return nil, fmt.Errorf("engine: assets %q and %q must be distinct and non-empty", opts.BaseAsset, opts.RewardAsset)
	}
	if opts.Governance.MaxRewardRateBps == 0 {
		opts.Governance.MaxRewardRateBps = opts.Vault.MaxRewardRateBps
	}
	if opts.Vault.MaxRewardRateBps != 0 && opts.Governance.MaxRewardRateBps != opts.Vault.MaxRewardRateBps {
		return nil, fmt.Errorf("engine: governance rate cap %d differs from vault cap %d",
			opts.Governance.MaxRewardRateBps, opts.Vault.MaxRewardRateBps)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if rec == nil {
		rec = nopRecorder{}
	}

	base := ledger.New(opts.BaseAsset)
	reward := ledger.New(opts.RewardAsset)
	v, err := vault.New(opts.VaultPrincipal, opts.Vault, base, reward)
	if err != nil {
		return nil, err
	}
	g, err := governance.New(opts.GovernancePrincipal, opts.Governance, reward, v)
	if err != nil {
		return nil, err
	}
	// reward history is kept back to the oldest unexecuted snapshot
	reward.SetRetention(g)
	base.SetRetention(ledger.KeepLatest)
	return &Engine{
		store:  store,
		clock:  clk,
		log:    log,
		rec:    rec,
		opts:   opts,
		base:   base,
		reward: reward,
		vault:  v,
		gov:    g,
	}, nil
}

// Options returns the engine configuration.
func (e *Engine) Options() Options { return e.opts }

// Bootstrap initializes a fresh store: owners of every registry, the vault
// as reward minter, governance as vault admin, the owner as base-asset
// minter, and the initial reward rate. On an initialized store it does nothing.
func (e *Engine) Bootstrap(ctx context.Context) error {
	err := e.run(ctx, "bootstrap", e.opts.Owner, func(tx *state.Tx) error {
		owner := e.opts.Owner
		if err := e.base.Init(tx, owner); err != nil {
			return err
		}
		if err := e.base.AddMinter(tx, owner, owner); err != nil {
			return err
		}
		if err := e.reward.Init(tx, owner); err != nil {
			return err
		}
		if err := e.reward.AddMinter(tx, owner, e.opts.VaultPrincipal); err != nil {
			return err
		}
		if err := e.vault.Init(tx, owner, e.opts.InitialRewardRate); err != nil {
			return err
		}
		if err := e.vault.AddAdmin(tx, owner, e.opts.GovernancePrincipal); err != nil {
			return err
		}
		return e.register(tx, owner)
	})
	if errors.Is(err, fault.ErrAlreadyInitialized) {
		e.log.Info("state already initialized", zap.Uint64("seq", e.store.Seq()))
		return nil
	}
	return err
}

// run executes fn as one committed operation and reports it.
func (e *Engine) run(ctx context.Context, op string, caller models.Principal, fn func(tx *state.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	now := e.clock.Now()
	err := e.store.Update(ctx, now, fn)
	elapsed := time.Since(start)

	if err != nil {
		e.rec.Operation(op, fault.CodeOf(err), elapsed)
		fields := []zap.Field{
			zap.String("op", op),
			zap.String("principal", string(caller)),
			zap.Uint64("now", now),
			zap.String("code", fault.CodeOf(err)),
			zap.Error(err),
		}
		if fault.KindOf(err) == fault.KindInternal {
			e.log.Error("operation failed", fields...)
		} else {
			e.log.Info("operation rejected", fields...)
		}
		return err
	}

	e.rec.Operation(op, "ok", elapsed)
	e.log.Debug("operation committed",
		zap.String("op", op),
		zap.String("principal", string(caller)),
		zap.Uint64("now", now),
		zap.Uint64("seq", e.store.Seq()),
		zap.Duration("elapsed", elapsed),
	)
	if strings.HasPrefix(op, "vault.") || op == "governance.execute" || op == "bootstrap" {
		e.publishVaultState()
	}
	return nil
}

// view runs fn against the committed state at the current time.
func (e *Engine) view(ctx context.Context, fn func(tx *state.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.store.View(e.clock.Now(), fn)
}

func (e *Engine) publishVaultState() {
	var vs *models.VaultState
	err := e.store.View(e.clock.Now(), func(tx *state.Tx) error {
		var err error
		vs, err = e.vault.State(tx)
		return err
	})
	if err != nil {
		e.log.Error("read vault state", zap.Error(err))
		return
	}
	e.rec.VaultState(vs)
}
