package service

import (
	"context"

	"github.com/phessophissy/POSVault/internal/governance"
	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/state"
)

// ProposalInput carries the fields of a new proposal.
type ProposalInput struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Kind        models.ProposalKind `json:"kind"`
	Value       uint64              `json:"value"`
}

// CreateProposal submits a proposal on behalf of caller and returns its id.
func (e *Engine) CreateProposal(ctx context.Context, caller models.Principal, in ProposalInput) (uint64, error) {
	var id uint64
	err := e.run(ctx, "governance.propose", caller, func(tx *state.Tx) error {
		var err error
		id, err = e.gov.CreateProposal(tx, caller, in.Title, in.Description, in.Kind, in.Value)
		return err
	})
	return id, err
}

// Vote casts caller's vote on proposal id.
func (e *Engine) Vote(ctx context.Context, caller models.Principal, id uint64, support bool) error {
	return e.run(ctx, "governance.vote", caller, func(tx *state.Tx) error {
		return e.gov.Vote(tx, caller, id, support)
	})
}

// ExecuteProposal settles proposal id and reports whether it passed.
func (e *Engine) ExecuteProposal(ctx context.Context, caller models.Principal, id uint64) (bool, error) {
	var passed bool
	err := e.run(ctx, "governance.execute", caller, func(tx *state.Tx) error {
		var err error
		passed, err = e.gov.ExecuteProposal(tx, caller, id)
		return err
	})
	return passed, err
}

// Reconcile clears proposer pointers left behind by expired proposals.
func (e *Engine) Reconcile(ctx context.Context) (int, error) {
	var cleared int
	err := e.run(ctx, "governance.reconcile", e.opts.GovernancePrincipal, func(tx *state.Tx) error {
		var err error
		cleared, err = e.gov.Reconcile(tx)
		if err != nil {
			return err
		}
		return e.gov.CheckInvariants(tx)
	})
	return cleared, err
}

// Proposal returns proposal id.
func (e *Engine) Proposal(ctx context.Context, id uint64) (*models.Proposal, error) {
	var p *models.Proposal
	err := e.view(ctx, func(tx *state.Tx) error {
		var err error
		p, err = e.gov.Proposal(tx, id)
		return err
	})
	return p, err
}

// ProposalStatus returns proposal id with its status at the current time.
func (e *Engine) ProposalStatus(ctx context.Context, id uint64) (*models.Proposal, models.ProposalStatus, error) {
	var (
		p      *models.Proposal
		status models.ProposalStatus
	)
	err := e.view(ctx, func(tx *state.Tx) error {
		var err error
		p, err = e.gov.Proposal(tx, id)
		if err != nil {
			return err
		}
		status = p.Status(tx.Now())
		return nil
	})
	return p, status, err
}

// VoteRecord returns voter's vote on id, or nil.
func (e *Engine) VoteRecord(ctx context.Context, id uint64, voter models.Principal) (*models.VoteRecord, error) {
	var v *models.VoteRecord
	err := e.view(ctx, func(tx *state.Tx) error {
		var err error
		v, err = e.gov.VoteRecord(tx, id, voter)
		return err
	})
	return v, err
}

// ProposalCount returns the number of proposals created so far.
func (e *Engine) ProposalCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := e.view(ctx, func(tx *state.Tx) error {
		var err error
		n, err = e.gov.ProposalCount(tx)
		return err
	})
	return n, err
}

// GovernanceParams returns voting period, proposal threshold and quorum settings.
func (e *Engine) GovernanceParams() governance.Params {
	return e.gov.Params()
}

// ActiveProposalOf returns proposer's live proposal id, if any.
func (e *Engine) ActiveProposalOf(ctx context.Context, proposer models.Principal) (uint64, bool, error) {
	var (
		id uint64
		ok bool
	)
	err := e.view(ctx, func(tx *state.Tx) error {
		var err error
		id, ok, err = e.gov.ActiveProposalOf(tx, proposer)
		return err
	})
	return id, ok, err
}

// CheckInvariants verifies the proposer index against the proposals.
func (e *Engine) CheckInvariants(ctx context.Context) error {
	return e.view(ctx, e.gov.CheckInvariants)
}

// IsProposalActive reports whether id is unexecuted and still open for votes.
func (e *Engine) IsProposalActive(ctx context.Context, id uint64) (bool, error) {
	var active bool
	err := e.view(ctx, func(tx *state.Tx) error {
		var err error
		active, err = e.gov.IsActive(tx, id)
		return err
	})
	return active, err
}
