// Package governance runs the proposal lifecycle: creation gated by reward
// holdings, weighted voting, and quorum-gated execution against the vault.
package governance

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/phessophissy/POSVault/internal/fault"
	"github.com/phessophissy/POSVault/internal/models"
	"github.com/phessophissy/POSVault/internal/state"
)

const (
	countKey       = "gov/count"
	proposalPrefix = "gov/proposal/"
	votePrefix     = "gov/vote/"
	activePrefix   = "gov/active/"
	// openPrefix indexes unexecuted proposals by snapshot sequence.
	openPrefix = "gov/open/"
)

// Balances reads voting weight from the reward ledger.
type Balances interface {
	BalanceOf(tx *state.Tx, p models.Principal) (uint64, error)
	TotalSupply(tx *state.Tx) (uint64, error)
	BalanceAt(tx *state.Tx, p models.Principal, seq uint64) (uint64, error)
	TotalSupplyAt(tx *state.Tx, seq uint64) (uint64, error)
}

// VaultAdmin is the admin surface a passed proposal acts on.
type VaultAdmin interface {
	SetRewardRate(tx *state.Tx, caller models.Principal, rateBps uint32) error
	TogglePause(tx *state.Tx, caller models.Principal) (bool, error)
}

// Governor owns proposals, vote records and the proposer index.
type Governor struct {
	principal models.Principal
	params    Params
	tokens    Balances
	vault     VaultAdmin
}

// New returns a governor that calls the vault as principal.
func New(principal models.Principal, params Params, tokens Balances, vault VaultAdmin) (*Governor, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("governance: %w", err)
	}
	return &Governor{principal: principal, params: params, tokens: tokens, vault: vault}, nil
}

// Principal is the identity used for vault calls.
func (g *Governor) Principal() models.Principal { return g.principal }

// Params returns the governance parameters.
func (g *Governor) Params() Params { return g.params }

func proposalKey(id uint64) string { return proposalPrefix + state.SeqKey(id) }

func voteKey(id uint64, voter models.Principal) string {
	return votePrefix + state.SeqKey(id) + "/" + string(voter)
}

func activeKey(p models.Principal) string { return activePrefix + string(p) }

func openKey(p *models.Proposal) string {
	return openPrefix + state.SeqKey(p.SnapshotSeq) + "/" + state.SeqKey(p.ID)
}

// CreateProposal admits a new proposal and makes it caller's active one.
func (g *Governor) CreateProposal(tx *state.Tx, caller models.Principal, title, description string, kind models.ProposalKind, value uint64) (uint64, error) {
	bal, err := g.tokens.BalanceOf(tx, caller)
	if err != nil {
		return 0, err
	}
	if bal < g.params.MinProposalTokens {
		return 0, fmt.Errorf("balance %d below %d: %w", bal, g.params.MinProposalTokens, fault.ErrInsufficientTokens)
	}
	if err := g.validate(title, description, kind, value); err != nil {
		return 0, err
	}
	if _, ok, err := g.ActiveProposalOf(tx, caller); err != nil {
		return 0, err
	} else if ok {
		return 0, fault.ErrVotingActive
	}

	id, err := state.NextID(tx, countKey)
	if err != nil {
		return 0, err
	}
	now := tx.Now()
	p := &models.Proposal{
		ID:             id,
		Proposer:       caller,
		Title:          title,
		Description:    description,
		Kind:           kind,
		Value:          value,
		CreatedAt:      now,
		VotingDeadline: now + g.params.VotingPeriod,
		SnapshotSeq:    tx.Seq(),
	}
	if p.VotingDeadline < now {
		return 0, fault.ErrArithmeticOverflow
	}
	if err := state.PutJSON(tx, proposalKey(id), p); err != nil {
		return 0, err
	}
	if err := state.PutUint(tx, activeKey(caller), id); err != nil {
		return 0, err
	}
	if err := tx.Put(openKey(p), []byte{}); err != nil {
		return 0, err
	}
	tx.Emit("governance.propose", caller, map[string]any{
		"id":       id,
		"kind":     string(kind),
		"value":    value,
		"deadline": p.VotingDeadline,
	})
	return id, nil
}

func (g *Governor) validate(title, description string, kind models.ProposalKind, value uint64) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("empty title: %w", fault.ErrInvalidProposal)
	}
	if len(title) > g.params.MaxTitleLength {
		return fmt.Errorf("title longer than %d: %w", g.params.MaxTitleLength, fault.ErrInvalidProposal)
	}
	if len(description) > g.params.MaxDescriptionLength {
		return fmt.Errorf("description longer than %d: %w", g.params.MaxDescriptionLength, fault.ErrInvalidProposal)
	}
	switch kind {
	case models.KindGeneral, models.KindPause:
		if value != 0 {
			return fmt.Errorf("%s takes no value: %w", kind, fault.ErrInvalidProposal)
		}
	case models.KindRewardRate:
		if value == 0 || value > uint64(g.params.MaxRewardRateBps) {
			return fmt.Errorf("rate %d outside 1..%d: %w", value, g.params.MaxRewardRateBps, fault.ErrInvalidProposal)
		}
	default:
		return fmt.Errorf("unknown kind %q: %w", kind, fault.ErrInvalidProposal)
	}
	return nil
}

// Vote records caller's weighted vote on proposal id.
func (g *Governor) Vote(tx *state.Tx, caller models.Principal, id uint64, support bool) error {
	p, err := g.Proposal(tx, id)
	if err != nil {
		return err
	}
	weight, err := g.weight(tx, caller, p)
	if err != nil {
		return err
	}
	if tx.Now() > p.VotingDeadline {
		return fault.ErrVotingEnded
	}
	if p.Executed {
		return fault.ErrProposalExecuted
	}
	if _, voted := tx.Get(voteKey(id, caller)); voted {
		return fault.ErrAlreadyVoted
	}

	if support {
		p.VotesFor, err = add(p.VotesFor, weight)
	} else {
		p.VotesAgainst, err = add(p.VotesAgainst, weight)
	}
	if err != nil {
		return err
	}
	p.VoterCount++
	if err := state.PutJSON(tx, voteKey(id, caller), &models.VoteRecord{Weight: weight, Support: support}); err != nil {
		return err
	}
	if err := state.PutJSON(tx, proposalKey(id), p); err != nil {
		return err
	}
	tx.Emit("governance.vote", caller, map[string]any{"id": id, "support": support, "weight": weight})
	return nil
}

// weight fails with InsufficientTokens when caller holds nothing now, or,
// under the snapshot policy, held nothing when the proposal was created.
func (g *Governor) weight(tx *state.Tx, caller models.Principal, p *models.Proposal) (uint64, error) {
	current, err := g.tokens.BalanceOf(tx, caller)
	if err != nil {
		return 0, err
	}
	if current == 0 {
		return 0, fault.ErrInsufficientTokens
	}
	if g.params.Weight == WeightLive {
		return current, nil
	}
	w, err := g.tokens.BalanceAt(tx, caller, p.SnapshotSeq)
	if err != nil {
		return 0, err
	}
	if w == 0 {
		return 0, fmt.Errorf("no balance at proposal creation: %w", fault.ErrInsufficientTokens)
	}
	return w, nil
}

// ExecuteProposal closes voting on id and applies the outcome to the vault.
// Anyone may call it once the deadline has passed.
func (g *Governor) ExecuteProposal(tx *state.Tx, caller models.Principal, id uint64) (bool, error) {
	p, err := g.Proposal(tx, id)
	if err != nil {
		return false, err
	}
	if tx.Now() <= p.VotingDeadline {
		return false, fault.ErrVotingNotEnded
	}
	if p.Executed {
		return false, fault.ErrProposalExecuted
	}
	supply, err := g.quorumBase(tx, p)
	if err != nil {
		return false, err
	}
	if !QuorumReached(p.VotesFor, p.VotesAgainst, supply, g.params.QuorumPercent) {
		return false, fault.ErrQuorumNotMet
	}

	passed := p.VotesFor > p.VotesAgainst
	if passed {
		switch p.Kind {
		case models.KindRewardRate:
			if err := g.vault.SetRewardRate(tx, g.principal, uint32(p.Value)); err != nil {
				return false, fmt.Errorf("execute proposal %d: %w", id, err)
			}
		case models.KindPause:
			if _, err := g.vault.TogglePause(tx, g.principal); err != nil {
				return false, fmt.Errorf("execute proposal %d: %w", id, err)
			}
		}
	}

	p.Executed = true
	p.Passed = passed
	if err := state.PutJSON(tx, proposalKey(id), p); err != nil {
		return false, err
	}
	if err := g.releasePointer(tx, p); err != nil {
		return false, err
	}
	if err := tx.Delete(openKey(p)); err != nil {
		return false, err
	}
	tx.Emit("governance.execute", caller, map[string]any{
		"id":      id,
		"passed":  passed,
		"for":     p.VotesFor,
		"against": p.VotesAgainst,
	})
	return passed, nil
}

// RetainFrom returns the snapshot sequence of the oldest unexecuted
// proposal. Under the live policy no historic balance is ever read.
func (g *Governor) RetainFrom(tx *state.Tx) (uint64, bool, error) {
	if g.params.Weight == WeightLive {
		return 0, false, nil
	}
	key, ok := tx.First(openPrefix)
	if !ok {
		return 0, false, nil
	}
	rest := strings.TrimPrefix(key, openPrefix)
	snap, _, _ := strings.Cut(rest, "/")
	seq, err := state.ParseSeqKey(snap)
	if err != nil {
		return 0, false, fmt.Errorf("open proposal %s: %w", key, err)
	}
	return seq, true, nil
}

func (g *Governor) quorumBase(tx *state.Tx, p *models.Proposal) (uint64, error) {
	if g.params.Weight == WeightLive {
		return g.tokens.TotalSupply(tx)
	}
	return g.tokens.TotalSupplyAt(tx, p.SnapshotSeq)
}

// QuorumReached reports whether votesFor + votesAgainst reaches
// supply * percent / 100, evaluated without overflow.
func QuorumReached(votesFor, votesAgainst, supply, percent uint64) bool {
	cast := new(uint256.Int).Add(uint256.NewInt(votesFor), uint256.NewInt(votesAgainst))
	need := new(uint256.Int).Mul(uint256.NewInt(supply), uint256.NewInt(percent))
	need.Div(need, uint256.NewInt(100))
	return !cast.Lt(need)
}

func (g *Governor) releasePointer(tx *state.Tx, p *models.Proposal) error {
	key := activeKey(p.Proposer)
	if _, ok := tx.Get(key); !ok {
		return nil
	}
	current, err := state.GetUint(tx, key)
	if err != nil {
		return err
	}
	if current != p.ID {
		return nil
	}
	return tx.Delete(key)
}

// Proposal returns proposal id or ProposalNotFound.
func (g *Governor) Proposal(tx *state.Tx, id uint64) (*models.Proposal, error) {
	var p models.Proposal
	ok, err := state.GetJSON(tx, proposalKey(id), &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("proposal %d: %w", id, fault.ErrProposalNotFound)
	}
	return &p, nil
}

// VoteRecord returns voter's vote on id, or nil if voter has not voted.
func (g *Governor) VoteRecord(tx *state.Tx, id uint64, voter models.Principal) (*models.VoteRecord, error) {
	if _, err := g.Proposal(tx, id); err != nil {
		return nil, err
	}
	var v models.VoteRecord
	ok, err := state.GetJSON(tx, voteKey(id, voter), &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// ProposalCount is the highest id allocated so far.
func (g *Governor) ProposalCount(tx *state.Tx) (uint64, error) {
	return state.GetUint(tx, countKey)
}

// IsActive reports whether id is unexecuted and inside its voting window.
func (g *Governor) IsActive(tx *state.Tx, id uint64) (bool, error) {
	p, err := g.Proposal(tx, id)
	if err != nil {
		return false, err
	}
	return p.IsActive(tx.Now()), nil
}

// ActiveProposalOf returns the id of proposer's live proposal. A pointer to
// an expired or executed proposal reads as none.
func (g *Governor) ActiveProposalOf(tx *state.Tx, proposer models.Principal) (uint64, bool, error) {
	key := activeKey(proposer)
	if _, ok := tx.Get(key); !ok {
		return 0, false, nil
	}
	id, err := state.GetUint(tx, key)
	if err != nil {
		return 0, false, err
	}
	p, err := g.Proposal(tx, id)
	if err != nil {
		return 0, false, fmt.Errorf("active pointer of %s: %w", proposer, err)
	}
	if !p.IsActive(tx.Now()) {
		return 0, false, nil
	}
	return id, true, nil
}

// Reconcile deletes pointers whose proposal is no longer active and returns
// how many were removed.
func (g *Governor) Reconcile(tx *state.Tx) (int, error) {
	cleared := 0
	for _, key := range tx.Keys(activePrefix) {
		id, err := state.GetUint(tx, key)
		if err != nil {
			return cleared, err
		}
		p, err := g.Proposal(tx, id)
		if err != nil {
			return cleared, err
		}
		if p.IsActive(tx.Now()) {
			continue
		}
		if err := tx.Delete(key); err != nil {
			return cleared, err
		}
		cleared++
	}
	if cleared > 0 {
		tx.Emit("governance.reconcile", g.principal, map[string]any{"cleared": cleared})
	}
	return cleared, nil
}

// CheckInvariants verifies that every active pointer names an existing
// proposal of that proposer and that no proposal id exceeds the counter.
func (g *Governor) CheckInvariants(tx *state.Tx) error {
	for _, key := range tx.Keys(activePrefix) {
		proposer := models.Principal(strings.TrimPrefix(key, activePrefix))
		id, err := state.GetUint(tx, key)
		if err != nil {
			return err
		}
		p, err := g.Proposal(tx, id)
		if err != nil {
			return fmt.Errorf("pointer of %s: %w", proposer, err)
		}
		if p.Proposer != proposer {
			return fmt.Errorf("pointer of %s names proposal %d of %s", proposer, id, p.Proposer)
		}
	}
	count, err := g.ProposalCount(tx)
	if err != nil {
		return err
	}
	for _, key := range tx.Keys(proposalPrefix) {
		id, err := state.ParseSeqKey(strings.TrimPrefix(key, proposalPrefix))
		if err != nil {
			return fmt.Errorf("proposal key %s: %w", key, err)
		}
		if id == 0 || id > count {
			return fmt.Errorf("proposal %d outside 1..%d", id, count)
		}
	}
	return nil
}

func add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fault.ErrArithmeticOverflow
	}
	return sum, nil
}
