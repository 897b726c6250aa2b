// Package models defines the records shared by the vault, governance and
// ledger modules and exchanged over the HTTP API.
package models

// Principal identifies an account, a module or the owner.
type Principal string

// Deposit is the single live deposit a principal may hold in the vault.
type Deposit struct {
	// Amount is the locked base-asset principal. Always > 0 while the record exists.
	Amount uint64 `json:"amount"`
	// DepositTime is the logical time the deposit was made.
	DepositTime uint64 `json:"deposit_time"`
	// LastClaimTime is where the next accrual window starts.
	LastClaimTime uint64 `json:"last_claim_time"`
	// RewardsClaimed accumulates rewards paid out by claims on this deposit.
	RewardsClaimed uint64 `json:"rewards_claimed"`
}

// UserStats are cumulative per-principal totals. They only grow.
type UserStats struct {
	TotalDeposited uint64 `json:"total_deposited"`
	TotalWithdrawn uint64 `json:"total_withdrawn"`
	TotalRewards   uint64 `json:"total_rewards"`
	DepositCount   uint64 `json:"deposit_count"`
}

// Account is one principal's view of the vault, read at a single sequence.
type Account struct {
	Principal     Principal  `json:"principal"`
	Deposit       *Deposit   `json:"deposit"`
	Stats         *UserStats `json:"stats"`
	PendingReward uint64     `json:"pending_reward"`
	IsAdmin       bool       `json:"is_admin"`
}

// VaultState is the vault singleton.
type VaultState struct {
	// TotalLocked is the sum of live deposit amounts.
	TotalLocked uint64 `json:"total_locked"`
	// DepositorCount is the number of live deposits.
	DepositorCount uint64 `json:"depositor_count"`
	// RewardRateBps is the reward per accrual cycle in basis points of the deposit.
	RewardRateBps uint32 `json:"reward_rate_bps"`
	// Paused blocks deposits, withdrawals and claims.
	Paused bool `json:"paused"`
}

// WithdrawResult is returned by a successful withdrawal.
type WithdrawResult struct {
	ReturnedAmount uint64 `json:"returned_amount"`
	RewardsEarned  uint64 `json:"rewards_earned"`
}

// ProposalKind selects what a passed proposal does to the vault.
type ProposalKind string

const (
	// KindGeneral records an outcome only.
	KindGeneral ProposalKind = "general"
	// KindRewardRate sets the vault reward rate to the proposal value.
	KindRewardRate ProposalKind = "reward-rate"
	// KindPause toggles the vault pause flag.
	KindPause ProposalKind = "pause"
)

// Proposal is a governance proposal. Never deleted.
type Proposal struct {
	ID             uint64       `json:"id"`
	Proposer       Principal    `json:"proposer"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Kind           ProposalKind `json:"kind"`
	Value          uint64       `json:"value"`
	CreatedAt      uint64       `json:"created_at"`
	VotingDeadline uint64       `json:"voting_deadline"`
	// SnapshotSeq is the commit sequence of the creating operation; balance
	// checkpoints at or below it define snapshot voting weight.
	SnapshotSeq  uint64 `json:"snapshot_seq"`
	VotesFor     uint64 `json:"votes_for"`
	VotesAgainst uint64 `json:"votes_against"`
	VoterCount   uint64 `json:"voter_count"`
	Executed     bool   `json:"executed"`
	Passed       bool   `json:"passed"`
}

// ProposalStatus is derived from a proposal and the current time.
type ProposalStatus string

const (
	StatusActive  ProposalStatus = "active"
	StatusPassed  ProposalStatus = "passed"
	StatusFailed  ProposalStatus = "failed"
	StatusExpired ProposalStatus = "expired"
)

// Status reports the lifecycle state at logical time now.
func (p *Proposal) Status(now uint64) ProposalStatus {
	switch {
	case p.Executed && p.Passed:
		return StatusPassed
	case p.Executed:
		return StatusFailed
	case now > p.VotingDeadline:
		return StatusExpired
	default:
		return StatusActive
	}
}

// IsActive reports whether the proposal is not executed and still inside its voting window.
func (p *Proposal) IsActive(now uint64) bool {
	return p.Status(now) == StatusActive
}

// VoteRecord is written once per (proposal, voter).
type VoteRecord struct {
	Weight  uint64 `json:"weight"`
	Support bool   `json:"support"`
}

// Role names a permission set in the authorization registry.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMinter Role = "minter"
)

// Event is emitted by committed operations.
type Event struct {
	// ID is a random UUID.
	ID string `json:"id"`
	// Seq is the commit sequence that produced the event.
	Seq uint64 `json:"seq"`
	// Index is the emission order within the commit, starting at 0.
	Index int `json:"index"`
	// Type is a dotted name, e.g. "vault.deposit".
	Type string `json:"type"`
	// Principal is the caller of the operation.
	Principal Principal `json:"principal"`
	// At is the logical time of the operation.
	At uint64 `json:"at"`
	// Attrs carries event-specific values.
	Attrs map[string]any `json:"attrs,omitempty"`
}
