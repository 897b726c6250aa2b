package governance

import (
	"fmt"
)

// WeightPolicy selects how voting weight and the quorum base are measured.
type WeightPolicy string

const (
	// WeightSnapshot weighs votes by the reward balance recorded when the
	// proposal was created and measures quorum against the supply at that point.
	WeightSnapshot WeightPolicy = "snapshot"
	// WeightLive weighs votes by the current balance and measures quorum
	// against the current supply. Balances moved between votes count again.
	WeightLive WeightPolicy = "live"
)

const (
	// DefaultVotingPeriod is how many blocks a proposal stays open for votes.
	DefaultVotingPeriod = 1008
	// DefaultMinProposalTokens is the reward balance a proposer must hold.
	DefaultMinProposalTokens = 1_000_000
	// DefaultQuorumPercent is the share of supply that must vote, for or
	// against, before a proposal can pass.
	DefaultQuorumPercent = 10
	// DefaultMaxRewardRateBps caps the reward rate a proposal may set.
	DefaultMaxRewardRateBps = 10_000
	// DefaultMaxTitleLength is the longest accepted proposal title in bytes.
	DefaultMaxTitleLength = 256
	// DefaultMaxDescriptionLength is the longest accepted proposal
	// description in bytes.
	DefaultMaxDescriptionLength = 4096
)

// Params configure proposal admission, voting and execution.
type Params struct {
	VotingPeriod         uint64       `json:"voting_period" yaml:"voting_period"`
	MinProposalTokens    uint64       `json:"min_proposal_tokens" yaml:"min_proposal_tokens"`
	QuorumPercent        uint64       `json:"quorum_percent" yaml:"quorum_percent"`
	MaxRewardRateBps     uint32       `json:"max_reward_rate_bps" yaml:"max_reward_rate_bps"`
	MaxTitleLength       int          `json:"max_title_length" yaml:"max_title_length"`
	MaxDescriptionLength int          `json:"max_description_length" yaml:"max_description_length"`
	Weight               WeightPolicy `json:"weight_policy" yaml:"weight_policy"`
}

// DefaultParams returns the default governance parameters.
func DefaultParams() Params {
	return Params{
		VotingPeriod:         DefaultVotingPeriod,
		MinProposalTokens:    DefaultMinProposalTokens,
		QuorumPercent:        DefaultQuorumPercent,
		MaxRewardRateBps:     DefaultMaxRewardRateBps,
		MaxTitleLength:       DefaultMaxTitleLength,
		MaxDescriptionLength: DefaultMaxDescriptionLength,
		Weight:               WeightSnapshot,
	}
}

// Validate reports the first unusable parameter.
func (p Params) Validate() error {
	switch {
	case p.VotingPeriod == 0:
		return fmt.Errorf("voting period must be positive")
	case p.QuorumPercent > 100:
		return fmt.Errorf("quorum percent %d above 100", p.QuorumPercent)
	case p.MaxRewardRateBps == 0:
		return fmt.Errorf("max reward rate must be positive")
	case p.MaxTitleLength <= 0 || p.MaxDescriptionLength < 0:
		return fmt.Errorf("invalid text limits %d/%d", p.MaxTitleLength, p.MaxDescriptionLength)
	}
	switch p.Weight {
	case WeightSnapshot, WeightLive:
		return nil
	default:
		return fmt.Errorf("unknown weight policy %q", p.Weight)
	}
}
