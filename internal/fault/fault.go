// Package fault defines the typed failures returned by the vault, governance,
// ledger and authorization modules.
package fault

import "errors"

// Kind groups error codes so callers can react to a class of failure.
type Kind int

const (
	// KindInternal covers storage and encoding failures.
	KindInternal Kind = iota
	// KindAuthorization means the caller lacks the required role.
	KindAuthorization
	// KindValidation means the input was malformed or out of range.
	KindValidation
	// KindStateConflict means the operation does not fit the current record state.
	KindStateConflict
	// KindResourceAbsence means the referenced record does not exist.
	KindResourceAbsence
	// KindPolicyGate means a threshold (quorum, token holding) was not reached.
	KindPolicyGate
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindResourceAbsence:
		return "resource_absence"
	case KindPolicyGate:
		return "policy_gate"
	default:
		return "internal"
	}
}

// Error is a sentinel failure. Values are compared by identity, so wrap them
// with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
type Error struct {
	Code string
	Kind Kind
}

func (e *Error) Error() string { return e.Code }

// New creates a sentinel error.
func New(code string, kind Kind) *Error {
	return &Error{Code: code, Kind: kind}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain, or "Internal".
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return "Internal"
}

var (
	ErrNotAuthorized       = New("NotAuthorized", KindAuthorization)
	ErrInvalidAmount       = New("InvalidAmount", KindValidation)
	ErrInvalidRewardRate   = New("InvalidRewardRate", KindValidation)
	ErrInvalidProposal     = New("InvalidProposal", KindValidation)
	ErrInvalidPrincipal    = New("InvalidPrincipal", KindValidation)
	ErrArithmeticOverflow  = New("ArithmeticOverflow", KindValidation)
	ErrAlreadyDeposited    = New("AlreadyDeposited", KindStateConflict)
	ErrVaultPaused         = New("VaultPaused", KindStateConflict)
	ErrVotingActive        = New("VotingActive", KindStateConflict)
	ErrVotingEnded         = New("VotingEnded", KindStateConflict)
	ErrVotingNotEnded      = New("VotingNotEnded", KindStateConflict)
	ErrProposalExecuted    = New("ProposalExecuted", KindStateConflict)
	ErrAlreadyVoted        = New("AlreadyVoted", KindStateConflict)
	ErrMintingDisabled     = New("MintingDisabled", KindStateConflict)
	ErrAlreadyInitialized  = New("AlreadyInitialized", KindStateConflict)
	ErrPrincipalTaken      = New("PrincipalTaken", KindStateConflict)
	ErrNoDeposit           = New("NoDeposit", KindResourceAbsence)
	ErrProposalNotFound    = New("ProposalNotFound", KindResourceAbsence)
	ErrUnknownAsset        = New("UnknownAsset", KindResourceAbsence)
	ErrInsufficientBalance = New("InsufficientBalance", KindPolicyGate)
	ErrInsufficientTokens  = New("InsufficientTokens", KindPolicyGate)
	ErrQuorumNotMet        = New("QuorumNotMet", KindPolicyGate)
)
