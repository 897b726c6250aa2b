package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("execute proposal 3: %w", ErrQuorumNotMet)
	if !errors.Is(err, ErrQuorumNotMet) {
		t.Fatalf("errors.Is lost the sentinel")
	}
	if got := KindOf(err); got != KindPolicyGate {
		t.Errorf("KindOf = %v; want %v", got, KindPolicyGate)
	}
	if got := CodeOf(err); got != "QuorumNotMet" {
		t.Errorf("CodeOf = %q; want QuorumNotMet", got)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	err := errors.New("disk on fire")
	if got := KindOf(err); got != KindInternal {
		t.Errorf("KindOf = %v; want internal", got)
	}
	if got := CodeOf(err); got != "Internal" {
		t.Errorf("CodeOf = %q; want Internal", got)
	}
}

func TestDistinctSentinels(t *testing.T) {
	if errors.Is(ErrVotingNotEnded, ErrQuorumNotMet) {
		t.Error("distinct codes must not match")
	}
	if ErrVotingNotEnded.Kind == ErrQuorumNotMet.Kind {
		t.Error("not-yet-executable and quorum failures should be distinguishable by kind")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindInternal:        "internal",
		KindAuthorization:   "authorization",
		KindValidation:      "validation",
		KindStateConflict:   "state_conflict",
		KindResourceAbsence: "resource_absence",
		KindPolicyGate:      "policy_gate",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q; want %q", k, got, want)
		}
	}
}
