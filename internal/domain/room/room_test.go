package room

import "testing"

func TestStepTerminal(t *testing.T) {
	terminal := []Step{StepCompleted, StepCancelled, StepExpired}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	open := []Step{StepWaitingForPeer, StepRoleSelection, StepAmountAgreement, StepFeeSelection, StepAwaitingDeposit, StepFunded, StepReleasing, StepCancelling}
	for _, s := range open {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestStepPreFunding(t *testing.T) {
	if !StepAmountAgreement.PreFunding() {
		t.Fatal("AMOUNT_AGREEMENT is a pre-funding step")
	}
	if StepAwaitingDeposit.PreFunding() {
		t.Fatal("AWAITING_DEPOSIT is covered by the funding window, not the pre-funding one")
	}
	if StepFunded.PreFunding() {
		t.Fatal("FUNDED never expires")
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" sender ")
	if err != nil || r != RoleSender {
		t.Fatalf("expected SENDER, got %q err=%v", r, err)
	}
	if _, err := ParseRole("broker"); err == nil {
		t.Fatal("expected validation error for unknown role")
	}
}

func TestRolesConflict(t *testing.T) {
	sender := RoleSender
	receiver := RoleReceiver
	both := []*Participant{{Role: &sender}, {Role: &sender}}
	if !RolesConflict(both) {
		t.Fatal("two SENDERs must conflict")
	}
	distinct := []*Participant{{Role: &sender}, {Role: &receiver}}
	if RolesConflict(distinct) {
		t.Fatal("distinct roles must not conflict")
	}
	partial := []*Participant{{Role: &sender}, {}}
	if RolesConflict(partial) {
		t.Fatal("an unset role never conflicts")
	}
}

func TestAllConfirmedRequiresDecisionValue(t *testing.T) {
	sender := RoleSender
	receiver := RoleReceiver
	r := &Room{}
	parts := []*Participant{
		{Role: &sender, AmountConfirmed: true},
		{Role: &receiver, AmountConfirmed: true},
	}
	if AllConfirmed(r, parts, PhaseAmount) {
		t.Fatal("amount phase cannot be all-confirmed while the room has no amount")
	}
	amount := int64(100)
	r.Amount = &amount
	if !AllConfirmed(r, parts, PhaseAmount) {
		t.Fatal("expected all-confirmed once the amount is set and both flags are true")
	}
}

func TestAllConfirmedNeedsTwoParticipants(t *testing.T) {
	sender := RoleSender
	r := &Room{}
	parts := []*Participant{{Role: &sender, RoleConfirmed: true}}
	if AllConfirmed(r, parts, PhaseRole) {
		t.Fatal("a single participant can never satisfy all-confirmed")
	}
}

func TestNormalizeJoinCode(t *testing.T) {
	if NormalizeJoinCode(" ab12cd ") != "AB12CD" {
		t.Fatal("join codes are case-insensitive and trimmed")
	}
}
