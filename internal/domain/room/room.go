package room

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Step is the room's current workflow phase.
type Step string

const (
	StepWaitingForPeer  Step = "WAITING_FOR_PEER"
	StepRoleSelection   Step = "ROLE_SELECTION"
	StepAmountAgreement Step = "AMOUNT_AGREEMENT"
	StepFeeSelection    Step = "FEE_SELECTION"
	StepAwaitingDeposit Step = "AWAITING_DEPOSIT"
	StepFunded          Step = "FUNDED"
	StepReleasing       Step = "RELEASING"
	StepCompleted       Step = "COMPLETED"
	StepCancelling      Step = "CANCELLING"
	StepCancelled       Step = "CANCELLED"
	StepExpired         Step = "EXPIRED"
)

// Terminal reports whether no further transitions leave this step.
func (s Step) Terminal() bool {
	switch s {
	case StepCompleted, StepCancelled, StepExpired:
		return true
	}
	return false
}

// PreFunding reports whether the step belongs to the negotiation stage
// covered by the short inactivity window.
func (s Step) PreFunding() bool {
	switch s {
	case StepWaitingForPeer, StepRoleSelection, StepAmountAgreement, StepFeeSelection:
		return true
	}
	return false
}

// Status is the room's coarse lifecycle state, orthogonal to step except
// for terminal alignment.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
	StatusDisputed  Status = "DISPUTED"
)

// Role identifies which side of the deal a participant takes.
type Role string

const (
	RoleSender   Role = "SENDER"
	RoleReceiver Role = "RECEIVER"
)

// ParseRole validates a user-supplied role string.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleSender:
		return RoleSender, nil
	case RoleReceiver:
		return RoleReceiver, nil
	}
	return "", Validation("role must be SENDER or RECEIVER")
}

// FeePayer is the fee-bearing policy for a deal.
type FeePayer string

const (
	FeePayerSender   FeePayer = "SENDER"
	FeePayerReceiver FeePayer = "RECEIVER"
	FeePayerSplit    FeePayer = "SPLIT"
)

// ParseFeePayer validates a user-supplied fee-payer string.
func ParseFeePayer(s string) (FeePayer, error) {
	switch FeePayer(strings.ToUpper(strings.TrimSpace(s))) {
	case FeePayerSender:
		return FeePayerSender, nil
	case FeePayerReceiver:
		return FeePayerReceiver, nil
	case FeePayerSplit:
		return FeePayerSplit, nil
	}
	return "", Validation("fee payer must be SENDER, RECEIVER or SPLIT")
}

// ConfirmPhase names one of the independent per-participant confirmation flags.
type ConfirmPhase string

const (
	PhaseRole    ConfirmPhase = "ROLE"
	PhaseAmount  ConfirmPhase = "AMOUNT"
	PhaseFee     ConfirmPhase = "FEE"
	PhaseRelease ConfirmPhase = "RELEASE"
	PhaseCancel  ConfirmPhase = "CANCEL"
)

// Room is one escrow negotiation between exactly two participants.
type Room struct {
	ID             int64      `json:"id"`
	RoomID         uuid.UUID  `json:"roomId"`
	Name           string     `json:"name"`
	JoinCode       string     `json:"joinCode"`
	ChainID        string     `json:"chainId"`
	TokenSymbol    string     `json:"tokenSymbol"`
	TokenDecimals  int        `json:"tokenDecimals"`
	Amount         *int64     `json:"amount,omitempty"`
	FeePayer       *FeePayer  `json:"feePayer,omitempty"`
	EscrowAddress  *string    `json:"escrowAddress,omitempty"`
	DepositTxRef   *string    `json:"depositTxRef,omitempty"`
	ReleaseTxRef   *string    `json:"releaseTxRef,omitempty"`
	Step           Step       `json:"step"`
	Status         Status     `json:"status"`
	CreatedBy      uuid.UUID  `json:"createdBy"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Participant is one of the two users negotiating in a room.
type Participant struct {
	ID               int64     `json:"id"`
	ParticipantID    uuid.UUID `json:"participantId"`
	RoomID           uuid.UUID `json:"roomId"`
	UserID           uuid.UUID `json:"userId"`
	Role             *Role     `json:"role,omitempty"`
	RoleConfirmed    bool      `json:"roleConfirmed"`
	AmountConfirmed  bool      `json:"amountConfirmed"`
	FeeConfirmed     bool      `json:"feeConfirmed"`
	ReleaseConfirmed bool      `json:"releaseConfirmed"`
	CancelConfirmed  bool      `json:"cancelConfirmed"`
	PayoutAddress    *string   `json:"payoutAddress,omitempty"`
	JoinedAt         time.Time `json:"joinedAt"`
}

// HasRole reports whether the participant holds the given role.
func (p *Participant) HasRole(role Role) bool {
	return p.Role != nil && *p.Role == role
}

// Confirmed returns the confirmation flag for a phase.
func (p *Participant) Confirmed(phase ConfirmPhase) bool {
	switch phase {
	case PhaseRole:
		return p.RoleConfirmed
	case PhaseAmount:
		return p.AmountConfirmed
	case PhaseFee:
		return p.FeeConfirmed
	case PhaseRelease:
		return p.ReleaseConfirmed
	case PhaseCancel:
		return p.CancelConfirmed
	}
	return false
}

// RolesConflict reports whether both participants picked the same role.
// Roles are stored as entered; a conflicting pair needs a reset to unstick.
func RolesConflict(participants []*Participant) bool {
	if len(participants) < 2 {
		return false
	}
	for i := 0; i < len(participants); i++ {
		for j := i + 1; j < len(participants); j++ {
			a, b := participants[i].Role, participants[j].Role
			if a != nil && b != nil && *a == *b {
				return true
			}
		}
	}
	return false
}

// AllConfirmed reports whether every current participant holds both a
// decision value for the phase and a true confirmation flag. A participant
// who has not yet set a value never counts toward all-confirmed, and a room
// short of two participants never satisfies it.
func AllConfirmed(r *Room, participants []*Participant, phase ConfirmPhase) bool {
	if len(participants) < 2 {
		return false
	}
	for _, p := range participants {
		if !phaseDecided(r, p, phase) || !p.Confirmed(phase) {
			return false
		}
	}
	return true
}

func phaseDecided(r *Room, p *Participant, phase ConfirmPhase) bool {
	switch phase {
	case PhaseRole:
		return p.Role != nil
	case PhaseAmount:
		return r.Amount != nil
	case PhaseFee:
		return r.FeePayer != nil
	}
	return true
}

// NormalizeJoinCode canonicalizes a join code for case-insensitive lookup.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
