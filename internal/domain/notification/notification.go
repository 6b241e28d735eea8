// Package notification defines the structured messages the workflow engine
// emits toward the surrounding UI. Metadata is a closed tagged union keyed by
// action so malformed payloads cannot reach the sink.
package notification

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action names a machine-actionable notification kind.
type Action string

const (
	ActionRoomCreated      Action = "ROOM_CREATED"
	ActionPeerJoined       Action = "PEER_JOINED"
	ActionRoleConflict     Action = "ROLE_CONFLICT"
	ActionRolePrompt       Action = "ROLE_PROMPT"
	ActionRoleConfirm      Action = "ROLE_CONFIRM"
	ActionRolesAssigned    Action = "ROLES_ASSIGNED"
	ActionFeePrompt        Action = "FEE_PROMPT"
	ActionAmountProposed   Action = "AMOUNT_PROPOSED"
	ActionAmountRejected   Action = "AMOUNT_REJECTED"
	ActionFeeSummary       Action = "FEE_SUMMARY"
	ActionDepositAddress   Action = "DEPOSIT_ADDRESS"
	ActionDepositConfirmed Action = "DEPOSIT_CONFIRMED"
	ActionReleaseRequested Action = "RELEASE_REQUESTED"
	ActionPayoutAddress    Action = "PAYOUT_ADDRESS"
	ActionReleaseReverted  Action = "RELEASE_REVERTED"
	ActionCancelRequested  Action = "CANCEL_REQUESTED"
	ActionRefundAddress    Action = "REFUND_ADDRESS"
	ActionCancelReverted   Action = "CANCEL_REVERTED"
	ActionCompleted        Action = "COMPLETED"
	ActionCancelled        Action = "CANCELLED"
	ActionExpiryWarning    Action = "EXPIRY_WARNING"
	ActionExpired          Action = "EXPIRED"
	ActionDisputeOpened    Action = "DISPUTE_OPENED"
)

// Button is one UI action offered alongside a notification.
type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Meta is the metadata union. Each variant carries only the fields its
// action uses; the sealed method keeps the set closed.
type Meta interface {
	NotificationAction() Action
}

// Buttoned is implemented by variants that offer UI buttons.
type Buttoned interface {
	NotificationButtons() []Button
}

type RoomCreated struct {
	JoinCode string `json:"joinCode"`
}

func (RoomCreated) NotificationAction() Action { return ActionRoomCreated }

type PeerJoined struct {
	PeerName string `json:"peerName"`
}

func (PeerJoined) NotificationAction() Action { return ActionPeerJoined }
func (PeerJoined) NotificationButtons() []Button {
	return []Button{
		{Label: "I send the funds", Action: "select_role:SENDER"},
		{Label: "I receive the funds", Action: "select_role:RECEIVER"},
	}
}

type RoleConflict struct {
	Role string `json:"role"`
}

func (RoleConflict) NotificationAction() Action { return ActionRoleConflict }
func (RoleConflict) NotificationButtons() []Button {
	return []Button{{Label: "Reset roles", Action: "reset_roles"}}
}

// RolePrompt is the role-selection entry message, emitted on join and again
// after a reset.
type RolePrompt struct{}

func (RolePrompt) NotificationAction() Action { return ActionRolePrompt }
func (RolePrompt) NotificationButtons() []Button {
	return []Button{
		{Label: "I send the funds", Action: "select_role:SENDER"},
		{Label: "I receive the funds", Action: "select_role:RECEIVER"},
	}
}

// RoleConfirm prompts both parties once distinct roles are on the table.
type RoleConfirm struct {
	SenderName   string `json:"senderName"`
	ReceiverName string `json:"receiverName"`
}

func (RoleConfirm) NotificationAction() Action { return ActionRoleConfirm }
func (RoleConfirm) NotificationButtons() []Button {
	return []Button{
		{Label: "Confirm roles", Action: "confirm_role"},
		{Label: "Reset roles", Action: "reset_roles"},
	}
}

type RolesAssigned struct {
	SenderName   string `json:"senderName"`
	ReceiverName string `json:"receiverName"`
}

func (RolesAssigned) NotificationAction() Action { return ActionRolesAssigned }

type AmountProposed struct {
	Amount      int64  `json:"amount"`
	TokenSymbol string `json:"tokenSymbol"`
}

func (AmountProposed) NotificationAction() Action { return ActionAmountProposed }
func (AmountProposed) NotificationButtons() []Button {
	return []Button{
		{Label: "Confirm amount", Action: "confirm_amount:true"},
		{Label: "Reject amount", Action: "confirm_amount:false"},
	}
}

type AmountRejected struct{}

func (AmountRejected) NotificationAction() Action { return ActionAmountRejected }

// FeePrompt asks the parties to pick who bears the fee; emitted on entering
// FEE_SELECTION.
type FeePrompt struct{}

func (FeePrompt) NotificationAction() Action { return ActionFeePrompt }
func (FeePrompt) NotificationButtons() []Button {
	return []Button{
		{Label: "Sender pays the fee", Action: "select_fee:SENDER"},
		{Label: "Receiver pays the fee", Action: "select_fee:RECEIVER"},
		{Label: "Split the fee", Action: "select_fee:SPLIT"},
	}
}

type FeeSummary struct {
	Amount        int64  `json:"amount"`
	Fee           int64  `json:"fee"`
	FeePayer      string `json:"feePayer"`
	DepositAmount int64  `json:"depositAmount"`
	PayoutAmount  int64  `json:"payoutAmount"`
}

func (FeeSummary) NotificationAction() Action { return ActionFeeSummary }
func (FeeSummary) NotificationButtons() []Button {
	return []Button{{Label: "Confirm fee split", Action: "confirm_fee"}}
}

type DepositAddress struct {
	Address       string `json:"address"`
	DepositAmount int64  `json:"depositAmount"`
	TokenSymbol   string `json:"tokenSymbol"`
	ChainID       string `json:"chainId"`
}

func (DepositAddress) NotificationAction() Action { return ActionDepositAddress }
func (DepositAddress) NotificationButtons() []Button {
	return []Button{{Label: "I have deposited", Action: "check_deposit"}}
}

type DepositConfirmed struct {
	TxRef  string `json:"txRef"`
	Amount int64  `json:"amount"`
}

func (DepositConfirmed) NotificationAction() Action { return ActionDepositConfirmed }

type ReleaseRequested struct{}

func (ReleaseRequested) NotificationAction() Action { return ActionReleaseRequested }
func (ReleaseRequested) NotificationButtons() []Button {
	return []Button{
		{Label: "Confirm release", Action: "confirm_release"},
		{Label: "Reject release", Action: "cancel_release"},
	}
}

type PayoutAddress struct {
	Address *string `json:"address,omitempty"`
}

func (PayoutAddress) NotificationAction() Action { return ActionPayoutAddress }
func (p PayoutAddress) NotificationButtons() []Button {
	if p.Address == nil {
		return nil
	}
	return []Button{
		{Label: "Confirm address", Action: "confirm_payout_address"},
		{Label: "Change address", Action: "change_payout_address"},
	}
}

type ReleaseReverted struct{}

func (ReleaseReverted) NotificationAction() Action { return ActionReleaseReverted }

type CancelRequested struct {
	RequestedBy string `json:"requestedBy"`
}

func (CancelRequested) NotificationAction() Action { return ActionCancelRequested }
func (CancelRequested) NotificationButtons() []Button {
	return []Button{
		{Label: "Confirm cancellation", Action: "confirm_cancel"},
		{Label: "Reject cancellation", Action: "reject_cancel"},
	}
}

type RefundAddress struct {
	Address *string `json:"address,omitempty"`
}

func (RefundAddress) NotificationAction() Action { return ActionRefundAddress }
func (r RefundAddress) NotificationButtons() []Button {
	if r.Address == nil {
		return nil
	}
	return []Button{
		{Label: "Confirm address", Action: "confirm_refund_address"},
		{Label: "Change address", Action: "change_refund_address"},
	}
}

type CancelReverted struct{}

func (CancelReverted) NotificationAction() Action { return ActionCancelReverted }

type Completed struct {
	TxRef        string `json:"txRef"`
	PayoutAmount int64  `json:"payoutAmount"`
}

func (Completed) NotificationAction() Action { return ActionCompleted }

type Cancelled struct {
	TxRef        string `json:"txRef"`
	RefundAmount int64  `json:"refundAmount"`
}

func (Cancelled) NotificationAction() Action { return ActionCancelled }

type ExpiryWarning struct {
	Remaining time.Duration `json:"remainingSeconds"`
}

func (ExpiryWarning) NotificationAction() Action { return ActionExpiryWarning }

type Expired struct {
	Window string `json:"window"` // "negotiation" or "deposit"
}

func (Expired) NotificationAction() Action { return ActionExpired }

type DisputeOpened struct {
	DisputeID uuid.UUID `json:"disputeId"`
}

func (DisputeOpened) NotificationAction() Action { return ActionDisputeOpened }

// Message is one structured notification for a room: human text plus
// machine-actionable metadata.
type Message struct {
	RoomID uuid.UUID
	Text   string
	Meta   Meta
}

type envelope struct {
	RoomID uuid.UUID       `json:"roomId"`
	Text   string          `json:"text"`
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
	Button []Button        `json:"buttons,omitempty"`
}

// MarshalJSON flattens the tagged union into the wire shape
// {roomId, text, action, data, buttons}.
func (m *Message) MarshalJSON() ([]byte, error) {
	env := envelope{RoomID: m.RoomID, Text: m.Text}
	if m.Meta != nil {
		env.Action = m.Meta.NotificationAction()
		data, err := json.Marshal(m.Meta)
		if err != nil {
			return nil, err
		}
		if string(data) != "{}" {
			env.Data = data
		}
		if b, ok := m.Meta.(Buttoned); ok {
			env.Button = b.NotificationButtons()
		}
	}
	return json.Marshal(env)
}
