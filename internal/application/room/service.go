package room

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/escrowroom/escrowroom/internal/domain/fee"
	"github.com/escrowroom/escrowroom/internal/domain/notification"
	"github.com/escrowroom/escrowroom/internal/domain/room"
	"github.com/escrowroom/escrowroom/internal/domain/settlement"
	"github.com/escrowroom/escrowroom/internal/domain/user"
)

// Service is the phase-transition authority for escrow rooms. Every user
// action re-reads the room under its per-room lock, validates the current
// step and the actor's eligibility, applies the change, and emits at most one
// notification. Step writes are compare-and-swap at the storage layer on top
// of the lock.
type Service struct {
	rooms     room.Repository
	txs       settlement.Repository
	gateway   settlement.Gateway
	sink      notification.Sink
	users     user.Directory
	locks     *Locker
	simulated bool
	logger    zerolog.Logger
}

// NewService creates the room workflow service. simulated selects the mock
// settlement mode in which payouts run immediately against the placeholder
// destination.
func NewService(
	rooms room.Repository,
	txs settlement.Repository,
	gateway settlement.Gateway,
	sink notification.Sink,
	users user.Directory,
	locks *Locker,
	simulated bool,
	logger zerolog.Logger,
) *Service {
	return &Service{
		rooms:     rooms,
		txs:       txs,
		gateway:   gateway,
		sink:      sink,
		users:     users,
		locks:     locks,
		simulated: simulated,
		logger:    logger.With().Str("service", "room").Logger(),
	}
}

// CreateRoomInput creates a new escrow room.
type CreateRoomInput struct {
	Name          string
	ChainID       string
	TokenSymbol   string
	TokenDecimals int
	CreatorID     uuid.UUID
}

// CreateRoom creates a room in WAITING_FOR_PEER together with its first
// participant (the creator).
func (s *Service) CreateRoom(ctx context.Context, in CreateRoomInput) (*room.Room, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, room.Validation("room name is required")
	}
	if in.ChainID == "" || in.TokenSymbol == "" {
		return nil, room.Validation("chain and settlement token are required")
	}
	if in.TokenDecimals < 0 || in.TokenDecimals > 18 {
		return nil, room.Validation("token decimals out of range")
	}
	if in.CreatorID == uuid.Nil {
		return nil, room.Validation("creator is required")
	}

	code, err := newJoinCode()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	r := &room.Room{
		RoomID:         uuid.New(),
		Name:           name,
		JoinCode:       code,
		ChainID:        in.ChainID,
		TokenSymbol:    strings.ToUpper(in.TokenSymbol),
		TokenDecimals:  in.TokenDecimals,
		Step:           room.StepWaitingForPeer,
		Status:         room.StatusOpen,
		CreatedBy:      in.CreatorID,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.rooms.CreateRoom(ctx, r); err != nil {
		return nil, err
	}
	p := &room.Participant{
		ParticipantID: uuid.New(),
		RoomID:        r.RoomID,
		UserID:        in.CreatorID,
		JoinedAt:      now,
	}
	if err := s.rooms.CreateParticipant(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info().Str("room_id", r.RoomID.String()).Str("join_code", code).Msg("room created")
	s.notify(ctx, r.RoomID, fmt.Sprintf("Room %q is ready. Share code %s with your counterparty.", name, code),
		notification.RoomCreated{JoinCode: code})
	return r, nil
}

// JoinRoom adds the second participant by join code and advances the room to
// ROLE_SELECTION.
func (s *Service) JoinRoom(ctx context.Context, joinCode string, userID uuid.UUID) error {
	code := room.NormalizeJoinCode(joinCode)
	if code == "" {
		return room.Validation("join code is required")
	}
	r, err := s.rooms.GetRoomByCode(ctx, code)
	if err != nil {
		return err
	}
	if r == nil {
		return room.NotFound("no room with code %s", code)
	}

	unlock := s.locks.Lock(r.RoomID)
	defer unlock()

	r, err = s.load(ctx, r.RoomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepWaitingForPeer {
		return room.InvalidPhase(room.StepWaitingForPeer, r.Step)
	}
	participants, err := s.rooms.ListParticipants(ctx, r.RoomID)
	if err != nil {
		return err
	}
	for _, p := range participants {
		if p.UserID == userID {
			return room.Validation("you are already in this room")
		}
	}
	if len(participants) >= 2 {
		return room.Validation("room already has two participants")
	}

	now := time.Now().UTC()
	p := &room.Participant{
		ParticipantID: uuid.New(),
		RoomID:        r.RoomID,
		UserID:        userID,
		JoinedAt:      now,
	}
	if err := s.rooms.CreateParticipant(ctx, p); err != nil {
		return err
	}
	if _, err := s.rooms.UpdateStep(ctx, r.RoomID, room.StepWaitingForPeer, room.StepRoleSelection, r.Status, now); err != nil {
		return err
	}

	peer := s.users.DisplayName(ctx, userID)
	s.notify(ctx, r.RoomID, fmt.Sprintf("%s joined. Choose who sends and who receives the funds.", peer),
		notification.PeerJoined{PeerName: peer})
	return nil
}

// SelectRole records a participant's role pick. Both flags for the role
// phase reset whenever any role changes; equal roles surface a conflict and
// keep the room in ROLE_SELECTION.
func (s *Service) SelectRole(ctx context.Context, roomID, userID uuid.UUID, roleInput string) error {
	role, err := room.ParseRole(roleInput)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepRoleSelection {
		return room.InvalidPhase(room.StepRoleSelection, r.Step)
	}
	p, err := s.participant(ctx, roomID, userID)
	if err != nil {
		return err
	}

	if err := s.rooms.SetRole(ctx, p.ParticipantID, &role); err != nil {
		return err
	}
	if err := s.rooms.ResetPhase(ctx, roomID, room.PhaseRole); err != nil {
		return err
	}
	if err := s.rooms.TouchRoom(ctx, roomID, time.Now().UTC()); err != nil {
		return err
	}

	participants, err := s.rooms.ListParticipants(ctx, roomID)
	if err != nil {
		return err
	}
	bothPicked := true
	for _, q := range participants {
		if q.Role == nil {
			bothPicked = false
		}
	}
	switch {
	case bothPicked && room.RolesConflict(participants):
		s.notify(ctx, roomID, fmt.Sprintf("Both of you picked %s. Reset the roles to continue.", role),
			notification.RoleConflict{Role: string(role)})
	case bothPicked:
		sender, receiver := s.roleNames(ctx, participants)
		s.notify(ctx, roomID, fmt.Sprintf("%s sends, %s receives. Both confirm to continue.", sender, receiver),
			notification.RoleConfirm{SenderName: sender, ReceiverName: receiver})
	}
	return nil
}

// ConfirmRole marks the actor's role confirmation; when both participants
// hold distinct confirmed roles the room advances to AMOUNT_AGREEMENT.
func (s *Service) ConfirmRole(ctx context.Context, roomID, userID uuid.UUID) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepRoleSelection {
		return room.InvalidPhase(room.StepRoleSelection, r.Step)
	}
	p, err := s.participant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if p.Role == nil {
		return room.Validation("select a role before confirming")
	}
	participants, err := s.rooms.ListParticipants(ctx, roomID)
	if err != nil {
		return err
	}
	if room.RolesConflict(participants) {
		return room.Validation("roles conflict; reset roles to continue")
	}

	if err := s.rooms.SetConfirmation(ctx, p.ParticipantID, room.PhaseRole, true); err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := s.rooms.TouchRoom(ctx, roomID, now); err != nil {
		return err
	}

	for _, q := range participants {
		if q.ParticipantID == p.ParticipantID {
			q.RoleConfirmed = true
		}
	}
	if !room.AllConfirmed(r, participants, room.PhaseRole) {
		return nil
	}
	swapped, err := s.rooms.UpdateStep(ctx, roomID, room.StepRoleSelection, room.StepAmountAgreement, r.Status, now)
	if err != nil || !swapped {
		return err
	}
	sender, receiver := s.roleNames(ctx, participants)
	s.notify(ctx, roomID, fmt.Sprintf("Roles locked: %s sends, %s receives. %s, propose the deal amount.", sender, receiver, sender),
		notification.RolesAssigned{SenderName: sender, ReceiverName: receiver})
	return nil
}

// ResetRoles clears both participants' role and role confirmation and
// returns to the role-selection entry message.
func (s *Service) ResetRoles(ctx context.Context, roomID, userID uuid.UUID) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepRoleSelection {
		return room.InvalidPhase(room.StepRoleSelection, r.Step)
	}
	if _, err := s.participant(ctx, roomID, userID); err != nil {
		return err
	}
	if err := s.rooms.ClearRoles(ctx, roomID); err != nil {
		return err
	}
	if err := s.rooms.TouchRoom(ctx, roomID, time.Now().UTC()); err != nil {
		return err
	}
	s.notify(ctx, roomID, "Roles reset. Choose who sends and who receives the funds.", notification.RolePrompt{})
	return nil
}

// ProposeAmount converts the sender's input into smallest units and resets
// both amount confirmations.
func (s *Service) ProposeAmount(ctx context.Context, roomID, userID uuid.UUID, input string) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepAmountAgreement {
		return room.InvalidPhase(room.StepAmountAgreement, r.Step)
	}
	p, err := s.participant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !p.HasRole(room.RoleSender) {
		return room.Forbidden("only the sender proposes the amount")
	}
	units, err := fee.ParseAmount(input, r.TokenDecimals)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.rooms.SetAmount(ctx, roomID, &units, now); err != nil {
		return err
	}
	if err := s.rooms.ResetPhase(ctx, roomID, room.PhaseAmount); err != nil {
		return err
	}
	s.notify(ctx, roomID, fmt.Sprintf("Proposed amount: %s %s. Both confirm to continue.", formatUnits(units, r.TokenDecimals), r.TokenSymbol),
		notification.AmountProposed{Amount: units, TokenSymbol: r.TokenSymbol})
	return nil
}

// ConfirmAmount records a confirmation or a rejection. A rejection clears
// the amount and re-prompts the sender; once both confirm the room advances
// to FEE_SELECTION.
func (s *Service) ConfirmAmount(ctx context.Context, roomID, userID uuid.UUID, confirmed bool) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepAmountAgreement {
		return room.InvalidPhase(room.StepAmountAgreement, r.Step)
	}
	p, err := s.participant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if r.Amount == nil {
		return room.Validation("no amount has been proposed")
	}

	now := time.Now().UTC()
	if !confirmed {
		if err := s.rooms.SetAmount(ctx, roomID, nil, now); err != nil {
			return err
		}
		if err := s.rooms.ResetPhase(ctx, roomID, room.PhaseAmount); err != nil {
			return err
		}
		s.notify(ctx, roomID, "Amount rejected. Sender, propose a new amount.", notification.AmountRejected{})
		return nil
	}

	if err := s.rooms.SetConfirmation(ctx, p.ParticipantID, room.PhaseAmount, true); err != nil {
		return err
	}
	if err := s.rooms.TouchRoom(ctx, roomID, now); err != nil {
		return err
	}
	participants, err := s.rooms.ListParticipants(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.AllConfirmed(r, participants, room.PhaseAmount) {
		return nil
	}
	swapped, err := s.rooms.UpdateStep(ctx, roomID, room.StepAmountAgreement, room.StepFeeSelection, r.Status, now)
	if err != nil || !swapped {
		return err
	}
	s.notify(ctx, roomID, "Amount agreed. Who pays the 1% service fee?", notification.FeePrompt{})
	return nil
}

// SelectFeePayer sets the fee-payer policy and resets both fee
// confirmations.
func (s *Service) SelectFeePayer(ctx context.Context, roomID, userID uuid.UUID, payerInput string) error {
	payer, err := room.ParseFeePayer(payerInput)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepFeeSelection {
		return room.InvalidPhase(room.StepFeeSelection, r.Step)
	}
	if _, err := s.participant(ctx, roomID, userID); err != nil {
		return err
	}
	if r.Amount == nil {
		return room.Validation("room has no agreed amount")
	}

	now := time.Now().UTC()
	if err := s.rooms.SetFeePayer(ctx, roomID, &payer, now); err != nil {
		return err
	}
	if err := s.rooms.ResetPhase(ctx, roomID, room.PhaseFee); err != nil {
		return err
	}

	amount := *r.Amount
	f := fee.Fee(amount)
	deposit := fee.DepositAmount(amount, f, payer)
	payout := fee.PayoutAmount(amount, f, payer)
	s.notify(ctx, roomID,
		fmt.Sprintf("Fee payer: %s. Deposit %s, payout %s (%s). Both confirm to continue.",
			payer, formatUnits(deposit, r.TokenDecimals), formatUnits(payout, r.TokenDecimals), r.TokenSymbol),
		notification.FeeSummary{Amount: amount, Fee: f, FeePayer: string(payer), DepositAmount: deposit, PayoutAmount: payout})
	return nil
}

// ConfirmFee marks the actor's fee confirmation. Once both confirm, the
// escrow address is derived and the deal is created through the gateway;
// only after both gateway calls succeed does the room advance to
// AWAITING_DEPOSIT. On gateway failure the step is unchanged and the
// confirmations stay set so the same action can be retried.
func (s *Service) ConfirmFee(ctx context.Context, roomID, userID uuid.UUID) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepFeeSelection {
		return room.InvalidPhase(room.StepFeeSelection, r.Step)
	}
	p, err := s.participant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if r.Amount == nil || r.FeePayer == nil {
		return room.Validation("amount and fee payer must be set")
	}

	if err := s.rooms.SetConfirmation(ctx, p.ParticipantID, room.PhaseFee, true); err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := s.rooms.TouchRoom(ctx, roomID, now); err != nil {
		return err
	}
	participants, err := s.rooms.ListParticipants(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.AllConfirmed(r, participants, room.PhaseFee) {
		return nil
	}

	deposit := fee.DepositAmount(*r.Amount, fee.Fee(*r.Amount), *r.FeePayer)
	address, err := s.gateway.DeriveAddress(ctx, roomID, r.ChainID)
	if err != nil {
		return room.External(err)
	}
	if err := s.gateway.CreateDeal(ctx, roomID, r.ChainID, deposit, *r.FeePayer); err != nil {
		return room.External(err)
	}
	if err := s.rooms.SetEscrowAddress(ctx, roomID, address, now); err != nil {
		return err
	}
	swapped, err := s.rooms.UpdateStep(ctx, roomID, room.StepFeeSelection, room.StepAwaitingDeposit, r.Status, now)
	if err != nil || !swapped {
		return err
	}
	s.notify(ctx, roomID,
		fmt.Sprintf("Deposit %s %s to %s on %s.", formatUnits(deposit, r.TokenDecimals), r.TokenSymbol, address, r.ChainID),
		notification.DepositAddress{Address: address, DepositAmount: deposit, TokenSymbol: r.TokenSymbol, ChainID: r.ChainID})
	return nil
}

// RoomState is the read model for a room and its participants.
type RoomState struct {
	Room         *room.Room          `json:"room"`
	Participants []*room.Participant `json:"participants"`
}

// GetRoomState returns the current room and participant records.
func (s *Service) GetRoomState(ctx context.Context, roomID uuid.UUID) (*RoomState, error) {
	r, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	participants, err := s.rooms.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &RoomState{Room: r, Participants: participants}, nil
}

// GetRoomByCode resolves a join code to room state.
func (s *Service) GetRoomByCode(ctx context.Context, joinCode string) (*RoomState, error) {
	r, err := s.rooms.GetRoomByCode(ctx, room.NormalizeJoinCode(joinCode))
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, room.NotFound("no room with code %s", joinCode)
	}
	return s.GetRoomState(ctx, r.RoomID)
}

// DepositInfo reports what the sender must transfer and whether it landed.
type DepositInfo struct {
	EscrowAddress  string  `json:"escrowAddress"`
	ExpectedAmount int64   `json:"expectedAmount"`
	TokenSymbol    string  `json:"tokenSymbol"`
	ChainID        string  `json:"chainId"`
	DepositTxRef   *string `json:"depositTxRef,omitempty"`
	Funded         bool    `json:"funded"`
}

// GetDepositInfo returns deposit instructions once the room has an escrow
// address.
func (s *Service) GetDepositInfo(ctx context.Context, roomID uuid.UUID) (*DepositInfo, error) {
	r, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r.EscrowAddress == nil || r.Amount == nil || r.FeePayer == nil {
		return nil, room.InvalidPhase(room.StepAwaitingDeposit, r.Step)
	}
	return &DepositInfo{
		EscrowAddress:  *r.EscrowAddress,
		ExpectedAmount: fee.DepositAmount(*r.Amount, fee.Fee(*r.Amount), *r.FeePayer),
		TokenSymbol:    r.TokenSymbol,
		ChainID:        r.ChainID,
		DepositTxRef:   r.DepositTxRef,
		Funded:         r.Step != room.StepAwaitingDeposit,
	}, nil
}

func (s *Service) load(ctx context.Context, roomID uuid.UUID) (*room.Room, error) {
	r, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, room.NotFound("room %s", roomID)
	}
	return r, nil
}

func (s *Service) participant(ctx context.Context, roomID, userID uuid.UUID) (*room.Participant, error) {
	p, err := s.rooms.GetParticipantByUser(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, room.NotFound("user %s is not a participant of room %s", userID, roomID)
	}
	return p, nil
}

// notify publishes a room notification. Sink failures are logged, never
// propagated: the transition already happened.
func (s *Service) notify(ctx context.Context, roomID uuid.UUID, text string, meta notification.Meta) {
	msg := &notification.Message{RoomID: roomID, Text: text, Meta: meta}
	if err := s.sink.Publish(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID.String()).Str("action", string(meta.NotificationAction())).Msg("notification publish failed")
	}
}

func (s *Service) roleNames(ctx context.Context, participants []*room.Participant) (sender, receiver string) {
	sender, receiver = "sender", "receiver"
	for _, p := range participants {
		switch {
		case p.HasRole(room.RoleSender):
			sender = s.users.DisplayName(ctx, p.UserID)
		case p.HasRole(room.RoleReceiver):
			receiver = s.users.DisplayName(ctx, p.UserID)
		}
	}
	return sender, receiver
}

// joinCodeAlphabet avoids characters that read ambiguously in chat.
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newJoinCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(out), nil
}

func formatUnits(units int64, decimals int) string {
	if decimals <= 0 {
		return fmt.Sprintf("%d", units)
	}
	div := int64(1)
	for i := 0; i < decimals; i++ {
		div *= 10
	}
	whole := units / div
	frac := units % div
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%d.%0*d", whole, decimals, frac), "0"), ".")
}
