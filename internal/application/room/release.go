package room

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/escrowroom/escrowroom/internal/domain/fee"
	"github.com/escrowroom/escrowroom/internal/domain/notification"
	"github.com/escrowroom/escrowroom/internal/domain/room"
	"github.com/escrowroom/escrowroom/internal/domain/settlement"
)

// InitiateRelease is the sender-only request to pay the receiver out. It
// marks the sender's release flag and moves FUNDED -> RELEASING.
func (s *Service) InitiateRelease(ctx context.Context, roomID, userID uuid.UUID) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepFunded {
		return room.InvalidPhase(room.StepFunded, r.Step)
	}
	p, err := s.participant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !p.HasRole(room.RoleSender) {
		return room.Forbidden("only the sender initiates a release")
	}

	now := time.Now().UTC()
	if err := s.rooms.SetConfirmation(ctx, p.ParticipantID, room.PhaseRelease, true); err != nil {
		return err
	}
	swapped, err := s.rooms.UpdateStep(ctx, roomID, room.StepFunded, room.StepReleasing, r.Status, now)
	if err != nil || !swapped {
		return err
	}
	s.notify(ctx, roomID, "Sender asked to release the funds. Receiver, confirm or reject.",
		notification.ReleaseRequested{})
	return nil
}

// ConfirmRelease is the receiver-only acceptance of a release request. In
// simulated settlement mode the payout executes immediately against the
// placeholder destination; otherwise the receiver is prompted for a payout
// address.
func (s *Service) ConfirmRelease(ctx context.Context, roomID, userID uuid.UUID) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepReleasing {
		return room.InvalidPhase(room.StepReleasing, r.Step)
	}
	p, err := s.participant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !p.HasRole(room.RoleReceiver) {
		return room.Forbidden("only the receiver confirms a release")
	}

	if err := s.rooms.SetConfirmation(ctx, p.ParticipantID, room.PhaseRelease, true); err != nil {
		return err
	}
	if err := s.rooms.TouchRoom(ctx, roomID, time.Now().UTC()); err != nil {
		return err
	}

	if s.simulated {
		return s.executeRelease(ctx, r, settlement.ZeroAddress)
	}
	s.notify(ctx, roomID, "Release confirmed. Receiver, submit your payout address.",
		notification.PayoutAddress{})
	return nil
}

// CancelRelease is the receiver-only rejection of a release request: both
// release flags clear and the room reverts to FUNDED.
func (s *Service) CancelRelease(ctx context.Context, roomID, userID uuid.UUID) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepReleasing {
		return room.InvalidPhase(room.StepReleasing, r.Step)
	}
	p, err := s.participant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !p.HasRole(room.RoleReceiver) {
		return room.Forbidden("only the receiver rejects a release")
	}

	now := time.Now().UTC()
	if err := s.rooms.ResetPhase(ctx, roomID, room.PhaseRelease); err != nil {
		return err
	}
	swapped, err := s.rooms.UpdateStep(ctx, roomID, room.StepReleasing, room.StepFunded, r.Status, now)
	if err != nil || !swapped {
		return err
	}
	s.notify(ctx, roomID, "Release request rejected. Funds stay in escrow.", notification.ReleaseReverted{})
	return nil
}

// SubmitPayoutAddress records the receiver's payout destination while the
// room is RELEASING.
func (s *Service) SubmitPayoutAddress(ctx context.Context, roomID, userID uuid.UUID, address string) error {
	return s.submitAddress(ctx, roomID, userID, address, room.StepReleasing, room.RoleReceiver,
		func(addr *string) notification.Meta { return notification.PayoutAddress{Address: addr} },
		"Payout address received. Confirm it to trigger the payout.")
}

// ConfirmPayoutAddress executes the payout to the receiver's confirmed
// address, records the release reference, and completes the room.
func (s *Service) ConfirmPayoutAddress(ctx context.Context, roomID, userID uuid.UUID) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepReleasing {
		return room.InvalidPhase(room.StepReleasing, r.Step)
	}
	p, err := s.participant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !p.HasRole(room.RoleReceiver) {
		return room.Forbidden("only the receiver confirms the payout address")
	}
	if !p.ReleaseConfirmed {
		return room.Validation("confirm the release before confirming an address")
	}
	if p.PayoutAddress == nil {
		return room.Validation("no payout address submitted")
	}
	return s.executeRelease(ctx, r, *p.PayoutAddress)
}

// ChangePayoutAddress discards a submitted payout address and re-prompts.
func (s *Service) ChangePayoutAddress(ctx context.Context, roomID, userID uuid.UUID) error {
	return s.changeAddress(ctx, roomID, userID, room.StepReleasing, room.RoleReceiver,
		notification.PayoutAddress{}, "Submit a new payout address.")
}

// InitiateCancel is either participant's request to unwind a funded deal:
// it marks the actor's cancel flag and moves FUNDED -> CANCELLING.
func (s *Service) InitiateCancel(ctx context.Context, roomID, userID uuid.UUID) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepFunded {
		return room.InvalidPhase(room.StepFunded, r.Step)
	}
	p, err := s.participant(ctx, roomID, userID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.rooms.SetConfirmation(ctx, p.ParticipantID, room.PhaseCancel, true); err != nil {
		return err
	}
	swapped, err := s.rooms.UpdateStep(ctx, roomID, room.StepFunded, room.StepCancelling, r.Status, now)
	if err != nil || !swapped {
		return err
	}
	name := s.users.DisplayName(ctx, userID)
	s.notify(ctx, roomID, fmt.Sprintf("%s asked to cancel the deal. Counterparty, confirm or reject.", name),
		notification.CancelRequested{RequestedBy: name})
	return nil
}

// ConfirmCancel marks the actor's cancel flag. Once both flags are set, a
// simulated deployment refunds immediately; otherwise the sender is prompted
// for a refund address.
func (s *Service) ConfirmCancel(ctx context.Context, roomID, userID uuid.UUID) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepCancelling {
		return room.InvalidPhase(room.StepCancelling, r.Step)
	}
	p, err := s.participant(ctx, roomID, userID)
	if err != nil {
		return err
	}

	if err := s.rooms.SetConfirmation(ctx, p.ParticipantID, room.PhaseCancel, true); err != nil {
		return err
	}
	if err := s.rooms.TouchRoom(ctx, roomID, time.Now().UTC()); err != nil {
		return err
	}
	participants, err := s.rooms.ListParticipants(ctx, roomID)
	if err != nil {
		return err
	}
	for _, q := range participants {
		if q.ParticipantID == p.ParticipantID {
			q.CancelConfirmed = true
		}
	}
	if !room.AllConfirmed(r, participants, room.PhaseCancel) {
		return nil
	}

	if s.simulated {
		return s.executeRefund(ctx, r, settlement.ZeroAddress)
	}
	s.notify(ctx, roomID, "Cancellation agreed. Sender, submit your refund address.",
		notification.RefundAddress{})
	return nil
}

// RejectCancel clears both cancel flags and reverts CANCELLING -> FUNDED.
// Either participant may reject.
func (s *Service) RejectCancel(ctx context.Context, roomID, userID uuid.UUID) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepCancelling {
		return room.InvalidPhase(room.StepCancelling, r.Step)
	}
	if _, err := s.participant(ctx, roomID, userID); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.rooms.ResetPhase(ctx, roomID, room.PhaseCancel); err != nil {
		return err
	}
	swapped, err := s.rooms.UpdateStep(ctx, roomID, room.StepCancelling, room.StepFunded, r.Status, now)
	if err != nil || !swapped {
		return err
	}
	s.notify(ctx, roomID, "Cancellation rejected. Funds stay in escrow.", notification.CancelReverted{})
	return nil
}

// SubmitRefundAddress records the sender's refund destination once both
// parties agreed to cancel.
func (s *Service) SubmitRefundAddress(ctx context.Context, roomID, userID uuid.UUID, address string) error {
	return s.submitAddress(ctx, roomID, userID, address, room.StepCancelling, room.RoleSender,
		func(addr *string) notification.Meta { return notification.RefundAddress{Address: addr} },
		"Refund address received. Confirm it to trigger the refund.")
}

// ConfirmRefundAddress executes the refund of the full deposit to the
// sender's confirmed address and cancels the room.
func (s *Service) ConfirmRefundAddress(ctx context.Context, roomID, userID uuid.UUID) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != room.StepCancelling {
		return room.InvalidPhase(room.StepCancelling, r.Step)
	}
	p, err := s.participant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !p.HasRole(room.RoleSender) {
		return room.Forbidden("only the sender confirms the refund address")
	}
	participants, err := s.rooms.ListParticipants(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.AllConfirmed(r, participants, room.PhaseCancel) {
		return room.Validation("both parties must confirm the cancellation first")
	}
	if p.PayoutAddress == nil {
		return room.Validation("no refund address submitted")
	}
	return s.executeRefund(ctx, r, *p.PayoutAddress)
}

// ChangeRefundAddress discards a submitted refund address and re-prompts.
func (s *Service) ChangeRefundAddress(ctx context.Context, roomID, userID uuid.UUID) error {
	return s.changeAddress(ctx, roomID, userID, room.StepCancelling, room.RoleSender,
		notification.RefundAddress{}, "Submit a new refund address.")
}

// executeRelease runs the gateway payout and, only after it succeeds,
// records the reference, writes the settlement snapshot, and completes the
// room. Confirmation flags set before a failed gateway call stay set so the
// action can be retried without re-confirming.
func (s *Service) executeRelease(ctx context.Context, r *room.Room, destination string) error {
	if r.Amount == nil || r.FeePayer == nil {
		return room.Validation("room is missing amount or fee payer")
	}
	payout := fee.PayoutAmount(*r.Amount, fee.Fee(*r.Amount), *r.FeePayer)
	txRef, err := s.gateway.ExecuteRelease(ctx, r.RoomID, destination, payout, r.ChainID)
	if err != nil {
		return room.External(err)
	}

	now := time.Now().UTC()
	if err := s.rooms.SetReleaseTxRef(ctx, r.RoomID, txRef, now); err != nil {
		return err
	}
	swapped, err := s.rooms.UpdateStep(ctx, r.RoomID, room.StepReleasing, room.StepCompleted, room.StatusCompleted, now)
	if err != nil || !swapped {
		return err
	}
	if err := s.writeSnapshot(ctx, r, settlement.TransactionCompleted, txRef); err != nil {
		s.logger.Error().Err(err).Str("room_id", r.RoomID.String()).Msg("settlement snapshot write failed")
	}
	s.logger.Info().Str("room_id", r.RoomID.String()).Str("tx_ref", txRef).Msg("deal completed")
	s.notify(ctx, r.RoomID, fmt.Sprintf("Funds released: %s %s. Deal complete.", formatUnits(payout, r.TokenDecimals), r.TokenSymbol),
		notification.Completed{TxRef: txRef, PayoutAmount: payout})
	return nil
}

// executeRefund refunds the full deposit and cancels the room. The release
// transaction reference field is reused for the refund reference.
func (s *Service) executeRefund(ctx context.Context, r *room.Room, destination string) error {
	if r.Amount == nil || r.FeePayer == nil {
		return room.Validation("room is missing amount or fee payer")
	}
	refund := fee.DepositAmount(*r.Amount, fee.Fee(*r.Amount), *r.FeePayer)
	txRef, err := s.gateway.ExecuteRefund(ctx, r.RoomID, destination, refund, r.ChainID)
	if err != nil {
		return room.External(err)
	}

	now := time.Now().UTC()
	if err := s.rooms.SetReleaseTxRef(ctx, r.RoomID, txRef, now); err != nil {
		return err
	}
	swapped, err := s.rooms.UpdateStep(ctx, r.RoomID, room.StepCancelling, room.StepCancelled, room.StatusCancelled, now)
	if err != nil || !swapped {
		return err
	}
	if err := s.writeSnapshot(ctx, r, settlement.TransactionRefunded, txRef); err != nil {
		s.logger.Error().Err(err).Str("room_id", r.RoomID.String()).Msg("settlement snapshot write failed")
	}
	s.logger.Info().Str("room_id", r.RoomID.String()).Str("tx_ref", txRef).Msg("deal cancelled")
	s.notify(ctx, r.RoomID, fmt.Sprintf("Deal cancelled. %s %s refunded to the sender.", formatUnits(refund, r.TokenDecimals), r.TokenSymbol),
		notification.Cancelled{TxRef: txRef, RefundAmount: refund})
	return nil
}

func (s *Service) writeSnapshot(ctx context.Context, r *room.Room, status settlement.TransactionStatus, releaseTxRef string) error {
	tx := &settlement.Transaction{
		TransactionID: uuid.New(),
		RoomID:        r.RoomID,
		Amount:        *r.Amount,
		Fee:           fee.Fee(*r.Amount),
		FeePayer:      *r.FeePayer,
		DepositTxRef:  r.DepositTxRef,
		ReleaseTxRef:  &releaseTxRef,
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	}
	return s.txs.Create(ctx, tx)
}

func (s *Service) submitAddress(
	ctx context.Context,
	roomID, userID uuid.UUID,
	address string,
	requiredStep room.Step,
	requiredRole room.Role,
	meta func(addr *string) notification.Meta,
	text string,
) error {
	addr := strings.TrimSpace(address)
	if addr == "" || len(addr) > 128 {
		return room.Validation("malformed address")
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != requiredStep {
		return room.InvalidPhase(requiredStep, r.Step)
	}
	p, err := s.participant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !p.HasRole(requiredRole) {
		return room.Forbidden("only the %s submits this address", strings.ToLower(string(requiredRole)))
	}
	if err := s.rooms.SetPayoutAddress(ctx, p.ParticipantID, &addr); err != nil {
		return err
	}
	if err := s.rooms.TouchRoom(ctx, roomID, time.Now().UTC()); err != nil {
		return err
	}
	s.notify(ctx, roomID, text, meta(&addr))
	return nil
}

func (s *Service) changeAddress(
	ctx context.Context,
	roomID, userID uuid.UUID,
	requiredStep room.Step,
	requiredRole room.Role,
	meta notification.Meta,
	text string,
) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.load(ctx, roomID)
	if err != nil {
		return err
	}
	if r.Step != requiredStep {
		return room.InvalidPhase(requiredStep, r.Step)
	}
	p, err := s.participant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !p.HasRole(requiredRole) {
		return room.Forbidden("only the %s changes this address", strings.ToLower(string(requiredRole)))
	}
	if err := s.rooms.SetPayoutAddress(ctx, p.ParticipantID, nil); err != nil {
		return err
	}
	s.notify(ctx, roomID, text, meta)
	return nil
}
