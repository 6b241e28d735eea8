package room

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/escrowroom/escrowroom/internal/domain/notification"
	"github.com/escrowroom/escrowroom/internal/domain/room"
	"github.com/escrowroom/escrowroom/internal/domain/settlement"
)

func TestService_ReleaseSimulated(t *testing.T) {
	t.Run("sender initiates, receiver confirms, payout runs", func(t *testing.T) {
		h := newHarness(t, true)
		ctx := context.Background()
		r, senderID, receiverID := h.seedRoom(room.StepFunded)
		h.setDeal(r, 100_000_000, room.FeePayerReceiver)

		require.NoError(t, h.svc.InitiateRelease(ctx, r.RoomID, senderID))
		got, err := h.repo.GetRoomByID(ctx, r.RoomID)
		require.NoError(t, err)
		assert.Equal(t, room.StepReleasing, got.Step)

		// receiver pays the fee, so the payout is amount minus fee
		h.gw.EXPECT().
			ExecuteRelease(gomock.Any(), r.RoomID, settlement.ZeroAddress, int64(99_000_000), "base-sepolia").
			Return("REL-1", nil)

		require.NoError(t, h.svc.ConfirmRelease(ctx, r.RoomID, receiverID))

		got, err = h.repo.GetRoomByID(ctx, r.RoomID)
		require.NoError(t, err)
		assert.Equal(t, room.StepCompleted, got.Step)
		assert.Equal(t, room.StatusCompleted, got.Status)
		require.NotNil(t, got.ReleaseTxRef)
		assert.Equal(t, "REL-1", *got.ReleaseTxRef)

		require.Len(t, h.txs.txs, 1)
		tx := h.txs.txs[0]
		assert.Equal(t, r.RoomID, tx.RoomID)
		assert.Equal(t, settlement.TransactionCompleted, tx.Status)
		assert.Equal(t, int64(1_000_000), tx.Fee)

		assert.Equal(t, notification.ActionCompleted, h.sink.last().Meta.NotificationAction())
	})

	t.Run("receiver cannot initiate", func(t *testing.T) {
		h := newHarness(t, true)
		r, _, receiverID := h.seedRoom(room.StepFunded)
		h.setDeal(r, 100_000_000, room.FeePayerSender)
		err := h.svc.InitiateRelease(context.Background(), r.RoomID, receiverID)
		require.ErrorIs(t, err, room.ErrForbidden)
	})

	t.Run("sender cannot confirm their own request", func(t *testing.T) {
		h := newHarness(t, true)
		ctx := context.Background()
		r, senderID, _ := h.seedRoom(room.StepFunded)
		h.setDeal(r, 100_000_000, room.FeePayerSender)

		require.NoError(t, h.svc.InitiateRelease(ctx, r.RoomID, senderID))
		err := h.svc.ConfirmRelease(ctx, r.RoomID, senderID)
		require.ErrorIs(t, err, room.ErrForbidden)
	})

	t.Run("rejection reverts to funded and clears the flags", func(t *testing.T) {
		h := newHarness(t, true)
		ctx := context.Background()
		r, senderID, receiverID := h.seedRoom(room.StepFunded)
		h.setDeal(r, 100_000_000, room.FeePayerSender)

		require.NoError(t, h.svc.InitiateRelease(ctx, r.RoomID, senderID))
		require.NoError(t, h.svc.CancelRelease(ctx, r.RoomID, receiverID))

		got, err := h.repo.GetRoomByID(ctx, r.RoomID)
		require.NoError(t, err)
		assert.Equal(t, room.StepFunded, got.Step)
		p, err := h.repo.GetParticipantByUser(ctx, r.RoomID, senderID)
		require.NoError(t, err)
		assert.False(t, p.ReleaseConfirmed)
		assert.Equal(t, notification.ActionReleaseReverted, h.sink.last().Meta.NotificationAction())
	})

	t.Run("gateway failure leaves the room releasing", func(t *testing.T) {
		h := newHarness(t, true)
		ctx := context.Background()
		r, senderID, receiverID := h.seedRoom(room.StepFunded)
		h.setDeal(r, 100_000_000, room.FeePayerSender)

		require.NoError(t, h.svc.InitiateRelease(ctx, r.RoomID, senderID))
		h.gw.EXPECT().
			ExecuteRelease(gomock.Any(), r.RoomID, settlement.ZeroAddress, int64(100_000_000), "base-sepolia").
			Return("", errors.New("gateway down"))

		err := h.svc.ConfirmRelease(ctx, r.RoomID, receiverID)
		require.ErrorIs(t, err, room.ErrExternal)

		got, repoErr := h.repo.GetRoomByID(ctx, r.RoomID)
		require.NoError(t, repoErr)
		assert.Equal(t, room.StepReleasing, got.Step)
		assert.Nil(t, got.ReleaseTxRef)
		assert.Empty(t, h.txs.txs)
	})
}

func TestService_ReleaseWithPayoutAddress(t *testing.T) {
	t.Run("address flow completes the deal", func(t *testing.T) {
		h := newHarness(t, false)
		ctx := context.Background()
		r, senderID, receiverID := h.seedRoom(room.StepFunded)
		h.setDeal(r, 100_000_000, room.FeePayerSender)

		require.NoError(t, h.svc.InitiateRelease(ctx, r.RoomID, senderID))
		require.NoError(t, h.svc.ConfirmRelease(ctx, r.RoomID, receiverID))

		// non-simulated mode prompts for an address instead of paying out
		got, err := h.repo.GetRoomByID(ctx, r.RoomID)
		require.NoError(t, err)
		assert.Equal(t, room.StepReleasing, got.Step)
		assert.Equal(t, notification.ActionPayoutAddress, h.sink.last().Meta.NotificationAction())

		require.NoError(t, h.svc.SubmitPayoutAddress(ctx, r.RoomID, receiverID, " 0xdest "))
		h.gw.EXPECT().
			ExecuteRelease(gomock.Any(), r.RoomID, "0xdest", int64(100_000_000), "base-sepolia").
			Return("REL-2", nil)
		require.NoError(t, h.svc.ConfirmPayoutAddress(ctx, r.RoomID, receiverID))

		got, err = h.repo.GetRoomByID(ctx, r.RoomID)
		require.NoError(t, err)
		assert.Equal(t, room.StepCompleted, got.Step)
	})

	t.Run("sender cannot submit the payout address", func(t *testing.T) {
		h := newHarness(t, false)
		ctx := context.Background()
		r, senderID, receiverID := h.seedRoom(room.StepFunded)
		h.setDeal(r, 100_000_000, room.FeePayerSender)

		require.NoError(t, h.svc.InitiateRelease(ctx, r.RoomID, senderID))
		require.NoError(t, h.svc.ConfirmRelease(ctx, r.RoomID, receiverID))

		err := h.svc.SubmitPayoutAddress(ctx, r.RoomID, senderID, "0xdest")
		require.ErrorIs(t, err, room.ErrForbidden)
	})

	t.Run("confirm without an address", func(t *testing.T) {
		h := newHarness(t, false)
		ctx := context.Background()
		r, senderID, receiverID := h.seedRoom(room.StepFunded)
		h.setDeal(r, 100_000_000, room.FeePayerSender)

		require.NoError(t, h.svc.InitiateRelease(ctx, r.RoomID, senderID))
		require.NoError(t, h.svc.ConfirmRelease(ctx, r.RoomID, receiverID))

		err := h.svc.ConfirmPayoutAddress(ctx, r.RoomID, receiverID)
		require.ErrorIs(t, err, room.ErrValidation)
	})

	t.Run("change discards the submitted address", func(t *testing.T) {
		h := newHarness(t, false)
		ctx := context.Background()
		r, senderID, receiverID := h.seedRoom(room.StepFunded)
		h.setDeal(r, 100_000_000, room.FeePayerSender)

		require.NoError(t, h.svc.InitiateRelease(ctx, r.RoomID, senderID))
		require.NoError(t, h.svc.ConfirmRelease(ctx, r.RoomID, receiverID))
		require.NoError(t, h.svc.SubmitPayoutAddress(ctx, r.RoomID, receiverID, "0xdest"))
		require.NoError(t, h.svc.ChangePayoutAddress(ctx, r.RoomID, receiverID))

		p, err := h.repo.GetParticipantByUser(ctx, r.RoomID, receiverID)
		require.NoError(t, err)
		assert.Nil(t, p.PayoutAddress)

		err = h.svc.ConfirmPayoutAddress(ctx, r.RoomID, receiverID)
		require.ErrorIs(t, err, room.ErrValidation)
	})
}

func TestService_Cancel(t *testing.T) {
	t.Run("either party initiates, both confirm, refund runs", func(t *testing.T) {
		h := newHarness(t, true)
		ctx := context.Background()
		r, senderID, receiverID := h.seedRoom(room.StepFunded)
		h.setDeal(r, 100_000_000, room.FeePayerSender)

		require.NoError(t, h.svc.InitiateCancel(ctx, r.RoomID, receiverID))
		got, err := h.repo.GetRoomByID(ctx, r.RoomID)
		require.NoError(t, err)
		assert.Equal(t, room.StepCancelling, got.Step)

		// refund returns the full deposit, fee included
		h.gw.EXPECT().
			ExecuteRefund(gomock.Any(), r.RoomID, settlement.ZeroAddress, int64(101_000_000), "base-sepolia").
			Return("REF-1", nil)

		require.NoError(t, h.svc.ConfirmCancel(ctx, r.RoomID, senderID))

		got, err = h.repo.GetRoomByID(ctx, r.RoomID)
		require.NoError(t, err)
		assert.Equal(t, room.StepCancelled, got.Step)
		assert.Equal(t, room.StatusCancelled, got.Status)

		require.Len(t, h.txs.txs, 1)
		assert.Equal(t, settlement.TransactionRefunded, h.txs.txs[0].Status)
		assert.Equal(t, notification.ActionCancelled, h.sink.last().Meta.NotificationAction())
	})

	t.Run("one confirmation is not enough", func(t *testing.T) {
		h := newHarness(t, true)
		ctx := context.Background()
		r, _, receiverID := h.seedRoom(room.StepFunded)
		h.setDeal(r, 100_000_000, room.FeePayerSender)

		require.NoError(t, h.svc.InitiateCancel(ctx, r.RoomID, receiverID))
		// the initiator re-confirming must not count as the counterparty
		require.NoError(t, h.svc.ConfirmCancel(ctx, r.RoomID, receiverID))

		got, err := h.repo.GetRoomByID(ctx, r.RoomID)
		require.NoError(t, err)
		assert.Equal(t, room.StepCancelling, got.Step)
	})

	t.Run("rejection reverts to funded", func(t *testing.T) {
		h := newHarness(t, true)
		ctx := context.Background()
		r, senderID, receiverID := h.seedRoom(room.StepFunded)
		h.setDeal(r, 100_000_000, room.FeePayerSender)

		require.NoError(t, h.svc.InitiateCancel(ctx, r.RoomID, senderID))
		require.NoError(t, h.svc.RejectCancel(ctx, r.RoomID, receiverID))

		got, err := h.repo.GetRoomByID(ctx, r.RoomID)
		require.NoError(t, err)
		assert.Equal(t, room.StepFunded, got.Step)
		p, err := h.repo.GetParticipantByUser(ctx, r.RoomID, senderID)
		require.NoError(t, err)
		assert.False(t, p.CancelConfirmed)
	})

	t.Run("refund address flow in http mode", func(t *testing.T) {
		h := newHarness(t, false)
		ctx := context.Background()
		r, senderID, receiverID := h.seedRoom(room.StepFunded)
		h.setDeal(r, 100_000_000, room.FeePayerSplit)

		require.NoError(t, h.svc.InitiateCancel(ctx, r.RoomID, senderID))
		require.NoError(t, h.svc.ConfirmCancel(ctx, r.RoomID, receiverID))
		assert.Equal(t, notification.ActionRefundAddress, h.sink.last().Meta.NotificationAction())

		// receiver cannot stand in for the sender here
		err := h.svc.SubmitRefundAddress(ctx, r.RoomID, receiverID, "0xback")
		require.ErrorIs(t, err, room.ErrForbidden)

		require.NoError(t, h.svc.SubmitRefundAddress(ctx, r.RoomID, senderID, "0xback"))
		h.gw.EXPECT().
			ExecuteRefund(gomock.Any(), r.RoomID, "0xback", int64(100_500_000), "base-sepolia").
			Return("REF-2", nil)
		require.NoError(t, h.svc.ConfirmRefundAddress(ctx, r.RoomID, senderID))

		got, err := h.repo.GetRoomByID(ctx, r.RoomID)
		require.NoError(t, err)
		assert.Equal(t, room.StepCancelled, got.Step)
		require.NotNil(t, got.ReleaseTxRef)
		assert.Equal(t, "REF-2", *got.ReleaseTxRef)
	})

	t.Run("cancel from a non-funded step", func(t *testing.T) {
		h := newHarness(t, true)
		r, senderID, _ := h.seedRoom(room.StepAwaitingDeposit)
		h.setDeal(r, 100_000_000, room.FeePayerSender)
		err := h.svc.InitiateCancel(context.Background(), r.RoomID, senderID)
		require.ErrorIs(t, err, room.ErrInvalidPhase)
	})
}
