// Package deposit reconciles on-chain deposits with escrow rooms.
package deposit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	approom "github.com/escrowroom/escrowroom/internal/application/room"
	"github.com/escrowroom/escrowroom/internal/domain/fee"
	"github.com/escrowroom/escrowroom/internal/domain/notification"
	"github.com/escrowroom/escrowroom/internal/domain/room"
	"github.com/escrowroom/escrowroom/internal/domain/settlement"
)

// Service checks the settlement gateway for deposits and records each one
// exactly once. Idempotency comes from the AWAITING_DEPOSIT precondition:
// once a room moved to FUNDED, later checks simply report not-found.
type Service struct {
	rooms   room.Repository
	gateway settlement.Gateway
	sim     settlement.Simulator
	sink    notification.Sink
	locks   *approom.Locker
	logger  zerolog.Logger
}

// NewService creates a deposit reconciler. sim may be nil when the
// deployment has no simulated injection path.
func NewService(
	rooms room.Repository,
	gateway settlement.Gateway,
	sim settlement.Simulator,
	sink notification.Sink,
	locks *approom.Locker,
	logger zerolog.Logger,
) *Service {
	return &Service{
		rooms:   rooms,
		gateway: gateway,
		sim:     sim,
		sink:    sink,
		locks:   locks,
		logger:  logger.With().Str("service", "deposit").Logger(),
	}
}

// CheckDeposit asks the gateway whether the expected deposit landed and, if
// the room is still AWAITING_DEPOSIT, records the transaction reference and
// moves the room to FUNDED in a single compare-and-swap write.
func (s *Service) CheckDeposit(ctx context.Context, roomID uuid.UUID) (*settlement.DepositResult, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, room.NotFound("room %s", roomID)
	}
	if r.Step != room.StepAwaitingDeposit {
		// The precondition guard is the idempotency mechanism: a recorded
		// deposit moved the room past AWAITING_DEPOSIT, so reprocessing is
		// impossible and the caller sees not-found.
		return &settlement.DepositResult{Found: false}, nil
	}
	if r.Amount == nil || r.FeePayer == nil {
		return nil, room.Validation("room is missing amount or fee payer")
	}

	expected := fee.DepositAmount(*r.Amount, fee.Fee(*r.Amount), *r.FeePayer)
	res, err := s.gateway.CheckDeposit(ctx, roomID, expected, r.ChainID)
	if err != nil {
		return nil, room.External(err)
	}
	if res == nil || !res.Found {
		return &settlement.DepositResult{Found: false}, nil
	}

	now := time.Now().UTC()
	recorded, err := s.rooms.RecordDeposit(ctx, roomID, res.TxRef, now)
	if err != nil {
		return nil, err
	}
	if !recorded {
		// Lost the swap to a concurrent reconciliation.
		return &settlement.DepositResult{Found: false}, nil
	}

	s.logger.Info().Str("room_id", roomID.String()).Str("tx_ref", res.TxRef).Int64("amount", res.Amount).Msg("deposit recorded")
	msg := &notification.Message{
		RoomID: roomID,
		Text:   fmt.Sprintf("Deposit confirmed (%s). The deal is funded.", res.TxRef),
		Meta:   notification.DepositConfirmed{TxRef: res.TxRef, Amount: res.Amount},
	}
	if err := s.sink.Publish(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID.String()).Msg("notification publish failed")
	}
	return res, nil
}

// SimulateDeposit injects a synthetic deposit for the room's expected amount
// and then reconciles it through the exact same path as a real one. It only
// works when a simulator was wired in.
func (s *Service) SimulateDeposit(ctx context.Context, roomID uuid.UUID) (*settlement.DepositResult, error) {
	if s.sim == nil {
		return nil, room.Validation("simulated deposits are not enabled")
	}

	r, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, room.NotFound("room %s", roomID)
	}
	if r.Step != room.StepAwaitingDeposit {
		return nil, room.InvalidPhase(room.StepAwaitingDeposit, r.Step)
	}
	if r.Amount == nil || r.FeePayer == nil {
		return nil, room.Validation("room is missing amount or fee payer")
	}

	expected := fee.DepositAmount(*r.Amount, fee.Fee(*r.Amount), *r.FeePayer)
	if _, err := s.sim.InjectDeposit(ctx, roomID, expected, r.ChainID); err != nil {
		return nil, room.External(err)
	}
	return s.CheckDeposit(ctx, roomID)
}
