package room

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for rooms and participants.
//
// UpdateStep and RecordDeposit are compare-and-swap writes: they only apply
// when the room is still in the expected step, and report whether the swap
// happened. All step transitions go through them so concurrent actions cannot
// double-transition a room.
type Repository interface {
	CreateRoom(ctx context.Context, r *Room) error
	GetRoomByID(ctx context.Context, roomID uuid.UUID) (*Room, error)
	GetRoomByCode(ctx context.Context, joinCode string) (*Room, error)
	ListOpenRooms(ctx context.Context) ([]*Room, error)
	UpdateStep(ctx context.Context, roomID uuid.UUID, from, to Step, status Status, at time.Time) (bool, error)
	RecordDeposit(ctx context.Context, roomID uuid.UUID, txRef string, at time.Time) (bool, error)
	SetAmount(ctx context.Context, roomID uuid.UUID, amount *int64, at time.Time) error
	SetFeePayer(ctx context.Context, roomID uuid.UUID, payer *FeePayer, at time.Time) error
	SetEscrowAddress(ctx context.Context, roomID uuid.UUID, address string, at time.Time) error
	SetReleaseTxRef(ctx context.Context, roomID uuid.UUID, txRef string, at time.Time) error
	SetStatus(ctx context.Context, roomID uuid.UUID, status Status, at time.Time) error
	TouchRoom(ctx context.Context, roomID uuid.UUID, at time.Time) error

	CreateParticipant(ctx context.Context, p *Participant) error
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]*Participant, error)
	GetParticipantByUser(ctx context.Context, roomID, userID uuid.UUID) (*Participant, error)
	SetRole(ctx context.Context, participantID uuid.UUID, role *Role) error
	SetConfirmation(ctx context.Context, participantID uuid.UUID, phase ConfirmPhase, confirmed bool) error
	ResetPhase(ctx context.Context, roomID uuid.UUID, phase ConfirmPhase) error
	ClearRoles(ctx context.Context, roomID uuid.UUID) error
	SetPayoutAddress(ctx context.Context, participantID uuid.UUID, address *string) error
}
