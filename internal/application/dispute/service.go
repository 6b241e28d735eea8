// Package dispute handles participant complaints and their admin review.
package dispute

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/escrowroom/escrowroom/internal/domain/dispute"
	"github.com/escrowroom/escrowroom/internal/domain/notification"
	"github.com/escrowroom/escrowroom/internal/domain/room"
	"github.com/escrowroom/escrowroom/internal/domain/user"
)

// Service files and reviews disputes. Filing marks the room DISPUTED but
// leaves its step alone; phase handlers keep checking step, not status, so a
// disputed room is a soft hold, not a frozen one.
type Service struct {
	disputes dispute.Repository
	rooms    room.Repository
	sink     notification.Sink
	users    user.Directory
	logger   zerolog.Logger
}

// NewService creates a dispute service.
func NewService(disputes dispute.Repository, rooms room.Repository, sink notification.Sink, users user.Directory, logger zerolog.Logger) *Service {
	return &Service{
		disputes: disputes,
		rooms:    rooms,
		sink:     sink,
		users:    users,
		logger:   logger.With().Str("service", "dispute").Logger(),
	}
}

// FileInput files a new dispute against a room.
type FileInput struct {
	RoomID      uuid.UUID
	ReporterID  uuid.UUID
	Explanation string
	ProofRef    *string
}

// File creates a dispute. At most one unresolved dispute may exist per room.
func (s *Service) File(ctx context.Context, in FileInput) (*dispute.Dispute, error) {
	explanation := strings.TrimSpace(in.Explanation)
	if explanation == "" {
		return nil, room.Validation("an explanation is required")
	}
	r, err := s.rooms.GetRoomByID(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, room.NotFound("room %s", in.RoomID)
	}
	p, err := s.rooms.GetParticipantByUser(ctx, in.RoomID, in.ReporterID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, room.Forbidden("only a participant can file a dispute")
	}
	existing, err := s.disputes.GetOpenByRoom(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, room.Validation("room already has an unresolved dispute")
	}

	now := time.Now().UTC()
	d := &dispute.Dispute{
		DisputeID:   uuid.New(),
		RoomID:      in.RoomID,
		ReporterID:  in.ReporterID,
		Explanation: explanation,
		ProofRef:    in.ProofRef,
		Status:      dispute.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.disputes.Create(ctx, d); err != nil {
		return nil, err
	}
	if err := s.rooms.SetStatus(ctx, in.RoomID, room.StatusDisputed, now); err != nil {
		return nil, err
	}

	reporter := s.users.DisplayName(ctx, in.ReporterID)
	s.logger.Info().Str("room_id", in.RoomID.String()).Str("dispute_id", d.DisputeID.String()).Msg("dispute filed")
	msg := &notification.Message{
		RoomID: in.RoomID,
		Text:   fmt.Sprintf("%s opened a dispute. An admin will review it.", reporter),
		Meta:   notification.DisputeOpened{DisputeID: d.DisputeID},
	}
	if err := s.sink.Publish(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("room_id", in.RoomID.String()).Msg("notification publish failed")
	}
	return d, nil
}

// StartReview moves a pending dispute to UNDER_REVIEW.
func (s *Service) StartReview(ctx context.Context, disputeID uuid.UUID, adminNotes *string) error {
	d, err := s.get(ctx, disputeID)
	if err != nil {
		return err
	}
	if d.Status != dispute.StatusPending {
		return room.Validation("dispute is not pending")
	}
	return s.disputes.UpdateStatus(ctx, disputeID, dispute.StatusUnderReview, adminNotes)
}

// Resolve closes a dispute with admin notes. The room's status is left as
// the admin set it through room actions; resolution only closes the case.
func (s *Service) Resolve(ctx context.Context, disputeID uuid.UUID, adminNotes *string) error {
	d, err := s.get(ctx, disputeID)
	if err != nil {
		return err
	}
	if d.Status == dispute.StatusResolved {
		return room.Validation("dispute is already resolved")
	}
	return s.disputes.UpdateStatus(ctx, disputeID, dispute.StatusResolved, adminNotes)
}

// ListByRoom returns all disputes filed against a room.
func (s *Service) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*dispute.Dispute, error) {
	return s.disputes.ListByRoom(ctx, roomID)
}

func (s *Service) get(ctx context.Context, disputeID uuid.UUID) (*dispute.Dispute, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, room.NotFound("dispute %s", disputeID)
	}
	return d, nil
}
