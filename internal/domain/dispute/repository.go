package dispute

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for disputes.
type Repository interface {
	Create(ctx context.Context, d *Dispute) error
	GetByID(ctx context.Context, disputeID uuid.UUID) (*Dispute, error)
	GetOpenByRoom(ctx context.Context, roomID uuid.UUID) (*Dispute, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*Dispute, error)
	UpdateStatus(ctx context.Context, disputeID uuid.UUID, status Status, adminNotes *string) error
}
