package settlement

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for settlement snapshots.
type Repository interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByRoomID(ctx context.Context, roomID uuid.UUID) (*Transaction, error)
	List(ctx context.Context, limit, offset int) ([]*Transaction, error)
}
