package user

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, userID uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Count(ctx context.Context) (int, error)
}

// Directory resolves a user id to a display name for notification text.
// Implementations fall back to a neutral placeholder for unknown users.
type Directory interface {
	DisplayName(ctx context.Context, userID uuid.UUID) string
}
