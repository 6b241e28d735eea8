package dispute

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a dispute through admin review.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusResolved    Status = "RESOLVED"
)

// Dispute is a participant's complaint about a room. Filing one marks the
// room DISPUTED without altering its step; at most one unresolved dispute
// exists per room.
type Dispute struct {
	ID          int64     `json:"id"`
	DisputeID   uuid.UUID `json:"disputeId"`
	RoomID      uuid.UUID `json:"roomId"`
	ReporterID  uuid.UUID `json:"reporterId"`
	Explanation string    `json:"explanation"`
	ProofRef    *string   `json:"proofRef,omitempty"`
	Status      Status    `json:"status"`
	AdminNotes  *string   `json:"adminNotes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Open reports whether the dispute still needs admin attention.
func (d *Dispute) Open() bool {
	return d.Status != StatusResolved
}
