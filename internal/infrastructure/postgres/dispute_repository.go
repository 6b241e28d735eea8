package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/escrowroom/escrowroom/internal/domain/dispute"
)

// DisputeRepository implements dispute.Repository.
type DisputeRepository struct {
	pool *pgxpool.Pool
}

func NewDisputeRepository(pool *pgxpool.Pool) *DisputeRepository {
	return &DisputeRepository{pool: pool}
}

const disputeColumns = `id, dispute_id, room_id, reporter_id, explanation, proof_ref, status, admin_notes, created_at, updated_at`

func (r *DisputeRepository) Create(ctx context.Context, d *dispute.Dispute) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO disputes
		(dispute_id, room_id, reporter_id, explanation, proof_ref, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, d.DisputeID, d.RoomID, d.ReporterID, d.Explanation, d.ProofRef, d.Status, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *DisputeRepository) GetByID(ctx context.Context, disputeID uuid.UUID) (*dispute.Dispute, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE dispute_id=$1`, disputeID)
	return scanDispute(row)
}

func (r *DisputeRepository) GetOpenByRoom(ctx context.Context, roomID uuid.UUID) (*dispute.Dispute, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE room_id=$1 AND status <> $2
		ORDER BY created_at DESC
		LIMIT 1
	`, roomID, dispute.StatusResolved)
	return scanDispute(row)
}

func (r *DisputeRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*dispute.Dispute, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+disputeColumns+` FROM disputes WHERE room_id=$1 ORDER BY created_at DESC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*dispute.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DisputeRepository) UpdateStatus(ctx context.Context, disputeID uuid.UUID, status dispute.Status, adminNotes *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE disputes SET status=$1, admin_notes=COALESCE($2, admin_notes), updated_at=$3 WHERE dispute_id=$4
	`, status, adminNotes, time.Now().UTC(), disputeID)
	return err
}

func scanDispute(row pgx.Row) (*dispute.Dispute, error) {
	var d dispute.Dispute
	if err := row.Scan(&d.ID, &d.DisputeID, &d.RoomID, &d.ReporterID, &d.Explanation, &d.ProofRef, &d.Status, &d.AdminNotes, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}
