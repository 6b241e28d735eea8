package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/escrowroom/escrowroom/internal/domain/room"
)

// RoomRepository implements room.Repository.
type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

const roomColumns = `id, room_id, name, join_code, chain_id, token_symbol, token_decimals,
	amount, fee_payer, escrow_address, deposit_tx_ref, release_tx_ref,
	step, status, created_by, last_activity_at, created_at, updated_at`

func (r *RoomRepository) CreateRoom(ctx context.Context, rm *room.Room) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rooms
		(room_id, name, join_code, chain_id, token_symbol, token_decimals, step, status, created_by, last_activity_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, rm.RoomID, rm.Name, rm.JoinCode, rm.ChainID, rm.TokenSymbol, rm.TokenDecimals, rm.Step, rm.Status, rm.CreatedBy, rm.LastActivityAt, rm.CreatedAt, rm.UpdatedAt)
	return err
}

func (r *RoomRepository) GetRoomByID(ctx context.Context, roomID uuid.UUID) (*room.Room, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_id=$1`, roomID)
	return scanRoom(row)
}

func (r *RoomRepository) GetRoomByCode(ctx context.Context, joinCode string) (*room.Room, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE join_code=$1`, joinCode)
	return scanRoom(row)
}

func (r *RoomRepository) ListOpenRooms(ctx context.Context) ([]*room.Room, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE status IN ('OPEN','DISPUTED')
		ORDER BY last_activity_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*room.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

// UpdateStep is the compare-and-swap transition write. The WHERE clause on
// the current step makes a lost race visible through the row count instead of
// silently double-transitioning.
func (r *RoomRepository) UpdateStep(ctx context.Context, roomID uuid.UUID, from, to room.Step, status room.Status, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE rooms
		SET step=$1, status=$2, last_activity_at=$3, updated_at=$3
		WHERE room_id=$4 AND step=$5
	`, to, status, at, roomID, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordDeposit records the deposit reference and moves the room to FUNDED in
// one statement, guarded by the AWAITING_DEPOSIT precondition.
func (r *RoomRepository) RecordDeposit(ctx context.Context, roomID uuid.UUID, txRef string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE rooms
		SET deposit_tx_ref=$1, step=$2, last_activity_at=$3, updated_at=$3
		WHERE room_id=$4 AND step=$5
	`, txRef, room.StepFunded, at, roomID, room.StepAwaitingDeposit)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RoomRepository) SetAmount(ctx context.Context, roomID uuid.UUID, amount *int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rooms SET amount=$1, last_activity_at=$2, updated_at=$2 WHERE room_id=$3
	`, amount, at, roomID)
	return err
}

func (r *RoomRepository) SetFeePayer(ctx context.Context, roomID uuid.UUID, payer *room.FeePayer, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rooms SET fee_payer=$1, last_activity_at=$2, updated_at=$2 WHERE room_id=$3
	`, payer, at, roomID)
	return err
}

func (r *RoomRepository) SetEscrowAddress(ctx context.Context, roomID uuid.UUID, address string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rooms SET escrow_address=$1, last_activity_at=$2, updated_at=$2 WHERE room_id=$3
	`, address, at, roomID)
	return err
}

func (r *RoomRepository) SetReleaseTxRef(ctx context.Context, roomID uuid.UUID, txRef string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rooms SET release_tx_ref=$1, last_activity_at=$2, updated_at=$2 WHERE room_id=$3
	`, txRef, at, roomID)
	return err
}

func (r *RoomRepository) SetStatus(ctx context.Context, roomID uuid.UUID, status room.Status, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rooms SET status=$1, updated_at=$2 WHERE room_id=$3
	`, status, at, roomID)
	return err
}

func (r *RoomRepository) TouchRoom(ctx context.Context, roomID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rooms SET last_activity_at=$1, updated_at=$1 WHERE room_id=$2
	`, at, roomID)
	return err
}

const participantColumns = `id, participant_id, room_id, user_id, role,
	role_confirmed, amount_confirmed, fee_confirmed, release_confirmed, cancel_confirmed,
	payout_address, joined_at`

func (r *RoomRepository) CreateParticipant(ctx context.Context, p *room.Participant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO participants (participant_id, room_id, user_id, joined_at)
		VALUES ($1,$2,$3,$4)
	`, p.ParticipantID, p.RoomID, p.UserID, p.JoinedAt)
	return err
}

func (r *RoomRepository) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]*room.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+participantColumns+` FROM participants WHERE room_id=$1 ORDER BY joined_at ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*room.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *RoomRepository) GetParticipantByUser(ctx context.Context, roomID, userID uuid.UUID) (*room.Participant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+participantColumns+` FROM participants WHERE room_id=$1 AND user_id=$2
	`, roomID, userID)
	return scanParticipant(row)
}

func (r *RoomRepository) SetRole(ctx context.Context, participantID uuid.UUID, role *room.Role) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE participants SET role=$1 WHERE participant_id=$2
	`, role, participantID)
	return err
}

func (r *RoomRepository) SetConfirmation(ctx context.Context, participantID uuid.UUID, phase room.ConfirmPhase, confirmed bool) error {
	col, err := confirmColumn(phase)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE participants SET `+col+`=$1 WHERE participant_id=$2
	`, confirmed, participantID)
	return err
}

func (r *RoomRepository) ResetPhase(ctx context.Context, roomID uuid.UUID, phase room.ConfirmPhase) error {
	col, err := confirmColumn(phase)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE participants SET `+col+`=FALSE WHERE room_id=$1
	`, roomID)
	return err
}

func (r *RoomRepository) ClearRoles(ctx context.Context, roomID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE participants SET role=NULL, role_confirmed=FALSE WHERE room_id=$1
	`, roomID)
	return err
}

func (r *RoomRepository) SetPayoutAddress(ctx context.Context, participantID uuid.UUID, address *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE participants SET payout_address=$1 WHERE participant_id=$2
	`, address, participantID)
	return err
}

// confirmColumn maps a phase to its flag column. The phase is a closed enum,
// never user input, so interpolation is safe.
func confirmColumn(phase room.ConfirmPhase) (string, error) {
	switch phase {
	case room.PhaseRole:
		return "role_confirmed", nil
	case room.PhaseAmount:
		return "amount_confirmed", nil
	case room.PhaseFee:
		return "fee_confirmed", nil
	case room.PhaseRelease:
		return "release_confirmed", nil
	case room.PhaseCancel:
		return "cancel_confirmed", nil
	}
	return "", fmt.Errorf("unknown confirmation phase %q", phase)
}

func scanRoom(row pgx.Row) (*room.Room, error) {
	var rm room.Room
	if err := row.Scan(
		&rm.ID, &rm.RoomID, &rm.Name, &rm.JoinCode, &rm.ChainID, &rm.TokenSymbol, &rm.TokenDecimals,
		&rm.Amount, &rm.FeePayer, &rm.EscrowAddress, &rm.DepositTxRef, &rm.ReleaseTxRef,
		&rm.Step, &rm.Status, &rm.CreatedBy, &rm.LastActivityAt, &rm.CreatedAt, &rm.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rm, nil
}

func scanParticipant(row pgx.Row) (*room.Participant, error) {
	var p room.Participant
	if err := row.Scan(
		&p.ID, &p.ParticipantID, &p.RoomID, &p.UserID, &p.Role,
		&p.RoleConfirmed, &p.AmountConfirmed, &p.FeeConfirmed, &p.ReleaseConfirmed, &p.CancelConfirmed,
		&p.PayoutAddress, &p.JoinedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
