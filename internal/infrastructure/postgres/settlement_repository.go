package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/escrowroom/escrowroom/internal/domain/settlement"
)

// SettlementRepository implements settlement.Repository.
type SettlementRepository struct {
	pool *pgxpool.Pool
}

func NewSettlementRepository(pool *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

const transactionColumns = `id, transaction_id, room_id, amount, fee, fee_payer, deposit_tx_ref, release_tx_ref, status, created_at`

func (r *SettlementRepository) Create(ctx context.Context, tx *settlement.Transaction) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settlement_transactions
		(transaction_id, room_id, amount, fee, fee_payer, deposit_tx_ref, release_tx_ref, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, tx.TransactionID, tx.RoomID, tx.Amount, tx.Fee, tx.FeePayer, tx.DepositTxRef, tx.ReleaseTxRef, tx.Status, tx.CreatedAt)
	return err
}

func (r *SettlementRepository) GetByRoomID(ctx context.Context, roomID uuid.UUID) (*settlement.Transaction, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM settlement_transactions WHERE room_id=$1
	`, roomID)
	return scanTransaction(row)
}

func (r *SettlementRepository) List(ctx context.Context, limit, offset int) ([]*settlement.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM settlement_transactions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*settlement.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*settlement.Transaction, error) {
	var tx settlement.Transaction
	if err := row.Scan(&tx.ID, &tx.TransactionID, &tx.RoomID, &tx.Amount, &tx.Fee, &tx.FeePayer, &tx.DepositTxRef, &tx.ReleaseTxRef, &tx.Status, &tx.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}
