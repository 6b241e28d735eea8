package settlement

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_gateway.go -package=mocks . Gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/escrowroom/escrowroom/internal/domain/room"
)

// ZeroAddress is the placeholder payout destination used when the gateway
// runs in simulated mode and no real wallet is involved.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// DepositResult reports whether a deposit matching a room's deal has landed.
type DepositResult struct {
	Found  bool   `json:"found"`
	Amount int64  `json:"amount"`
	TxRef  string `json:"txRef"`
}

// Gateway is the external settlement system holding funds for a deal. It is
// opaque: the engine only sees addresses and transaction references. A
// simulated implementation fabricates references instead of moving funds.
type Gateway interface {
	DeriveAddress(ctx context.Context, roomID uuid.UUID, chainID string) (string, error)
	CreateDeal(ctx context.Context, roomID uuid.UUID, chainID string, depositAmount int64, feePayer room.FeePayer) error
	CheckDeposit(ctx context.Context, roomID uuid.UUID, expectedAmount int64, chainID string) (*DepositResult, error)
	ExecuteRelease(ctx context.Context, roomID uuid.UUID, destination string, amount int64, chainID string) (string, error)
	ExecuteRefund(ctx context.Context, roomID uuid.UUID, destination string, amount int64, chainID string) (string, error)
}

// Simulator is the deposit-injection hook a simulated gateway exposes for
// non-production verification. Injected deposits are observed through the
// regular CheckDeposit path.
type Simulator interface {
	InjectDeposit(ctx context.Context, roomID uuid.UUID, amount int64, chainID string) (string, error)
}

// TransactionStatus is the final outcome recorded in a settlement snapshot.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionRefunded  TransactionStatus = "REFUNDED"
)

// Transaction is the denormalized settlement record written once per room
// when it reaches COMPLETED or CANCELLED. It exists for audit/history and is
// never mutated after creation.
type Transaction struct {
	ID            int64             `json:"id"`
	TransactionID uuid.UUID         `json:"transactionId"`
	RoomID        uuid.UUID         `json:"roomId"`
	Amount        int64             `json:"amount"`
	Fee           int64             `json:"fee"`
	FeePayer      room.FeePayer     `json:"feePayer"`
	DepositTxRef  *string           `json:"depositTxRef,omitempty"`
	ReleaseTxRef  *string           `json:"releaseTxRef,omitempty"`
	Status        TransactionStatus `json:"status"`
	CreatedAt     time.Time         `json:"createdAt"`
}
