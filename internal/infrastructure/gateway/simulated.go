// Package gateway provides settlement gateway implementations: a simulated
// in-process gateway for development and an HTTP client for a real custody
// service.
package gateway

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/escrowroom/escrowroom/internal/domain/room"
	"github.com/escrowroom/escrowroom/internal/domain/settlement"
)

type simulatedDeal struct {
	chainID       string
	depositAmount int64
	feePayer      room.FeePayer
}

type simulatedDeposit struct {
	amount int64
	txRef  string
}

// Simulated is an in-memory settlement gateway. Addresses are derived
// deterministically from the room id, deals and deposits live in maps, and
// transaction references are fabricated. Deposits appear only when injected
// through the Simulator hook, so the reconciliation path behaves exactly as
// it would against a real chain: CheckDeposit returns not-found until the
// money "arrives".
type Simulated struct {
	mu       sync.Mutex
	deals    map[uuid.UUID]simulatedDeal
	deposits map[uuid.UUID]simulatedDeposit
	logger   zerolog.Logger
}

var (
	_ settlement.Gateway   = (*Simulated)(nil)
	_ settlement.Simulator = (*Simulated)(nil)
)

// NewSimulated creates a simulated gateway.
func NewSimulated(logger zerolog.Logger) *Simulated {
	return &Simulated{
		deals:    make(map[uuid.UUID]simulatedDeal),
		deposits: make(map[uuid.UUID]simulatedDeposit),
		logger:   logger.With().Str("component", "gateway.simulated").Logger(),
	}
}

// DeriveAddress returns a stable pseudo-address for the room on the given
// chain. Deterministic so repeated calls agree.
func (g *Simulated) DeriveAddress(_ context.Context, roomID uuid.UUID, chainID string) (string, error) {
	sum := sha256.Sum256([]byte("escrow:" + roomID.String() + ":" + chainID))
	return "0x" + hex.EncodeToString(sum[:20]), nil
}

// CreateDeal registers the deal terms for later deposit matching.
func (g *Simulated) CreateDeal(_ context.Context, roomID uuid.UUID, chainID string, depositAmount int64, feePayer room.FeePayer) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deals[roomID] = simulatedDeal{chainID: chainID, depositAmount: depositAmount, feePayer: feePayer}
	g.logger.Debug().Str("room_id", roomID.String()).Int64("deposit_amount", depositAmount).Msg("deal created")
	return nil
}

// CheckDeposit reports an injected deposit, if any. A deposit below the
// expected amount stays invisible; over-deposits are reported at their actual
// value and left to the caller's policy.
func (g *Simulated) CheckDeposit(_ context.Context, roomID uuid.UUID, expectedAmount int64, _ string) (*settlement.DepositResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	dep, ok := g.deposits[roomID]
	if !ok || dep.amount < expectedAmount {
		return &settlement.DepositResult{Found: false}, nil
	}
	return &settlement.DepositResult{Found: true, Amount: dep.amount, TxRef: dep.txRef}, nil
}

// ExecuteRelease fabricates a release transaction reference.
func (g *Simulated) ExecuteRelease(_ context.Context, roomID uuid.UUID, destination string, amount int64, _ string) (string, error) {
	ref, err := newTxRef("SIM-REL")
	if err != nil {
		return "", err
	}
	g.logger.Info().Str("room_id", roomID.String()).Str("destination", destination).Int64("amount", amount).Str("tx_ref", ref).Msg("release executed")
	return ref, nil
}

// ExecuteRefund fabricates a refund transaction reference.
func (g *Simulated) ExecuteRefund(_ context.Context, roomID uuid.UUID, destination string, amount int64, _ string) (string, error) {
	ref, err := newTxRef("SIM-REF")
	if err != nil {
		return "", err
	}
	g.logger.Info().Str("room_id", roomID.String()).Str("destination", destination).Int64("amount", amount).Str("tx_ref", ref).Msg("refund executed")
	return ref, nil
}

// InjectDeposit places a synthetic deposit for the room. The deal must exist.
func (g *Simulated) InjectDeposit(_ context.Context, roomID uuid.UUID, amount int64, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.deals[roomID]; !ok {
		return "", fmt.Errorf("no deal registered for room %s", roomID)
	}
	ref, err := newTxRef("SIM-DEP")
	if err != nil {
		return "", err
	}
	g.deposits[roomID] = simulatedDeposit{amount: amount, txRef: ref}
	g.logger.Info().Str("room_id", roomID.String()).Int64("amount", amount).Str("tx_ref", ref).Msg("deposit injected")
	return ref, nil
}

func newTxRef(prefix string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return prefix + "-" + hex.EncodeToString(buf), nil
}
