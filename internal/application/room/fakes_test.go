package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"

	"github.com/escrowroom/escrowroom/internal/domain/notification"
	"github.com/escrowroom/escrowroom/internal/domain/room"
	"github.com/escrowroom/escrowroom/internal/domain/settlement"
	"github.com/escrowroom/escrowroom/internal/domain/settlement/mocks"
)

// fakeRepo is an in-memory room.Repository with the same compare-and-swap
// semantics as the SQL implementation. Workflow tests need state that
// carries across calls, which call-by-call mocks cannot express.
type fakeRepo struct {
	mu           sync.Mutex
	rooms        map[uuid.UUID]*room.Room
	participants []*room.Participant
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rooms: make(map[uuid.UUID]*room.Room)}
}

func (f *fakeRepo) CreateRoom(_ context.Context, r *room.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[r.RoomID] = r
	return nil
}

func (f *fakeRepo) GetRoomByID(_ context.Context, roomID uuid.UUID) (*room.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms[roomID], nil
}

func (f *fakeRepo) GetRoomByCode(_ context.Context, joinCode string) (*room.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.JoinCode == joinCode {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListOpenRooms(context.Context) ([]*room.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*room.Room
	for _, r := range f.rooms {
		if r.Status == room.StatusOpen || r.Status == room.StatusDisputed {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateStep(_ context.Context, roomID uuid.UUID, from, to room.Step, status room.Status, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok || r.Step != from {
		return false, nil
	}
	r.Step = to
	r.Status = status
	r.LastActivityAt = at
	r.UpdatedAt = at
	return true, nil
}

func (f *fakeRepo) RecordDeposit(_ context.Context, roomID uuid.UUID, txRef string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok || r.Step != room.StepAwaitingDeposit {
		return false, nil
	}
	r.DepositTxRef = &txRef
	r.Step = room.StepFunded
	r.LastActivityAt = at
	r.UpdatedAt = at
	return true, nil
}

func (f *fakeRepo) SetAmount(_ context.Context, roomID uuid.UUID, amount *int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[roomID]; ok {
		r.Amount = amount
		r.LastActivityAt = at
		r.UpdatedAt = at
	}
	return nil
}

func (f *fakeRepo) SetFeePayer(_ context.Context, roomID uuid.UUID, payer *room.FeePayer, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[roomID]; ok {
		r.FeePayer = payer
		r.LastActivityAt = at
		r.UpdatedAt = at
	}
	return nil
}

func (f *fakeRepo) SetEscrowAddress(_ context.Context, roomID uuid.UUID, address string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[roomID]; ok {
		r.EscrowAddress = &address
		r.LastActivityAt = at
		r.UpdatedAt = at
	}
	return nil
}

func (f *fakeRepo) SetReleaseTxRef(_ context.Context, roomID uuid.UUID, txRef string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[roomID]; ok {
		r.ReleaseTxRef = &txRef
		r.UpdatedAt = at
	}
	return nil
}

func (f *fakeRepo) SetStatus(_ context.Context, roomID uuid.UUID, status room.Status, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[roomID]; ok {
		r.Status = status
		r.UpdatedAt = at
	}
	return nil
}

func (f *fakeRepo) TouchRoom(_ context.Context, roomID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[roomID]; ok {
		r.LastActivityAt = at
		r.UpdatedAt = at
	}
	return nil
}

func (f *fakeRepo) CreateParticipant(_ context.Context, p *room.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participants = append(f.participants, p)
	return nil
}

func (f *fakeRepo) ListParticipants(_ context.Context, roomID uuid.UUID) ([]*room.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*room.Participant
	for _, p := range f.participants {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetParticipantByUser(_ context.Context, roomID, userID uuid.UUID) (*room.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.RoomID == roomID && p.UserID == userID {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) SetRole(_ context.Context, participantID uuid.UUID, role *room.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.ParticipantID == participantID {
			p.Role = role
		}
	}
	return nil
}

func (f *fakeRepo) SetConfirmation(_ context.Context, participantID uuid.UUID, phase room.ConfirmPhase, confirmed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.ParticipantID == participantID {
			setFlag(p, phase, confirmed)
		}
	}
	return nil
}

func (f *fakeRepo) ResetPhase(_ context.Context, roomID uuid.UUID, phase room.ConfirmPhase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.RoomID == roomID {
			setFlag(p, phase, false)
		}
	}
	return nil
}

func (f *fakeRepo) ClearRoles(_ context.Context, roomID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.RoomID == roomID {
			p.Role = nil
			p.RoleConfirmed = false
		}
	}
	return nil
}

func (f *fakeRepo) SetPayoutAddress(_ context.Context, participantID uuid.UUID, address *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.ParticipantID == participantID {
			p.PayoutAddress = address
		}
	}
	return nil
}

func setFlag(p *room.Participant, phase room.ConfirmPhase, v bool) {
	switch phase {
	case room.PhaseRole:
		p.RoleConfirmed = v
	case room.PhaseAmount:
		p.AmountConfirmed = v
	case room.PhaseFee:
		p.FeeConfirmed = v
	case room.PhaseRelease:
		p.ReleaseConfirmed = v
	case room.PhaseCancel:
		p.CancelConfirmed = v
	}
}

var _ room.Repository = (*fakeRepo)(nil)

// captureSink records every published notification.
type captureSink struct {
	mu       sync.Mutex
	messages []*notification.Message
}

func (c *captureSink) Publish(_ context.Context, msg *notification.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

func (c *captureSink) last() *notification.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[len(c.messages)-1]
}

func (c *captureSink) actions() []notification.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notification.Action, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.Meta.NotificationAction())
	}
	return out
}

// captureTxs records settlement snapshots.
type captureTxs struct {
	mu  sync.Mutex
	txs []*settlement.Transaction
}

func (c *captureTxs) Create(_ context.Context, tx *settlement.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs = append(c.txs, tx)
	return nil
}

func (c *captureTxs) GetByRoomID(context.Context, uuid.UUID) (*settlement.Transaction, error) {
	return nil, nil
}

func (c *captureTxs) List(context.Context, int, int) ([]*settlement.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txs, nil
}

// staticDirectory resolves display names from a fixed map.
type staticDirectory map[uuid.UUID]string

func (d staticDirectory) DisplayName(_ context.Context, userID uuid.UUID) string {
	if name, ok := d[userID]; ok {
		return name
	}
	return "participant"
}

type harness struct {
	repo  *fakeRepo
	sink  *captureSink
	txs   *captureTxs
	gw    *mocks.MockGateway
	names staticDirectory
	svc   *Service
}

func newHarness(t *testing.T, simulated bool) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		repo:  newFakeRepo(),
		sink:  &captureSink{},
		txs:   &captureTxs{},
		gw:    mocks.NewMockGateway(ctrl),
		names: staticDirectory{},
	}
	h.svc = NewService(h.repo, h.txs, h.gw, h.sink, h.names, NewLocker(), simulated, zerolog.Nop())
	return h
}

// seedRoom installs a room at the given step with two participants holding
// distinct roles. Returns the room and the sender/receiver user ids.
func (h *harness) seedRoom(step room.Step) (*room.Room, uuid.UUID, uuid.UUID) {
	now := time.Now().UTC()
	r := &room.Room{
		RoomID:         uuid.New(),
		Name:           "laptop sale",
		JoinCode:       "ABC234",
		ChainID:        "base-sepolia",
		TokenSymbol:    "USDC",
		TokenDecimals:  6,
		Step:           step,
		Status:         room.StatusOpen,
		CreatedBy:      uuid.New(),
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	h.repo.rooms[r.RoomID] = r

	senderID, receiverID := uuid.New(), uuid.New()
	sender, receiver := room.RoleSender, room.RoleReceiver
	h.repo.participants = append(h.repo.participants,
		&room.Participant{ParticipantID: uuid.New(), RoomID: r.RoomID, UserID: senderID, Role: &sender, JoinedAt: now},
		&room.Participant{ParticipantID: uuid.New(), RoomID: r.RoomID, UserID: receiverID, Role: &receiver, JoinedAt: now},
	)
	h.names[senderID] = "alice"
	h.names[receiverID] = "bob"
	return r, senderID, receiverID
}

func (h *harness) setDeal(r *room.Room, amount int64, payer room.FeePayer) {
	r.Amount = &amount
	r.FeePayer = &payer
}
