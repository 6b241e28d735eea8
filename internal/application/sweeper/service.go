// Package sweeper forces inactive rooms to EXPIRED and warns rooms that are
// about to run out of time. Both passes are externally triggered; the caller
// owns the schedule.
package sweeper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	approom "github.com/escrowroom/escrowroom/internal/application/room"
	"github.com/escrowroom/escrowroom/internal/domain/notification"
	"github.com/escrowroom/escrowroom/internal/domain/room"
)

const sweepConcurrency = 8

// Service expires and warns rooms based on inactivity.
type Service struct {
	rooms          room.Repository
	sink           notification.Sink
	locks          *approom.Locker
	negotiationTTL time.Duration // pre-funding steps
	depositTTL     time.Duration // AWAITING_DEPOSIT
	warnThreshold  time.Duration
	logger         zerolog.Logger
}

// NewService creates a timeout sweeper.
func NewService(
	rooms room.Repository,
	sink notification.Sink,
	locks *approom.Locker,
	negotiationTTL, depositTTL, warnThreshold time.Duration,
	logger zerolog.Logger,
) *Service {
	return &Service{
		rooms:          rooms,
		sink:           sink,
		locks:          locks,
		negotiationTTL: negotiationTTL,
		depositTTL:     depositTTL,
		warnThreshold:  warnThreshold,
		logger:         logger.With().Str("service", "sweeper").Logger(),
	}
}

// window returns the inactivity window applicable to a step, or false for
// steps that never expire (FUNDED and beyond).
func (s *Service) window(step room.Step) (time.Duration, bool) {
	switch {
	case step.PreFunding():
		return s.negotiationTTL, true
	case step == room.StepAwaitingDeposit:
		return s.depositTTL, true
	}
	return 0, false
}

// Sweep enumerates OPEN rooms and forces EXPIRED/EXPIRED on every room whose
// inactivity exceeds its window. Returns how many rooms expired.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	rooms, err := s.rooms.ListOpenRooms(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()

	var expired atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, r := range rooms {
		r := r
		g.Go(func() error {
			ok, err := s.expireRoom(ctx, r.RoomID, now)
			if err != nil {
				return err
			}
			if ok {
				expired.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	n := int(expired.Load())
	if n > 0 {
		s.logger.Info().Int("expired", n).Msg("sweep pass")
	}
	return n, err
}

// expireRoom re-reads the room under its lock, applying the same
// single-writer discipline as user actions: a sweep may run concurrently
// with confirmations and must not clobber a transition that beat it.
func (s *Service) expireRoom(ctx context.Context, roomID uuid.UUID, now time.Time) (bool, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	r, err := s.rooms.GetRoomByID(ctx, roomID)
	if err != nil || r == nil {
		return false, err
	}
	if r.Status != room.StatusOpen {
		return false, nil
	}
	win, expirable := s.window(r.Step)
	if !expirable || now.Sub(r.LastActivityAt) <= win {
		return false, nil
	}

	swapped, err := s.rooms.UpdateStep(ctx, roomID, r.Step, room.StepExpired, room.StatusExpired, now)
	if err != nil || !swapped {
		return false, err
	}

	windowName, text := "negotiation", "Room expired: the negotiation went quiet for too long."
	if r.Step == room.StepAwaitingDeposit {
		windowName, text = "deposit", "Room expired: the deposit never arrived."
	}
	msg := &notification.Message{RoomID: r.RoomID, Text: text, Meta: notification.Expired{Window: windowName}}
	if err := s.sink.Publish(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("room_id", r.RoomID.String()).Msg("notification publish failed")
	}
	return true, nil
}

// Warn emits an expiry warning for every OPEN room whose remaining time is
// below the threshold. The pass is deliberately not idempotent: it re-warns
// on every invocation, so callers schedule it coarser than the threshold.
func (s *Service) Warn(ctx context.Context) (int, error) {
	rooms, err := s.rooms.ListOpenRooms(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()

	warned := 0
	for _, r := range rooms {
		win, expirable := s.window(r.Step)
		if !expirable {
			continue
		}
		remaining := win - now.Sub(r.LastActivityAt)
		if remaining <= 0 || remaining > s.warnThreshold {
			continue
		}
		msg := &notification.Message{
			RoomID: r.RoomID,
			Text:   fmt.Sprintf("Heads up: this room expires in about %s without activity.", remaining.Round(time.Minute)),
			Meta:   notification.ExpiryWarning{Remaining: remaining},
		}
		if err := s.sink.Publish(ctx, msg); err != nil {
			s.logger.Warn().Err(err).Str("room_id", r.RoomID.String()).Msg("notification publish failed")
			continue
		}
		warned++
	}
	return warned, nil
}
