// Package sse fans room notifications out to connected browsers over
// server-sent events.
package sse

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/escrowroom/escrowroom/internal/domain/notification"
)

const clientBuffer = 16

// Client is one SSE subscriber watching a single room.
type Client struct {
	ClientID string
	RoomID   uuid.UUID
	Messages chan []byte

	closeOnce sync.Once
}

// Close closes the client's channel. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Messages) })
}

// Hub manages SSE clients and implements notification.Sink. Publishing is
// fire-and-forget per client: a subscriber that cannot keep up loses
// messages rather than stalling the room transition that produced them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  zerolog.Logger
}

var _ notification.Sink = (*Hub)(nil)

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger.With().Str("component", "sse").Logger(),
	}
}

// Subscribe registers a new client watching roomID.
func (h *Hub) Subscribe(roomID uuid.UUID) *Client {
	c := &Client{
		ClientID: uuid.NewString(),
		RoomID:   roomID,
		Messages: make(chan []byte, clientBuffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ClientID] = c
	return c
}

// Unsubscribe removes and closes a client.
func (h *Hub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish marshals the message once and delivers it to every client watching
// the room.
func (h *Hub) Publish(_ context.Context, msg *notification.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.RoomID != msg.RoomID {
			continue
		}
		select {
		case c.Messages <- data:
		default:
			h.logger.Warn().Str("client_id", c.ClientID).Str("room_id", msg.RoomID.String()).Msg("slow client, message dropped")
		}
	}
	return nil
}

// Stop closes every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}
