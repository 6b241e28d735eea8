package room

import (
	"sync"

	"github.com/google/uuid"
)

// Locker serializes work per room. Every user action and every sweep-forced
// transition acquires the room's lock before the read-validate-write
// sequence, closing the window between the phase check and the phase write.
type Locker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates a per-room lock table.
func NewLocker() *Locker {
	return &Locker{locks: make(map[uuid.UUID]*lockEntry)}
}

// Lock blocks until the room's lock is held and returns the release func.
// Entries are reference-counted so the table does not grow with dead rooms.
func (l *Locker) Lock(roomID uuid.UUID) func() {
	l.mu.Lock()
	e, ok := l.locks[roomID]
	if !ok {
		e = &lockEntry{}
		l.locks[roomID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, roomID)
		}
		l.mu.Unlock()
	}
}
