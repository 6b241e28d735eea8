package room

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestLockerSerializesPerRoom(t *testing.T) {
	l := NewLocker()
	roomID := uuid.New()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock(roomID)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 64, counter)
}

func TestLockerIndependentRooms(t *testing.T) {
	l := NewLocker()
	a, b := uuid.New(), uuid.New()

	unlockA := l.Lock(a)
	// a held lock on room a must not block room b
	done := make(chan struct{})
	go func() {
		unlockB := l.Lock(b)
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}

func TestLockerReleasesEntries(t *testing.T) {
	l := NewLocker()
	roomID := uuid.New()

	unlock := l.Lock(roomID)
	unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.locks)
}
