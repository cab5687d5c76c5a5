// Package session carries the session-expired signal from the request
// gateway to whoever owns the user-facing state, and answers "is a user
// logged in" for routing decisions.
package session

import (
	"sort"
	"sync"
	"time"
)

// Expired is the name of the signal emitted when a session cannot be refreshed.
const Expired = "sessionExpired"

// Event is a payload-free notification. At records emission time for logs.
type Event struct {
	Name string
	At   time.Time
}

// Bus is a process-wide broadcast channel. Emission is synchronous and
// fire-and-forget: listeners registered at the time of Emit are called in
// registration order; later subscribers never see past events.
type Bus struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]func(Event)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[uint64]func(Event))}
}

// Subscribe registers fn and returns its unsubscribe function. Calling the
// returned function more than once is harmless.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Emit delivers e to the current listeners and returns how many were called.
func (b *Bus) Emit(e Event) int {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.Lock()
	ids := make([]uint64, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.listeners[id])
	}
	b.mu.Unlock()

	// Called outside the lock so listeners may unsubscribe themselves.
	for _, fn := range fns {
		fn(e)
	}
	return len(fns)
}

// EmitExpired emits the session-expired signal.
func (b *Bus) EmitExpired() int {
	return b.Emit(Event{Name: Expired})
}

func (b *Bus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
