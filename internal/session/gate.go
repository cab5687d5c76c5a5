package session

import (
	"sync"

	"github.com/productivity/taskr/internal/output"
)

// Gate blocks authenticated work after a session has expired, until the user
// logs in again.
type Gate struct {
	mu      sync.Mutex
	expired bool
	closed  chan struct{}
}

// NewGate returns an open gate.
func NewGate() *Gate {
	return &Gate{closed: make(chan struct{})}
}

// Close marks the session expired. It reports whether this call changed state.
func (g *Gate) Close() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expired {
		return false
	}
	g.expired = true
	close(g.closed)
	return true
}

// Reopen clears the expired state after a successful login.
func (g *Gate) Reopen() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.expired {
		return
	}
	g.expired = false
	g.closed = make(chan struct{})
}

// Expired reports whether the gate is closed.
func (g *Gate) Expired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.expired
}

// Done returns a channel that is closed when the gate next closes.
func (g *Gate) Done() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Check returns a session_expired error while the gate is closed.
func (g *Gate) Check() error {
	if g.Expired() {
		return output.ErrSessionExpired(nil)
	}
	return nil
}
