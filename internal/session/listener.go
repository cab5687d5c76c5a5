package session

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/productivity/taskr/internal/credstore"
)

// Listener is the application-root consumer of the session-expired signal.
// On receipt it closes the gate, clears credential remnants (identity hint
// included) and points the user back at the login surface.
type Listener struct {
	Gate   *Gate
	Store  credstore.Store
	Logger *slog.Logger

	// Notice receives the user-facing message. Nil discards it.
	Notice io.Writer

	// Redirect, when set, is called once per expiry after cleanup with the
	// username that was stored before the credentials were cleared.
	Redirect func(username string)
}

// Attach subscribes the listener to bus and returns the detach function.
// Pair every Attach with its detach so expiry is handled exactly once.
func (l *Listener) Attach(bus *Bus) (detach func()) {
	return bus.Subscribe(l.Handle)
}

// Handle reacts to a bus event. Events other than Expired are ignored.
func (l *Listener) Handle(e Event) {
	if e.Name != Expired {
		return
	}

	first := true
	if l.Gate != nil {
		first = l.Gate.Close()
	}

	var username string
	if l.Store != nil {
		username, _ = l.Store.Get(credstore.KeyUsername)
		if err := credstore.Clear(l.Store); err != nil && l.Logger != nil {
			l.Logger.Warn("clearing credentials after session expiry", "error", err)
		}
	}

	if !first {
		return
	}

	if l.Logger != nil {
		l.Logger.Info("session expired", "at", e.At)
	}
	if l.Notice != nil {
		fmt.Fprintln(l.Notice, "Your session has expired. Please log in again.")
	}
	if l.Redirect != nil {
		l.Redirect(username)
	}
}
