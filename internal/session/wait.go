package session

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/productivity/taskr/internal/credstore"
)

// DefaultPollInterval is how often WaitForLogin re-reads the store when it
// cannot rely on file events.
const DefaultPollInterval = 2 * time.Second

// WaitForLogin blocks until the store holds an access token again, or ctx ends.
// For file-backed stores it watches the credentials file so a login from
// another process is noticed immediately; polling covers everything else.
func WaitForLogin(ctx context.Context, store credstore.Store, poll time.Duration, logger *slog.Logger) error {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if hasAccess(store) {
		return nil
	}

	var events <-chan fsnotify.Event
	if fs, ok := store.(*credstore.FileStore); ok {
		watcher, err := fsnotify.NewWatcher()
		if err == nil {
			defer watcher.Close()
			// Watch the directory: atomic saves replace the file via rename.
			if err := watcher.Add(filepath.Dir(fs.Path())); err == nil {
				events = watcher.Events
			} else if logger != nil {
				logger.Debug("credential watch unavailable, polling", "error", err)
			}
		} else if logger != nil {
			logger.Debug("credential watch unavailable, polling", "error", err)
		}
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(ev.Name) != credstore.CredentialsFile {
				continue
			}
		case <-ticker.C:
		}
		if hasAccess(store) {
			return nil
		}
	}
}

func hasAccess(store credstore.Store) bool {
	v, ok := store.Get(credstore.KeyAccessToken)
	return ok && v != ""
}
