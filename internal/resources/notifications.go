package resources

import (
	"context"
	"fmt"
	"time"

	"github.com/productivity/taskr/internal/api"
	"github.com/productivity/taskr/internal/models"
	"github.com/productivity/taskr/internal/output"
)

// DefaultWatchInterval is the polling period for Watch.
const DefaultWatchInterval = 15 * time.Second

// NotificationService reads and acknowledges notifications.
type NotificationService struct {
	c *api.Client
}

// List returns the caller's notifications, newest first as the server orders them.
func (s *NotificationService) List(ctx context.Context) ([]models.Notification, error) {
	var items []models.Notification
	err := track(ctx, s.c, "Notifications", "List", false, 0, func(ctx context.Context) error {
		resp, err := s.c.Get(ctx, "/notifications/")
		if err != nil {
			return err
		}
		items, _, err = decodeList[models.Notification](resp)
		return err
	})
	return items, err
}

// MarkRead flags a notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, id int64) error {
	return track(ctx, s.c, "Notifications", "MarkRead", true, id, func(ctx context.Context) error {
		_, err := s.c.Patch(ctx, fmt.Sprintf("/notifications/%d/", id), map[string]bool{"read": true})
		return err
	})
}

// Unread filters out read notifications.
func Unread(items []models.Notification) []models.Notification {
	out := make([]models.Notification, 0, len(items))
	for _, n := range items {
		if !n.Read {
			out = append(out, n)
		}
	}
	return out
}

// Gate is the slice of session.Gate that Watch needs.
type Gate interface {
	Done() <-chan struct{}
}

// WatchOptions configures Watch.
type WatchOptions struct {
	Interval time.Duration
	// Gate stops the watch as soon as the session expires. Optional.
	Gate Gate
	// OnNew is called once for every unread notification not seen before.
	OnNew func(models.Notification)
}

// Watch polls for notifications until ctx ends or the session expires, in
// which case it returns a session_expired error. Other errors from a poll are
// returned as-is.
func (s *NotificationService) Watch(ctx context.Context, opts WatchOptions) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	var expired <-chan struct{}
	if opts.Gate != nil {
		expired = opts.Gate.Done()
	}

	seen := make(map[int64]bool)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		items, err := s.List(ctx)
		if err != nil {
			return err
		}
		for _, n := range Unread(items) {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			if opts.OnNew != nil {
				opts.OnNew(n)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-expired:
			return output.ErrSessionExpired(nil)
		case <-ticker.C:
		}
	}
}
