package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/productivity/taskr/internal/appctx"
	"github.com/productivity/taskr/internal/models"
	"github.com/productivity/taskr/internal/output"
	"github.com/productivity/taskr/internal/prompt"
	"github.com/productivity/taskr/internal/resources"
	"github.com/productivity/taskr/internal/session"
)

// NewNotificationsCmd creates the notifications command group.
func NewNotificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notifs", "inbox"},
		Short:   "Read and watch notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotificationsList(cmd, false)
		},
	}

	cmd.AddCommand(
		newNotificationsListCmd(),
		newNotificationsReadCmd(),
		newNotificationsWatchCmd(),
	)

	return cmd
}

func newNotificationsListCmd() *cobra.Command {
	var unread bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotificationsList(cmd, unread)
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "Only unread notifications")

	return cmd
}

func runNotificationsList(cmd *cobra.Command, unread bool) error {
	app, err := authedApp(cmd)
	if err != nil {
		return err
	}

	items, err := app.Services.Notifications.List(cmd.Context())
	if err != nil {
		return err
	}
	fresh := resources.Unread(items)
	if unread {
		items = fresh
	}

	crumbs := []output.Breadcrumb{{
		Action:      "watch",
		Cmd:         "taskr notifications watch",
		Description: "Stream new notifications",
	}}
	if len(fresh) > 0 {
		crumbs = append(crumbs, output.Breadcrumb{
			Action:      "read",
			Cmd:         fmt.Sprintf("taskr notifications read %d", fresh[0].ID),
			Description: "Mark as read",
		})
	}

	return app.OK(items,
		output.WithSummary(fmt.Sprintf("%s, %d unread", plural(len(items), "notification"), len(fresh))),
		output.WithBreadcrumbs(crumbs...),
	)
}

func newNotificationsReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>...",
		Short: "Mark notifications as read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}
			ids, err := parseIDs(args, "notification")
			if err != nil {
				return err
			}

			for _, id := range ids {
				if err := app.Services.Notifications.MarkRead(cmd.Context(), id); err != nil {
					return err
				}
			}

			return app.OK(map[string]any{"read": ids},
				output.WithSummary(fmt.Sprintf("Marked %s as read", plural(len(ids), "notification"))))
		},
	}
}

var (
	notifContextStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}).Bold(true)
	notifMutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6B6B6B", Dark: "#8A8A8A"})
)

func newNotificationsWatchCmd() *cobra.Command {
	var (
		interval time.Duration
		noResume bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream new notifications",
		Long: `Poll for unread notifications and print each new one as it arrives.

If the session expires while watching, the watch pauses until you log in
again (for example with "taskr auth login" in another terminal) and then
resumes. Pass --no-resume to exit instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = watchNotifications(ctx, app, interval, !noResume)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", resources.DefaultWatchInterval, "Polling interval")
	cmd.Flags().BoolVar(&noResume, "no-resume", false, "Exit when the session expires instead of waiting for a new login")

	return cmd
}

// watchNotifications runs Watch and, when resume is set, waits out session
// expiries before starting again.
func watchNotifications(ctx context.Context, app *appctx.App, interval time.Duration, resume bool) error {
	emit := notificationPrinter(app)
	// Watch forgets what it has shown when it restarts.
	shown := make(map[int64]bool)
	onNew := func(n models.Notification) {
		if !shown[n.ID] {
			shown[n.ID] = true
			emit(n)
		}
	}

	for {
		err := app.Services.Notifications.Watch(ctx, resources.WatchOptions{
			Interval: interval,
			Gate:     app.Gate,
			OnNew:    onNew,
		})
		if !resume || !output.IsSessionExpired(err) {
			return err
		}

		app.Logger.Debug("watch paused, waiting for login")
		if err := waitForLogin(ctx, app); err != nil {
			return err
		}
		app.Gate.Reopen()
		app.Logger.Debug("watch resumed")
	}
}

func waitForLogin(ctx context.Context, app *appctx.App) error {
	wait := func() error {
		return session.WaitForLogin(ctx, app.Store, session.DefaultPollInterval, app.Logger)
	}
	if !app.IsInteractive() {
		return wait()
	}

	_, err := prompt.NewSpinner("Session expired. Waiting for taskr auth login...", app.Stderr).Run(func() (string, error) {
		if err := wait(); err != nil {
			return "", err
		}
		return "Logged in again, resuming", nil
	})
	if errors.Is(err, prompt.ErrCanceled) {
		return context.Canceled
	}
	return err
}

// notificationPrinter writes one styled line per notification on a terminal
// and one JSON object per line otherwise.
func notificationPrinter(app *appctx.App) func(models.Notification) {
	if app.IsInteractive() {
		return func(n models.Notification) {
			label := "notice"
			if n.Context != "" {
				label = n.Context
			}
			fmt.Fprintf(app.Stdout, "%s %s %s\n",
				notifMutedStyle.Render(fmt.Sprintf("#%d", n.ID)),
				notifContextStyle.Render(label),
				n.Message)
		}
	}

	enc := json.NewEncoder(app.Stdout)
	return func(n models.Notification) {
		if err := enc.Encode(n); err != nil {
			app.Logger.Warn("write notification", "id", n.ID, "error", err)
		}
	}
}
