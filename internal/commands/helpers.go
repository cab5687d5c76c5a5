// Package commands implements the CLI commands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/productivity/taskr/internal/appctx"
	"github.com/productivity/taskr/internal/completion"
	"github.com/productivity/taskr/internal/hostutil"
	"github.com/productivity/taskr/internal/models"
	"github.com/productivity/taskr/internal/output"
	"github.com/productivity/taskr/internal/prompt"
)

var completer = completion.NewCompleter(nil)

// errNoApp is returned when a command runs without the root setup.
var errNoApp = errors.New("app not initialized")

func appFrom(cmd *cobra.Command) (*appctx.App, error) {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return nil, errNoApp
	}
	return app, nil
}

// authedApp returns the app after checking that a session exists.
func authedApp(cmd *cobra.Command) (*appctx.App, error) {
	app, err := appFrom(cmd)
	if err != nil {
		return nil, err
	}
	if err := app.Auth.RequireLogin(); err != nil {
		return nil, err
	}
	return app, nil
}

// parseID parses a positive numeric ID, accepting a leading '#'.
func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, output.ErrUsage(fmt.Sprintf("Invalid %s ID %q", what, s))
	}
	return id, nil
}

func parseIDs(args []string, what string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID(a, what)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// confirmDelete asks before a destructive action unless force is set.
// Without a terminal the action needs --force.
func confirmDelete(app *appctx.App, force bool, what string) error {
	if force {
		return nil
	}
	if !app.IsInteractive() {
		return output.ErrUsageHint("Refusing to delete "+what+" without confirmation", "Pass --force")
	}
	ok, err := prompt.ConfirmDangerous("Delete " + what + "?")
	if err != nil {
		return err
	}
	if !ok {
		return output.ErrUsage("Canceled")
	}
	return nil
}

// readSecret reads a single line from r, trimming the trailing newline.
func readSecret(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimRight(line, "\r"), nil
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func anyChanged(cmd *cobra.Command, names ...string) bool {
	for _, n := range names {
		if cmd.Flags().Changed(n) {
			return true
		}
	}
	return false
}

func completionStore(app *appctx.App) *completion.Store {
	return completion.NewStore("", hostutil.Origin(app.Client.BaseURL()))
}

// rememberTasks refreshes the completion cache from a full, unfiltered listing.
func rememberTasks(app *appctx.App, tasks []models.Task) {
	if err := completionStore(app).UpdateTasks(tasks); err != nil {
		app.Logger.Debug("update completion cache", "section", "tasks", "error", err)
	}
}

func rememberUsers(app *appctx.App, users []models.User) {
	if err := completionStore(app).UpdateUsers(users); err != nil {
		app.Logger.Debug("update completion cache", "section", "users", "error", err)
	}
}
