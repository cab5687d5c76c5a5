// Package cli assembles the taskr command tree and runs it.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/productivity/taskr/internal/appctx"
	"github.com/productivity/taskr/internal/commands"
	"github.com/productivity/taskr/internal/config"
	"github.com/productivity/taskr/internal/hostutil"
	"github.com/productivity/taskr/internal/output"
	"github.com/productivity/taskr/internal/prompt"
	"github.com/productivity/taskr/internal/version"
)

// NewRootCmd creates the root cobra command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:           "taskr",
		Short:         "Command-line client for the taskr task service",
		Long:          "taskr manages your tasks, comments, followed users and notifications from the terminal.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !needsApp(cmd) {
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{
				BaseURL: hostutil.APIBase(flags.Host),
				Backend: flags.Backend,
				Verbose: flags.Verbose,
				Stats:   flags.Stats,
			})
			if err != nil {
				return output.ErrUsage(err.Error())
			}

			app, err := appctx.NewApp(cfg, flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			app.Attach()

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().BoolVar(&flags.YAML, "yaml", false, "Output as YAML")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Output data only, no envelope")
	cmd.PersistentFlags().BoolVar(&flags.Styled, "styled", false, "Force styled output (ANSI colors)")
	cmd.PersistentFlags().BoolVar(&flags.IDsOnly, "ids-only", false, "Output only IDs")
	cmd.PersistentFlags().BoolVar(&flags.Count, "count", false, "Output only count")
	cmd.PersistentFlags().StringVar(&flags.JQ, "jq", "", "Filter output data with a jq expression")

	// Connection flags
	cmd.PersistentFlags().StringVar(&flags.Host, "host", "", "Task server (e.g., localhost:8000, tasks.example.com)")
	cmd.PersistentFlags().StringVar(&flags.Backend, "credential-backend", "", "Credential storage: auto, keyring, file, memory")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for operations, -vv for requests)")
	cmd.PersistentFlags().BoolVar(&flags.Stats, "stats", false, "Show session statistics")

	cmd.AddCommand(
		commands.NewAuthCmd(),
		commands.NewTasksCmd(),
		commands.NewCommentsCmd(),
		commands.NewUsersCmd(),
		commands.NewFollowedCmd(),
		commands.NewNotificationsCmd(),
		commands.NewConfigCmd(),
		commands.NewCommandsCmd(),
		commands.NewCompletionCmd(),
		commands.NewVersionCmd(),
	)

	return cmd
}

// needsApp reports whether cmd runs against the task server or config.
// Help, version and completion script generation work without either.
func needsApp(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "version", "__complete", "__completeNoDesc":
		return false
	case "completion":
		return false
	}
	if p := cmd.Parent(); p != nil && p.Name() == "completion" {
		return cmd.Name() == "refresh" || cmd.Name() == "status"
	}
	return true
}

// Execute runs the root command and exits with the error's exit code.
func Execute() {
	os.Exit(run(context.Background(), NewRootCmd(), os.Args[1:]))
}

// run executes root with args and returns the process exit code.
func run(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	executedCmd, err := root.ExecuteContextC(ctx)

	var app *appctx.App
	if executedCmd != nil {
		app = appctx.FromContext(executedCmd.Context())
	}
	if app != nil {
		defer app.Close()
	}
	if err == nil {
		return 0
	}

	err = transformCobraError(err)
	apiErr := output.AsError(err)

	if app != nil {
		_ = app.Err(err)
		if output.IsSessionExpired(err) {
			offerRelogin(ctx, app)
		}
		return apiErr.ExitCode()
	}

	// No app: setup failed or the command never needed one.
	writer := output.New(output.Options{
		Format: fallbackFormat(root),
		Writer: root.OutOrStdout(),
	})
	_ = writer.Err(err)
	return apiErr.ExitCode()
}

// fallbackFormat reads the output flags directly when no App exists.
func fallbackFormat(root *cobra.Command) output.Format {
	pf := root.PersistentFlags()
	get := func(name string) bool {
		v, _ := pf.GetBool(name)
		return v
	}
	switch {
	case get("quiet"):
		return output.FormatQuiet
	case get("ids-only"):
		return output.FormatIDs
	case get("count"):
		return output.FormatCount
	case get("json"):
		return output.FormatJSON
	case get("yaml"):
		return output.FormatYAML
	case get("styled"):
		return output.FormatStyled
	}
	return output.FormatAuto
}

// offerRelogin shows the login form after a session expiry ended the command,
// when a person is at the terminal. The expiry notice has already been printed.
func offerRelogin(ctx context.Context, app *appctx.App) {
	if !app.ReloginRequested() || !app.IsInteractive() || !prompt.Interactive() {
		return
	}
	if ok, err := prompt.Confirm("Log in again now?", true); err != nil || !ok {
		return
	}
	reloginWith(ctx, app, prompt.Login, app.Stderr)
}

// loginForm collects credentials; prompt.Login in production.
type loginForm func(username string) (prompt.Credentials, error)

func reloginWith(ctx context.Context, app *appctx.App, form loginForm, w io.Writer) bool {
	creds, err := form(app.ReloginUsername())
	if err != nil {
		if !errors.Is(err, prompt.ErrNotInteractive) {
			app.Logger.Debug("relogin form", "error", err)
		}
		return false
	}

	if _, err := app.Auth.Login(ctx, creds.Username, creds.Password); err != nil {
		fmt.Fprintf(w, "Login failed: %s\n", output.AsError(err).Message)
		return false
	}
	fmt.Fprintf(w, "Logged in as %s. Run the command again to continue.\n", creds.Username)
	return true
}

var shorthandFlagRE = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)
var requiredFlagRE = regexp.MustCompile(`required flag\(s\) "([\w-]+)" not set`)

// transformCobraError turns cobra's argument and flag errors into usage errors
// with consistent wording.
func transformCobraError(err error) error {
	msg := err.Error()

	if flag, ok := strings.CutPrefix(msg, "flag needs an argument: "); ok {
		return output.ErrUsage(flag + " requires a value")
	}

	if flag, ok := strings.CutPrefix(msg, "unknown flag: "); ok {
		return output.ErrUsage("Unknown option: " + flag)
	}

	if strings.HasPrefix(msg, "unknown shorthand flag: ") {
		if matches := shorthandFlagRE.FindStringSubmatch(msg); len(matches) > 1 {
			return output.ErrUsage("Unknown option: " + matches[1])
		}
	}

	if strings.HasPrefix(msg, "unknown command ") {
		return output.ErrUsageHint(msg, "Run: taskr commands")
	}

	if strings.Contains(msg, "invalid argument") {
		return output.ErrUsage(msg)
	}

	if strings.Contains(msg, "requires at least") && strings.Contains(msg, "arg(s)") {
		return output.ErrUsage("ID(s) required")
	}

	if strings.Contains(msg, "arg(s), received 0") {
		return output.ErrUsage("ID required")
	}

	if strings.Contains(msg, "arg(s), received") {
		return output.ErrUsage("Too many arguments: " + msg)
	}

	if matches := requiredFlagRE.FindStringSubmatch(msg); len(matches) > 1 {
		return output.ErrUsage("--" + matches[1] + " required")
	}

	return err
}
