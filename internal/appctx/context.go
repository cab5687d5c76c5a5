// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/productivity/taskr/internal/api"
	"github.com/productivity/taskr/internal/auth"
	"github.com/productivity/taskr/internal/config"
	"github.com/productivity/taskr/internal/credstore"
	"github.com/productivity/taskr/internal/hostutil"
	"github.com/productivity/taskr/internal/observability"
	"github.com/productivity/taskr/internal/output"
	"github.com/productivity/taskr/internal/resources"
	"github.com/productivity/taskr/internal/session"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// DefaultExpirySkew treats an access token this close to expiry as stale.
const DefaultExpirySkew = 30 * time.Second

// App holds the shared application context for all commands.
type App struct {
	Config   *config.Config
	Store    credstore.Store
	Client   *api.Client
	Auth     *auth.Manager
	Services *resources.Services
	Output   *output.Writer
	Logger   *slog.Logger

	// Session lifecycle
	Bus      *session.Bus
	Gate     *session.Gate
	Guard    *session.Guard
	Listener *session.Listener

	// Observability
	Collector *observability.SessionCollector
	Hooks     *observability.CLIHooks

	// Flags holds the global flag values
	Flags GlobalFlags

	Stdout io.Writer
	Stderr io.Writer

	relogin     atomic.Bool
	reloginUser atomic.Value
	detach  func()
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON    bool
	YAML    bool
	Quiet   bool
	Styled  bool
	IDsOnly bool
	Count   bool
	JQ      string

	// Connection flags
	Host    string
	Backend string

	// Behavior flags
	Verbose int // 0=off, 1=operations+session, 2=+requests (stacks with -v -v or -vv)
	Stats   bool
}

// NewApp wires the store, gateway, session bus and services for cfg.
// stdout and stderr default to the process streams.
func NewApp(cfg *config.Config, flags GlobalFlags, stdout, stderr io.Writer) (*App, error) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	level := verboseLevel(cfg, flags)
	logger := newLogger(stderr, level)

	store, static, err := auth.OpenStore(cfg.CredentialBackend, config.GlobalConfigDir(), hostutil.Origin(cfg.BaseURL))
	if err != nil {
		return nil, output.ErrUsageHint(err.Error(), "Set credential_backend to file or memory")
	}

	collector := observability.NewSessionCollector()
	hooks := observability.NewCLIHooks(level, collector, observability.NewTraceWriterTo(stderr))

	bus := session.NewBus()
	client := api.NewClient(api.Config{
		BaseURL:     cfg.BaseURL,
		LoginPath:   cfg.LoginPath,
		RefreshPath: cfg.RefreshPath,
		Timeout:     cfg.Timeout,
		Coalesce:    cfg.RefreshCoalesce,
	}, store, api.WithHooks(hooks), api.WithLogger(logger), api.WithBus(bus))

	mode := session.ModeExpiry
	if cfg.LoginCheck == config.LoginCheckPresence {
		mode = session.ModePresence
	}
	guard := &session.Guard{Store: store, Mode: mode, Skew: DefaultExpirySkew}
	gate := session.NewGate()

	app := &App{
		Config:    cfg,
		Store:     store,
		Client:    client,
		Auth:      auth.NewManager(client, guard, gate, static),
		Services:  resources.New(client),
		Logger:    logger,
		Bus:       bus,
		Gate:      gate,
		Guard:     guard,
		Collector: collector,
		Hooks:     hooks,
		Flags:     flags,
		Stdout:    stdout,
		Stderr:    stderr,
	}
	app.Listener = &session.Listener{
		Gate:     gate,
		Store:    store,
		Logger:   logger,
		Notice:   stderr,
		Redirect: func(username string) {
			app.reloginUser.Store(username)
			app.relogin.Store(true)
		},
	}

	format, err := app.outputFormat()
	if err != nil {
		return nil, err
	}
	app.Output = output.New(output.Options{Format: format, Writer: stdout, JQ: flags.JQ})
	return app, nil
}

// verboseLevel combines -v flags, the verbose setting and TASKR_DEBUG.
func verboseLevel(cfg *config.Config, flags GlobalFlags) int {
	level := flags.Verbose
	if level == 0 && cfg.Verbose != nil {
		level = *cfg.Verbose
	}
	if debugEnv := os.Getenv("TASKR_DEBUG"); debugEnv != "" {
		if n, err := strconv.Atoi(debugEnv); err == nil {
			level = max(level, n)
		} else if debugEnv == "true" {
			level = 2
		}
	}
	return level
}

func newLogger(w io.Writer, level int) *slog.Logger {
	lvl := slog.LevelWarn
	if level > 0 {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// outputFormat resolves the format: specific flags first, then config.
func (a *App) outputFormat() (output.Format, error) {
	switch {
	case a.Flags.Quiet:
		return output.FormatQuiet, nil
	case a.Flags.IDsOnly:
		return output.FormatIDs, nil
	case a.Flags.Count:
		return output.FormatCount, nil
	case a.Flags.JSON:
		return output.FormatJSON, nil
	case a.Flags.YAML:
		return output.FormatYAML, nil
	case a.Flags.Styled:
		return output.FormatStyled, nil
	}
	return output.ParseFormat(a.Config.Format)
}

// Attach subscribes the session listener to the bus. Call the returned
// function, or Close, on teardown.
func (a *App) Attach() (detach func()) {
	a.detach = a.Listener.Attach(a.Bus)
	return a.detach
}

// Close detaches the session listener. It is safe to call more than once.
func (a *App) Close() {
	if a.detach != nil {
		a.detach()
		a.detach = nil
	}
}

// ReloginRequested reports whether a session expiry asked for a new login.
func (a *App) ReloginRequested() bool {
	return a.relogin.Load()
}

// ReloginUsername returns the username of the session that expired, if known.
func (a *App) ReloginUsername() string {
	s, _ := a.reloginUser.Load().(string)
	return s
}

// StatsEnabled reports whether --stats or the stats setting is on.
func (a *App) StatsEnabled() bool {
	if a.Flags.Stats {
		return true
	}
	return a.Config != nil && a.Config.Stats != nil && *a.Config.Stats
}

// OK outputs a success response, including stats when enabled.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	if a.StatsEnabled() && a.Collector != nil {
		opts = append(opts, output.WithMeta("stats", a.Collector.Summary().String()))
	}
	return a.Output.OK(data, opts...)
}

// Err outputs an error response, printing stats to stderr when enabled.
func (a *App) Err(err error) error {
	if outputErr := a.Output.Err(err); outputErr != nil {
		return outputErr
	}
	if a.StatsEnabled() && a.Collector != nil && !a.IsMachineOutput() {
		fmt.Fprintf(a.Stderr, "\nStats: %s\n", a.Collector.Summary())
	}
	return nil
}

// IsMachineOutput returns true if the output mode is intended for programmatic consumption.
func (a *App) IsMachineOutput() bool {
	switch a.Output.Format() {
	case output.FormatQuiet, output.FormatIDs, output.FormatCount:
		return true
	}
	return false
}

// IsInteractive returns true when prompts may be shown.
func (a *App) IsInteractive() bool {
	if a.IsMachineOutput() || a.Flags.JSON || a.Flags.YAML {
		return false
	}
	f, ok := a.Stdout.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	if ctx == nil {
		return nil
	}
	app, _ := ctx.Value(appKey).(*App)
	return app
}
