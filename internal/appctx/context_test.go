package appctx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/productivity/taskr/internal/config"
	"github.com/productivity/taskr/internal/credstore"
	"github.com/productivity/taskr/internal/output"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.CredentialBackend = credstore.BackendMemory
	cfg.BaseURL = "http://127.0.0.1:1/api"
	return cfg
}

func newTestApp(t *testing.T, flags GlobalFlags) (*App, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app, err := NewApp(testConfig(), flags, &stdout, &stderr)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app, &stdout, &stderr
}

func TestNewApp(t *testing.T) {
	app, _, _ := newTestApp(t, GlobalFlags{})

	if app.Store == nil || app.Client == nil || app.Auth == nil || app.Services == nil {
		t.Fatal("core components not initialized")
	}
	if app.Client.Store() != app.Store {
		t.Error("gateway must read the app's store")
	}
	if app.Client.Bus() != app.Bus {
		t.Error("gateway must emit on the app's bus")
	}
	if app.Listener == nil || app.Listener.Gate != app.Gate {
		t.Error("listener not wired to the gate")
	}
	if credstore.Describe(app.Store) != credstore.BackendMemory {
		t.Errorf("backend = %s, want memory", credstore.Describe(app.Store))
	}
}

func TestNewAppRejectsUnknownFormat(t *testing.T) {
	cfg := testConfig()
	cfg.Format = "xml"
	if _, err := NewApp(cfg, GlobalFlags{}, &bytes.Buffer{}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected an error for an unknown format")
	}
}

func TestWithAppAndFromContext(t *testing.T) {
	app, _, _ := newTestApp(t, GlobalFlags{})

	if FromContext(WithApp(context.Background(), app)) != app {
		t.Error("FromContext did not retrieve the same app")
	}
	if FromContext(context.Background()) != nil {
		t.Error("expected nil from empty context")
	}
}

func TestOutputFormatFromFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags GlobalFlags
		want  output.Format
	}{
		{"quiet wins", GlobalFlags{Quiet: true, JSON: true}, output.FormatQuiet},
		{"ids", GlobalFlags{IDsOnly: true}, output.FormatIDs},
		{"count", GlobalFlags{Count: true}, output.FormatCount},
		{"json", GlobalFlags{JSON: true}, output.FormatJSON},
		{"yaml", GlobalFlags{YAML: true}, output.FormatYAML},
		{"styled", GlobalFlags{Styled: true}, output.FormatStyled},
		{"config default", GlobalFlags{}, output.FormatAuto},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _, _ := newTestApp(t, tt.flags)
			if got := app.Output.Format(); got != tt.want {
				t.Errorf("format = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOKIncludesStats(t *testing.T) {
	app, stdout, _ := newTestApp(t, GlobalFlags{JSON: true, Stats: true})

	if err := app.OK(map[string]any{"id": 1}); err != nil {
		t.Fatal(err)
	}
	var resp output.Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	stats, _ := resp.Meta["stats"].(string)
	if !strings.Contains(stats, "0 requests") {
		t.Errorf("stats meta = %q", stats)
	}
}

func TestErrPrintsStatsToStderr(t *testing.T) {
	app, _, stderr := newTestApp(t, GlobalFlags{JSON: true, Stats: true})
	if err := app.Err(output.ErrSessionExpired(nil)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr.String(), "Stats:") {
		t.Errorf("stderr = %q, want stats line", stderr.String())
	}

	quiet, _, quietErr := newTestApp(t, GlobalFlags{Quiet: true, Stats: true})
	_ = quiet.Err(output.ErrUsage("x"))
	if strings.Contains(quietErr.String(), "Stats:") {
		t.Error("machine output must not print stats")
	}
}

func TestSessionExpiryThroughAttachedListener(t *testing.T) {
	app, _, stderr := newTestApp(t, GlobalFlags{})
	for _, k := range credstore.AllKeys {
		_ = app.Store.Set(k, "x")
	}

	detach := app.Attach()
	app.Bus.EmitExpired()
	detach()

	if !app.Gate.Expired() {
		t.Error("gate should be closed")
	}
	if n := len(credstore.Snapshot(app.Store)); n != 0 {
		t.Errorf("%d credential keys left after expiry", n)
	}
	if !app.ReloginRequested() {
		t.Error("expiry should request a new login")
	}
	if got := app.ReloginUsername(); got != "x" {
		t.Errorf("ReloginUsername() = %q, want the cleared username", got)
	}
	if !strings.Contains(stderr.String(), "session has expired") {
		t.Errorf("stderr = %q", stderr.String())
	}
	if app.Bus.EmitExpired() != 0 {
		t.Error("detach must unsubscribe the listener")
	}
	if err := app.Auth.RequireLogin(); !output.IsSessionExpired(err) {
		t.Errorf("RequireLogin after expiry = %v", err)
	}
}

func TestVerboseLevel(t *testing.T) {
	cfg := testConfig()
	if got := verboseLevel(cfg, GlobalFlags{Verbose: 1}); got != 1 {
		t.Errorf("flag level = %d", got)
	}
	two := 2
	cfg.Verbose = &two
	if got := verboseLevel(cfg, GlobalFlags{}); got != 2 {
		t.Errorf("config level = %d", got)
	}
	t.Setenv("TASKR_DEBUG", "true")
	if got := verboseLevel(testConfig(), GlobalFlags{}); got != 2 {
		t.Errorf("TASKR_DEBUG level = %d", got)
	}
}

func TestStaticTokenFromEnvironment(t *testing.T) {
	t.Setenv("TASKR_TOKEN", "STATIC")
	cfg := testConfig()
	cfg.CredentialBackend = credstore.BackendFile

	app, err := NewApp(cfg, GlobalFlags{}, &bytes.Buffer{}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := app.Store.Get(credstore.KeyAccessToken); v != "STATIC" {
		t.Errorf("access token = %q", v)
	}
	if !app.Auth.Status().Static {
		t.Error("status should report a static session")
	}
}
