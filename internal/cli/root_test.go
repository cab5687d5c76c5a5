package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productivity/taskr/internal/appctx"
	"github.com/productivity/taskr/internal/config"
	"github.com/productivity/taskr/internal/credstore"
	"github.com/productivity/taskr/internal/hostutil"
	"github.com/productivity/taskr/internal/models"
	"github.com/productivity/taskr/internal/output"
	"github.com/productivity/taskr/internal/prompt"
	"github.com/productivity/taskr/internal/testserver"
)

type harness struct {
	t   *testing.T
	srv *testserver.Server
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := testserver.New()
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("TASKR_NO_KEYRING", "1")
	t.Setenv("TASKR_BASE_URL", srv.BaseURL())
	t.Setenv("TASKR_CREDENTIAL_BACKEND", "file")
	t.Chdir(t.TempDir())

	return &harness{t: t, srv: srv, dir: dir}
}

// exec runs taskr with args and returns the exit code, stdout and stderr.
func (h *harness) exec(stdin string, args ...string) (int, string, string) {
	h.t.Helper()
	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	code := run(context.Background(), root, args)
	return code, stdout.String(), stderr.String()
}

func (h *harness) login(username, password string) {
	h.t.Helper()
	code, out, errOut := h.exec(password+"\n", "auth", "login", "-u", username, "--password-stdin", "--json")
	require.Equal(h.t, 0, code, "login failed: %s %s", out, errOut)
}

func (h *harness) store() credstore.Store {
	return credstore.NewFileStore(config.GlobalConfigDir(), hostutil.Origin(h.srv.BaseURL()))
}

func decodeEnvelope(t *testing.T, out string) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	return env
}

func TestRunVersion(t *testing.T) {
	h := newHarness(t)
	code, out, _ := h.exec("", "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "taskr version")
}

func TestRunUnknownFlagIsUsageError(t *testing.T) {
	h := newHarness(t)
	code, out, _ := h.exec("", "tasks", "list", "--bogus", "--json")
	assert.Equal(t, output.ExitUsage, code)
	assert.Contains(t, out, "Unknown option: --bogus")
}

func TestProtectedCommandRequiresLogin(t *testing.T) {
	h := newHarness(t)
	code, out, _ := h.exec("", "tasks", "list", "--json")
	assert.Equal(t, output.ExitAuth, code)
	assert.Contains(t, out, output.CodeAuth)
}

func TestLoginAndListTasks(t *testing.T) {
	h := newHarness(t)
	alice := h.srv.AddUser("alice", "secret")
	h.srv.AddTask(alice, models.TaskInput{Title: "Buy milk", DueDate: "2026-01-02", Priority: "Low", Category: "Personal", State: "To-Do"})

	h.login("alice", "secret")

	code, out, _ := h.exec("", "tasks", "list", "--json")
	require.Equal(t, 0, code, out)
	env := decodeEnvelope(t, out)
	data := env["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "Buy milk", data[0].(map[string]any)["title"])
}

func TestWrongPasswordKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("alice", "secret")
	h.login("alice", "secret")

	code, out, _ := h.exec("nope\n", "auth", "login", "-u", "alice", "--password-stdin", "--json")
	assert.Equal(t, output.ExitAuth, code)
	assert.Contains(t, out, "Incorrect username or password.")

	_, ok := h.store().Get(credstore.KeyRefreshToken)
	assert.True(t, ok, "a rejected login leaves the stored session alone")
	assert.Zero(t, h.srv.RefreshCalls.Load())
}

func TestExpiredAccessTokenRefreshesTransparently(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("alice", "secret")
	h.login("alice", "secret")
	before, _ := h.store().Get(credstore.KeyAccessToken)

	h.srv.ExpireAccess()
	code, out, errOut := h.exec("", "tasks", "list", "--json")

	require.Equal(t, 0, code, out)
	assert.Empty(t, errOut)
	assert.Equal(t, int64(1), h.srv.RefreshCalls.Load())
	after, _ := h.store().Get(credstore.KeyAccessToken)
	assert.NotEqual(t, before, after, "refreshed access token is stored")
}

func TestParallelRequestsShareOneRefresh(t *testing.T) {
	h := newHarness(t)
	alice := h.srv.AddUser("alice", "secret")
	h.srv.AddUser("bob", "pw")
	h.srv.AddTask(alice, models.TaskInput{Title: "x", DueDate: "2026-01-02", Priority: "Low", Category: "Work", State: "To-Do"})
	h.login("alice", "secret")

	h.srv.ExpireAccess()
	// refresh fetches tasks and users concurrently.
	code, out, _ := h.exec("", "completion", "refresh", "--json")

	require.Equal(t, 0, code, out)
	assert.Equal(t, int64(1), h.srv.RefreshCalls.Load())
	data := decodeEnvelope(t, out)["data"].(map[string]any)
	assert.EqualValues(t, 1, data["tasks"])
	assert.EqualValues(t, 1, data["users"])
}

func TestRevokedRefreshEndsSession(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("alice", "secret")
	h.login("alice", "secret")

	h.srv.ExpireAccess()
	h.srv.RevokeRefresh()
	code, out, errOut := h.exec("", "tasks", "list", "--json")

	assert.Equal(t, output.ExitSessionExpired, code)
	assert.Contains(t, out, output.CodeSessionExpired)
	assert.Equal(t, 1, strings.Count(errOut, "Your session has expired."), "notice is printed once")
	assert.Empty(t, credstore.Snapshot(h.store()), "both tokens are removed")

	code, out, _ = h.exec("", "auth", "status", "--json")
	require.Equal(t, 0, code)
	status := decodeEnvelope(t, out)["data"].(map[string]any)
	assert.Equal(t, false, status["authenticated"])
	assert.Empty(t, status["stored_keys"], "the identity hint is cleared too")

	h.login("alice", "secret")
	code, _, _ = h.exec("", "tasks", "list", "--json")
	assert.Equal(t, 0, code, "logging in again restores access")
}

func TestReloginAfterExpiry(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("alice", "secret")

	cfg, err := config.Load(config.FlagOverrides{})
	require.NoError(t, err)
	var stderr bytes.Buffer
	app, err := appctx.NewApp(cfg, appctx.GlobalFlags{JSON: true}, &bytes.Buffer{}, &stderr)
	require.NoError(t, err)
	app.Attach()
	defer app.Close()

	require.NoError(t, app.Store.Set(credstore.KeyUsername, "alice"))
	app.Bus.EmitExpired()
	require.True(t, app.Gate.Expired())
	_, ok := app.Store.Get(credstore.KeyUsername)
	require.False(t, ok, "the listener clears the identity hint")

	var hint string
	form := func(username string) (prompt.Credentials, error) {
		hint = username
		return prompt.Credentials{Username: "alice", Password: "secret"}, nil
	}
	assert.True(t, reloginWith(context.Background(), app, form, &stderr))
	assert.False(t, app.Gate.Expired(), "login reopens the gate")
	assert.Contains(t, stderr.String(), "Logged in as alice")
	assert.Equal(t, "alice", hint, "the form is prefilled with the expired session's username")

	bad := func(string) (prompt.Credentials, error) {
		return prompt.Credentials{Username: "alice", Password: "wrong"}, nil
	}
	assert.False(t, reloginWith(context.Background(), app, bad, &stderr))
	assert.Contains(t, stderr.String(), "Login failed: Incorrect username or password.")

	canceled := func(string) (prompt.Credentials, error) { return prompt.Credentials{}, errors.New("user aborted") }
	assert.False(t, reloginWith(context.Background(), app, canceled, &stderr))
}

func TestNeedsApp(t *testing.T) {
	root := NewRootCmd()
	find := func(args ...string) *cobra.Command {
		cmd, _, err := root.Find(args)
		require.NoError(t, err)
		return cmd
	}

	assert.False(t, needsApp(find("version")))
	assert.False(t, needsApp(find("completion")))
	assert.False(t, needsApp(find("completion", "bash")))
	assert.True(t, needsApp(find("completion", "refresh")))
	assert.True(t, needsApp(find("tasks", "list")))
	assert.True(t, needsApp(find("config", "show")))
}

func TestTransformCobraError(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"flag needs an argument: --due", "--due requires a value"},
		{"unknown flag: --bogus", "Unknown option: --bogus"},
		{"unknown shorthand flag: 'z' in -z", "Unknown option: -z"},
		{`invalid argument "x" for "--page" flag: strconv.ParseInt: parsing "x": invalid syntax`, `invalid argument "x"`},
		{"requires at least 1 arg(s), only received 0", "ID(s) required"},
		{"accepts 1 arg(s), received 0", "ID required"},
		{"accepts 1 arg(s), received 3", "Too many arguments"},
		{`required flag(s) "username" not set`, "--username required"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := transformCobraError(errors.New(tt.in))
			e := output.AsError(err)
			assert.Equal(t, output.CodeUsage, e.Code)
			assert.Contains(t, e.Message, tt.want)
		})
	}

	plain := errors.New("something else")
	assert.Equal(t, plain, transformCobraError(plain))
}
