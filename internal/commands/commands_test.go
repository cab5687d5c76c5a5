package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productivity/taskr/internal/appctx"
	"github.com/productivity/taskr/internal/cli"
	"github.com/productivity/taskr/internal/commands"
	"github.com/productivity/taskr/internal/config"
	"github.com/productivity/taskr/internal/credstore"
	"github.com/productivity/taskr/internal/hostutil"
	"github.com/productivity/taskr/internal/models"
	"github.com/productivity/taskr/internal/testserver"
)

// syncBuffer is a bytes.Buffer safe for a command writing while a test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type env struct {
	t     *testing.T
	srv   *testserver.Server
	alice int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv := testserver.New()
	t.Cleanup(srv.Close)

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("TASKR_NO_KEYRING", "1")
	t.Setenv("TASKR_BASE_URL", srv.BaseURL())
	t.Setenv("TASKR_CREDENTIAL_BACKEND", "file")
	t.Chdir(t.TempDir())

	e := &env{t: t, srv: srv, alice: srv.AddUser("alice", "secret")}
	access, refresh := srv.Tokens(e.alice)
	store := e.store()
	require.NoError(t, store.Set(credstore.KeyAccessToken, access))
	require.NoError(t, store.Set(credstore.KeyRefreshToken, refresh))
	require.NoError(t, store.Set(credstore.KeyUsername, "alice"))
	require.NoError(t, store.Set(credstore.KeyUserID, strconv.FormatInt(e.alice, 10)))
	return e
}

func (e *env) store() credstore.Store {
	return credstore.NewFileStore(config.GlobalConfigDir(), hostutil.Origin(e.srv.BaseURL()))
}

// runCtx executes taskr with args against the test server.
func (e *env) runCtx(ctx context.Context, stdout, stderr io.Writer, stdin string, args ...string) error {
	e.t.Helper()
	root := cli.NewRootCmd()
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--json"))

	cmd, err := root.ExecuteContextC(ctx)
	if cmd != nil {
		if app := appctx.FromContext(cmd.Context()); app != nil {
			app.Close()
		}
	}
	return err
}

// run executes taskr and decodes the envelope's data into v.
func (e *env) run(v any, args ...string) error {
	e.t.Helper()
	var out bytes.Buffer
	if err := e.runCtx(context.Background(), &out, io.Discard, "", args...); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(e.t, json.Unmarshal(out.Bytes(), &resp), out.String())
	require.NoError(e.t, json.Unmarshal(resp.Data, v), string(resp.Data))
	return nil
}

func (e *env) task(title string) int64 {
	return e.srv.AddTask(e.alice, models.TaskInput{
		Title: title, DueDate: "2026-03-01", Priority: models.PriorityMedium,
		Category: models.CategoryWork, State: models.StateToDo,
	})
}

func TestCatalogMatchesRegisteredCommands(t *testing.T) {
	root := cli.NewRootCmd()
	root.InitDefaultHelpCmd()

	registered := make(map[string]bool)
	for _, cmd := range root.Commands() {
		registered[cmd.Name()] = true
	}
	catalog := make(map[string]bool)
	for _, name := range commands.CatalogCommandNames() {
		catalog[name] = true
	}

	var missingFromRegistered, missingFromCatalog []string
	for name := range catalog {
		if !registered[name] {
			missingFromRegistered = append(missingFromRegistered, name)
		}
	}
	for name := range registered {
		if !catalog[name] {
			missingFromCatalog = append(missingFromCatalog, name)
		}
	}
	sort.Strings(missingFromRegistered)
	sort.Strings(missingFromCatalog)

	assert.Empty(t, missingFromRegistered, "Commands in catalog but not registered: %v", missingFromRegistered)
	assert.Empty(t, missingFromCatalog, "Commands registered but not in catalog: %v", missingFromCatalog)
}

func TestTaskLifecycle(t *testing.T) {
	e := newEnv(t)

	var created models.Task
	require.NoError(t, e.run(&created, "tasks", "create", "Write report", "--due", "2026-05-01", "--priority", "high"))
	assert.Equal(t, "Write report", created.Title)
	assert.Equal(t, models.PriorityHigh, created.Priority)
	assert.Equal(t, models.StateToDo, created.State)

	var updated models.Task
	require.NoError(t, e.run(&updated, "tasks", "update", "#"+itoa(created.ID), "--description", "quarterly", "--category", "personal"))
	assert.Equal(t, "quarterly", updated.Description)
	assert.Equal(t, models.CategoryPersonal, updated.Category)
	assert.Equal(t, models.PriorityHigh, updated.Priority, "unset flags keep their values")

	var started []models.Task
	require.NoError(t, e.run(&started, "tasks", "start", itoa(created.ID)))
	require.Len(t, started, 1)
	assert.Equal(t, models.StateInProgress, started[0].State)

	var done []models.Task
	require.NoError(t, e.run(&done, "tasks", "done", itoa(created.ID)))
	assert.Equal(t, models.StateDone, done[0].State)

	var listed []models.Task
	require.NoError(t, e.run(&listed, "tasks", "list", "--state", "done"))
	require.Len(t, listed, 1)

	require.NoError(t, e.run(nil, "tasks", "delete", itoa(created.ID), "--force"))
	err := e.run(nil, "tasks", "show", itoa(created.ID))
	require.Error(t, err)
}

func TestTasksUpdateNeedsAChange(t *testing.T) {
	e := newEnv(t)
	id := e.task("x")
	err := e.run(nil, "tasks", "update", itoa(id))
	require.Error(t, err)
}

func TestTasksDeleteRequiresForceWithoutTerminal(t *testing.T) {
	e := newEnv(t)
	id := e.task("keep me")
	require.Error(t, e.run(nil, "tasks", "delete", itoa(id)))

	var task models.Task
	require.NoError(t, e.run(&task, "tasks", "show", itoa(id)))
}

func TestTasksListAllWalksPages(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < testserver.PageSize+3; i++ {
		e.task("task " + itoa(int64(i)))
	}

	var page []models.Task
	require.NoError(t, e.run(&page, "tasks", "list"))
	assert.Len(t, page, testserver.PageSize)

	var all []models.Task
	require.NoError(t, e.run(&all, "tasks", "list", "--all"))
	assert.Len(t, all, testserver.PageSize+3)
}

func TestTasksRejectsUnknownEnum(t *testing.T) {
	e := newEnv(t)
	err := e.run(nil, "tasks", "list", "--priority", "urgent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "priority")
}

func TestComments(t *testing.T) {
	e := newEnv(t)
	id := e.task("discuss")

	var c models.Comment
	require.NoError(t, e.run(&c, "comments", "add", itoa(id), "looks", "good"))
	assert.Equal(t, "looks good", c.Content)
	assert.Equal(t, "alice", c.AuthorUsername)

	require.NoError(t, e.run(&c, "comments", "edit", itoa(c.ID), "ship it"))
	assert.Equal(t, "ship it", c.Content)

	var list []models.Comment
	require.NoError(t, e.run(&list, "comments", "list", itoa(id)))
	require.Len(t, list, 1)

	require.NoError(t, e.run(nil, "comments", "delete", itoa(c.ID), "--force"))
	require.NoError(t, e.run(&list, "comments", "list", itoa(id)))
	assert.Empty(t, list)
}

func TestFollowAndFollowedTasks(t *testing.T) {
	e := newEnv(t)
	bob := e.srv.AddUser("bob", "pw")
	e.srv.AddTask(bob, models.TaskInput{Title: "bob's", DueDate: "2026-01-01", Priority: "Low", Category: "Work", State: "To-Do"})

	var users []models.User
	require.NoError(t, e.run(&users, "users", "search", "bo"))
	require.Len(t, users, 1)

	require.Error(t, e.run(nil, "users", "follow", itoa(e.alice)), "cannot follow yourself")
	require.NoError(t, e.run(nil, "users", "follow", itoa(bob)))

	var followed []models.Task
	require.NoError(t, e.run(&followed, "followed"))
	require.Len(t, followed, 1)
	assert.Equal(t, "bob", followed[0].Owner)

	var groups []struct {
		Owner string        `json:"owner"`
		Tasks []models.Task `json:"tasks"`
	}
	require.NoError(t, e.run(&groups, "followed", "--group"))
	require.Len(t, groups, 1)
	assert.Equal(t, "bob", groups[0].Owner)

	require.NoError(t, e.run(nil, "users", "unfollow", itoa(bob)))
	require.NoError(t, e.run(&followed, "followed"))
	assert.Empty(t, followed)
}

func TestProfile(t *testing.T) {
	e := newEnv(t)
	e.task("mine")

	var profile models.Profile
	require.NoError(t, e.run(&profile, "users", "profile"))
	assert.Equal(t, "alice", profile.User.Username)
	assert.Len(t, profile.Tasks, 1)
}

func TestNotificationsListAndRead(t *testing.T) {
	e := newEnv(t)
	first := e.srv.Notify(e.alice, "bob commented")
	e.srv.Notify(e.alice, "task due")

	var items []models.Notification
	require.NoError(t, e.run(&items, "notifications", "list", "--unread"))
	require.Len(t, items, 2)

	require.NoError(t, e.run(nil, "notifications", "read", itoa(first)))
	require.NoError(t, e.run(&items, "notifications", "list", "--unread"))
	require.Len(t, items, 1)
	assert.Equal(t, "task due", items[0].Message)
}

func TestNotificationsWatchResumesAfterRelogin(t *testing.T) {
	e := newEnv(t)
	e.srv.Notify(e.alice, "before expiry")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var stdout, stderr syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- e.runCtx(ctx, &stdout, &stderr, "", "notifications", "watch", "--interval", "50ms")
	}()

	require.Eventually(t, func() bool { return strings.Contains(stdout.String(), "before expiry") },
		5*time.Second, 20*time.Millisecond)

	e.srv.ExpireAccess()
	e.srv.RevokeRefresh()
	require.Eventually(t, func() bool { return strings.Contains(stderr.String(), "Your session has expired.") },
		5*time.Second, 20*time.Millisecond)
	assert.Empty(t, credstore.Snapshot(e.store()))

	// Log in from "another terminal".
	access, refresh := e.srv.Tokens(e.alice)
	require.NoError(t, e.store().Set(credstore.KeyRefreshToken, refresh))
	require.NoError(t, e.store().Set(credstore.KeyAccessToken, access))
	e.srv.Notify(e.alice, "after relogin")

	require.Eventually(t, func() bool { return strings.Contains(stdout.String(), "after relogin") },
		10*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, strings.Count(stdout.String(), "before expiry"), "nothing is shown twice")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestNotificationsWatchNoResume(t *testing.T) {
	e := newEnv(t)
	e.srv.ExpireAccess()
	e.srv.RevokeRefresh()

	err := e.runCtx(context.Background(), io.Discard, io.Discard, "", "notifications", "watch", "--no-resume", "--interval", "50ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session has expired")
}

func TestConfigSetShowUnset(t *testing.T) {
	e := newEnv(t)

	var set map[string]any
	require.NoError(t, e.run(&set, "config", "set", "page_size", "25"))
	assert.Equal(t, "local", set["scope"])

	var shown map[string]map[string]string
	require.NoError(t, e.run(&shown, "config", "show"))
	assert.Equal(t, "25", shown["page_size"]["value"])
	assert.Equal(t, "local", shown["page_size"]["source"])
	assert.Equal(t, "env", shown["base_url"]["source"])

	require.NoError(t, e.run(&set, "config", "set", "base_url", "https://evil.example.com"))
	assert.Equal(t, true, set["ignored"], "local files cannot redirect the server")

	require.Error(t, e.run(nil, "config", "set", "page_size", "lots"))

	var unset map[string]any
	require.NoError(t, e.run(&unset, "config", "unset", "page_size"))
	assert.Equal(t, true, unset["removed"])
}

func TestAuthTokenAndLogout(t *testing.T) {
	e := newEnv(t)

	var tok map[string]string
	require.NoError(t, e.run(&tok, "auth", "token"))
	stored, _ := e.store().Get(credstore.KeyAccessToken)
	assert.Equal(t, stored, tok["token"])

	require.NoError(t, e.run(nil, "auth", "logout"))
	assert.Empty(t, credstore.Snapshot(e.store()))
	require.Error(t, e.run(nil, "tasks", "list"))
}

func TestAuthRefreshRotatesTokens(t *testing.T) {
	e := newEnv(t)
	e.srv.RotateRefresh(true)
	before, _ := e.store().Get(credstore.KeyRefreshToken)

	require.NoError(t, e.run(nil, "auth", "refresh"))
	after, _ := e.store().Get(credstore.KeyRefreshToken)
	assert.NotEqual(t, before, after)
	assert.Equal(t, int64(1), e.srv.RefreshCalls.Load())
}

func TestRegister(t *testing.T) {
	e := newEnv(t)

	var out bytes.Buffer
	require.NoError(t, e.runCtx(context.Background(), &out, io.Discard, "pw\n",
		"auth", "register", "--username", "carol", "--email", "carol@example.com", "--password-stdin"))
	assert.Contains(t, out.String(), "carol")

	err := e.runCtx(context.Background(), io.Discard, io.Discard, "pw\n",
		"auth", "register", "--username", "carol", "--email", "c@example.com", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCompletionCacheFollowsListings(t *testing.T) {
	e := newEnv(t)
	e.task("cached task")
	e.srv.AddUser("bob", "pw")

	require.NoError(t, e.run(nil, "tasks", "list", "--all"))
	require.NoError(t, e.run(nil, "users"))

	var status map[string]any
	require.NoError(t, e.run(&status, "completion", "status"))
	assert.EqualValues(t, 1, status["tasks"])
	assert.EqualValues(t, 1, status["users"])
	assert.Equal(t, false, status["stale"])
}

func TestCommandsCatalogOutput(t *testing.T) {
	e := newEnv(t)
	var cats []commands.CommandCategory
	require.NoError(t, e.run(&cats, "commands"))
	assert.NotEmpty(t, cats)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
