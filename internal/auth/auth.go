// Package auth manages the signed-in session: login, logout, forced refresh
// and status. Token attachment and automatic refresh live in package api.
package auth

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/productivity/taskr/internal/api"
	"github.com/productivity/taskr/internal/credstore"
	"github.com/productivity/taskr/internal/models"
	"github.com/productivity/taskr/internal/output"
	"github.com/productivity/taskr/internal/session"
)

// EnvToken names the environment variable holding a static access token.
// A static session lives in memory only and cannot be refreshed.
const EnvToken = "TASKR_TOKEN"

// OpenStore opens the credential store for origin. When TASKR_TOKEN is set it
// returns a memory store seeded with that token and static=true.
func OpenStore(backend, dir, origin string) (store credstore.Store, static bool, err error) {
	if token := os.Getenv(EnvToken); token != "" {
		mem := credstore.NewMemoryStore()
		_ = mem.Set(credstore.KeyAccessToken, token)
		return mem, true, nil
	}
	store, err = credstore.Open(backend, dir, origin)
	return store, false, err
}

// Manager handles session lifecycle operations.
type Manager struct {
	client *api.Client
	store  credstore.Store
	guard  *session.Guard
	gate   *session.Gate
	static bool

	mu sync.Mutex
}

// NewManager creates a manager over the gateway's store. gate may be nil.
func NewManager(client *api.Client, guard *session.Guard, gate *session.Gate, static bool) *Manager {
	return &Manager{
		client: client,
		store:  client.Store(),
		guard:  guard,
		gate:   gate,
		static: static,
	}
}

// Login exchanges a username and password for a credential pair and stores
// it with the identity hint. A 401 from the login endpoint means the
// credentials were wrong; it never touches an existing session.
func (m *Manager) Login(ctx context.Context, username, password string) (*models.Tokens, error) {
	if username == "" || password == "" {
		return nil, output.ErrUsage("Username and password are required")
	}
	if m.static {
		return nil, output.ErrUsageHint("Logged in with "+EnvToken, "Unset "+EnvToken+" to log in interactively")
	}
	resp, err := m.client.Post(ctx, m.client.LoginPath(), map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		if output.StatusOf(err) == http.StatusUnauthorized {
			return nil, output.ErrCredentialsRejected(err)
		}
		return nil, err
	}

	var tokens models.Tokens
	if err := resp.UnmarshalData(&tokens); err != nil || tokens.Access == "" || tokens.Refresh == "" {
		return nil, output.ErrAPI(resp.StatusCode, "Login response did not include tokens")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	values := map[string]string{
		credstore.KeyAccessToken:  tokens.Access,
		credstore.KeyRefreshToken: tokens.Refresh,
		credstore.KeyUsername:     tokens.Username,
	}
	if tokens.UserID != 0 {
		values[credstore.KeyUserID] = strconv.FormatInt(tokens.UserID, 10)
	}
	for _, k := range credstore.AllKeys {
		// A field the server left out must not keep the previous user's value.
		if v := values[k]; v != "" {
			err = m.store.Set(k, v)
		} else {
			err = m.store.Remove(k)
		}
		if err != nil {
			return nil, err
		}
	}
	m.client.SetDefaultHeader("Authorization", "Bearer "+tokens.Access)
	if m.gate != nil {
		m.gate.Reopen()
	}
	return &tokens, nil
}

// Logout removes every stored credential and the default bearer header.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client.RemoveDefaultHeader("Authorization")
	return credstore.Clear(m.store)
}

// Refresh forces the refresh sub-protocol. A failure ends the session the
// same way a failed automatic refresh does.
func (m *Manager) Refresh(ctx context.Context) error {
	if m.static {
		return output.ErrUsage("A static " + EnvToken + " session cannot be refreshed")
	}
	_, err := m.client.Refresh(ctx)
	return err
}

// Token returns the stored access token.
func (m *Manager) Token() (string, error) {
	token, ok := m.store.Get(credstore.KeyAccessToken)
	if !ok || token == "" {
		return "", output.ErrAuth("Not authenticated")
	}
	return token, nil
}

// Identity is the display-only hint stored at login.
type Identity struct {
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// Identity returns the stored identity hint.
func (m *Manager) Identity() (Identity, bool) {
	var id Identity
	name, okName := m.store.Get(credstore.KeyUsername)
	raw, okID := m.store.Get(credstore.KeyUserID)
	if okName {
		id.Username = name
	}
	if okID {
		id.UserID, _ = strconv.ParseInt(raw, 10, 64)
	}
	return id, okName || okID
}

// Status describes the stored session.
type Status struct {
	Authenticated bool       `json:"authenticated"`
	State         string     `json:"state"`
	Username      string     `json:"username,omitempty"`
	UserID        int64      `json:"user_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Expired       bool       `json:"expired"`
	CanRefresh    bool       `json:"can_refresh"`
	Backend       string     `json:"backend"`
	StoredKeys    []string   `json:"stored_keys"`
	Static        bool       `json:"static,omitempty"`
}

// Status inspects the store without touching the network.
func (m *Manager) Status() Status {
	state := m.guard.State()
	st := Status{
		Authenticated: state != session.StateLoggedOut,
		State:         string(state),
		Backend:       credstore.Describe(m.store),
		Static:        m.static,
	}
	stored := credstore.Snapshot(m.store)
	st.StoredKeys = []string{}
	for _, k := range credstore.AllKeys {
		if _, ok := stored[k]; ok {
			st.StoredKeys = append(st.StoredKeys, k)
		}
	}
	if id, ok := m.Identity(); ok {
		st.Username = id.Username
		st.UserID = id.UserID
	}
	if exp, ok := m.guard.Expiry(); ok {
		st.ExpiresAt = &exp
		st.Expired = !exp.After(time.Now())
	}
	if refresh, ok := m.store.Get(credstore.KeyRefreshToken); ok && refresh != "" && !m.static {
		st.CanRefresh = true
	}
	return st
}

// RequireLogin returns an auth error unless the guard considers the user logged in.
func (m *Manager) RequireLogin() error {
	if m.gate != nil {
		if err := m.gate.Check(); err != nil {
			return err
		}
	}
	if !m.guard.LoggedIn() {
		return output.ErrAuth("Not logged in")
	}
	return nil
}
