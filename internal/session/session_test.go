package session

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productivity/taskr/internal/credstore"
	"github.com/productivity/taskr/internal/output"
)

// =============================================================================
// Bus Tests
// =============================================================================

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []int
	bus.Subscribe(func(Event) { order = append(order, 1) })
	bus.Subscribe(func(Event) { order = append(order, 2) })
	bus.Subscribe(func(Event) { order = append(order, 3) })

	assert.Equal(t, 3, bus.EmitExpired())
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	unsubscribe := bus.Subscribe(func(Event) { calls++ })

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, bus.count())
	assert.Equal(t, 0, bus.EmitExpired())
	assert.Equal(t, 0, calls)
}

func TestBusLateSubscriberMissesPastEvents(t *testing.T) {
	bus := NewBus()
	bus.EmitExpired()

	calls := 0
	bus.Subscribe(func(Event) { calls++ })
	assert.Equal(t, 0, calls)
}

func TestBusListenerMayUnsubscribeItself(t *testing.T) {
	bus := NewBus()
	var unsubscribe func()
	calls := 0
	unsubscribe = bus.Subscribe(func(Event) {
		calls++
		unsubscribe()
	})

	bus.EmitExpired()
	bus.EmitExpired()
	assert.Equal(t, 1, calls)
}

func TestBusEmitStampsTime(t *testing.T) {
	bus := NewBus()
	var got Event
	bus.Subscribe(func(e Event) { got = e })
	bus.EmitExpired()

	assert.Equal(t, Expired, got.Name)
	assert.False(t, got.At.IsZero())
}

func TestBusConcurrentSubscribeAndEmit(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(func(Event) {})
			unsub()
		}()
		go func() {
			defer wg.Done()
			bus.EmitExpired()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, bus.count())
}

// =============================================================================
// Gate Tests
// =============================================================================

func TestGateCloseAndReopen(t *testing.T) {
	g := NewGate()
	require.NoError(t, g.Check())

	done := g.Done()
	assert.True(t, g.Close())
	assert.False(t, g.Close(), "second close is a no-op")
	assert.True(t, g.Expired())
	assert.True(t, output.IsSessionExpired(g.Check()))

	select {
	case <-done:
	default:
		t.Fatal("Done channel should be closed")
	}

	g.Reopen()
	assert.False(t, g.Expired())
	select {
	case <-g.Done():
		t.Fatal("reopened gate must hand out a fresh channel")
	default:
	}
}

// =============================================================================
// Listener Tests
// =============================================================================

func TestListenerClearsCredentialsAndNotifiesOnce(t *testing.T) {
	store := credstore.NewMemoryStore()
	for _, k := range credstore.AllKeys {
		require.NoError(t, store.Set(k, "x"))
	}
	require.NoError(t, store.Set(credstore.KeyUsername, "alice"))

	var notice bytes.Buffer
	redirects := 0
	var redirectUser string
	l := &Listener{
		Gate:   NewGate(),
		Store:  store,
		Notice: &notice,
		Redirect: func(username string) {
			redirects++
			redirectUser = username
		},
	}

	bus := NewBus()
	detach := l.Attach(bus)
	defer detach()

	bus.EmitExpired()
	bus.EmitExpired()

	assert.Empty(t, credstore.Snapshot(store), "identity hint must go too")
	assert.True(t, l.Gate.Expired())
	assert.Equal(t, 1, redirects)
	assert.Equal(t, "alice", redirectUser, "the username is read before the store is cleared")
	assert.Equal(t, 1, bytes.Count(notice.Bytes(), []byte("session has expired")))
}

func TestListenerIgnoresOtherEvents(t *testing.T) {
	store := credstore.NewMemoryStore()
	require.NoError(t, store.Set(credstore.KeyAccessToken, "A"))
	l := &Listener{Gate: NewGate(), Store: store}

	l.Handle(Event{Name: "somethingElse"})
	assert.False(t, l.Gate.Expired())
	_, ok := store.Get(credstore.KeyAccessToken)
	assert.True(t, ok)
}

func TestListenerDetach(t *testing.T) {
	bus := NewBus()
	l := &Listener{Gate: NewGate()}
	detach := l.Attach(bus)
	detach()

	bus.EmitExpired()
	assert.False(t, l.Gate.Expired())
}

// =============================================================================
// Guard Tests
// =============================================================================

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signedToken(t, jwt.MapClaims{"exp": exp.Unix(), "user_id": 7})

	got, err := TokenExpiry(tok)
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))

	_, err = TokenExpiry(signedToken(t, jwt.MapClaims{"user_id": 7}))
	assert.ErrorIs(t, err, ErrNoExpiry)

	_, err = TokenExpiry("not-a-jwt")
	assert.Error(t, err)
}

func TestGuardStates(t *testing.T) {
	now := time.Now()
	fresh := signedToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
	expired := signedToken(t, jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()})

	tests := []struct {
		name    string
		mode    string
		access  string
		refresh string
		want    State
	}{
		{"no token", ModeExpiry, "", "", StateLoggedOut},
		{"fresh token", ModeExpiry, fresh, "", StateActive},
		{"expired with refresh", ModeExpiry, expired, "R", StateStale},
		{"expired without refresh", ModeExpiry, expired, "", StateLoggedOut},
		{"opaque with refresh", ModeExpiry, "opaque", "R", StateStale},
		{"presence ignores expiry", ModePresence, expired, "", StateActive},
		{"presence opaque", ModePresence, "opaque", "", StateActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := credstore.NewMemoryStore()
			if tt.access != "" {
				require.NoError(t, store.Set(credstore.KeyAccessToken, tt.access))
			}
			if tt.refresh != "" {
				require.NoError(t, store.Set(credstore.KeyRefreshToken, tt.refresh))
			}
			g := &Guard{Store: store, Mode: tt.mode, Now: func() time.Time { return now }}
			assert.Equal(t, tt.want, g.State())
			assert.Equal(t, tt.want != StateLoggedOut, g.LoggedIn())
		})
	}
}

func TestGuardSkew(t *testing.T) {
	now := time.Now()
	store := credstore.NewMemoryStore()
	require.NoError(t, store.Set(credstore.KeyAccessToken,
		signedToken(t, jwt.MapClaims{"exp": now.Add(30 * time.Second).Unix()})))

	g := &Guard{Store: store, Mode: ModeExpiry, Now: func() time.Time { return now }}
	assert.Equal(t, StateActive, g.State())

	g.Skew = time.Minute
	assert.Equal(t, StateLoggedOut, g.State())
}

// =============================================================================
// WaitForLogin Tests
// =============================================================================

func TestWaitForLoginReturnsImmediatelyWhenLoggedIn(t *testing.T) {
	store := credstore.NewMemoryStore()
	require.NoError(t, store.Set(credstore.KeyAccessToken, "A"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, WaitForLogin(ctx, store, time.Hour, nil))
}

func TestWaitForLoginSeesFileWrite(t *testing.T) {
	dir := t.TempDir()
	store := credstore.NewFileStore(dir, "https://tasks.example.com")
	writer := credstore.NewFileStore(dir, "https://tasks.example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = writer.Set(credstore.KeyAccessToken, "A")
	}()

	// Long poll interval: only the file event (or the deadline) can wake us.
	require.NoError(t, WaitForLogin(ctx, store, 3*time.Second, nil))
}

func TestWaitForLoginPollsMemoryStore(t *testing.T) {
	store := credstore.NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = store.Set(credstore.KeyAccessToken, "A")
	}()
	require.NoError(t, WaitForLogin(ctx, store, 10*time.Millisecond, nil))
}

func TestWaitForLoginHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := WaitForLogin(ctx, credstore.NewMemoryStore(), 10*time.Millisecond, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
