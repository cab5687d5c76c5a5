package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/productivity/taskr/internal/credstore"
)

// Login check modes.
const (
	// ModePresence treats any stored access token as logged in.
	ModePresence = "presence"
	// ModeExpiry additionally requires the token's exp claim to lie in the future.
	ModeExpiry = "expiry"
)

// State summarizes the stored session.
type State string

const (
	StateLoggedOut State = "logged_out"
	StateActive    State = "active"
	// StateStale means the access token is expired or unreadable but a refresh
	// token is available, so the gateway can still recover on first use.
	StateStale State = "stale"
)

// ErrNoExpiry is returned by TokenExpiry when the token carries no exp claim.
var ErrNoExpiry = errors.New("token has no expiry claim")

// TokenExpiry decodes the exp claim of a JWT without verifying its signature.
// Signature verification is the server's job; the client only needs a hint.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// Guard answers whether a user is logged in, for routing protected commands.
type Guard struct {
	Store credstore.Store
	Mode  string
	// Skew is subtracted from the expiry so a token about to lapse counts as expired.
	Skew time.Duration
	Now  func() time.Time
}

func (g *Guard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// State inspects the store and classifies the session.
func (g *Guard) State() State {
	access, ok := g.Store.Get(credstore.KeyAccessToken)
	if !ok || access == "" {
		return StateLoggedOut
	}
	if g.Mode == ModePresence {
		return StateActive
	}

	exp, err := TokenExpiry(access)
	switch {
	case errors.Is(err, ErrNoExpiry):
		return StateActive
	case err == nil && exp.After(g.now().Add(g.Skew)):
		return StateActive
	}

	if refresh, ok := g.Store.Get(credstore.KeyRefreshToken); ok && refresh != "" {
		return StateStale
	}
	return StateLoggedOut
}

// LoggedIn reports whether protected commands may proceed without a login.
// A stale session counts: the gateway refreshes it on the first 401.
func (g *Guard) LoggedIn() bool {
	return g.State() != StateLoggedOut
}

// Expiry returns the stored access token's expiry, if it can be decoded.
func (g *Guard) Expiry() (time.Time, bool) {
	access, ok := g.Store.Get(credstore.KeyAccessToken)
	if !ok {
		return time.Time{}, false
	}
	exp, err := TokenExpiry(access)
	if err != nil {
		return time.Time{}, false
	}
	return exp, true
}
