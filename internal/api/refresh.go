package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/productivity/taskr/internal/credstore"
	"github.com/productivity/taskr/internal/observability"
	"github.com/productivity/taskr/internal/output"
)

// ErrNoRefreshToken is the cause of a session expiry when no refresh token is stored.
var ErrNoRefreshToken = errors.New("no refresh token stored")

// ErrSessionEnded is the cause when the session was ended by a concurrent
// request while this one was in flight.
var ErrSessionEnded = errors.New("session ended by a concurrent request")

// absentKey keys the shared flight for callers that have no refresh token,
// so concurrent 401s without one still produce a single expiry.
const absentKey = "\x00absent"

// recoverSession runs the refresh sub-protocol for an attempt that was sent
// with sentToken and came back 401. A nil error means the caller may replay.
func (c *Client) recoverSession(ctx context.Context, sentToken string) error {
	if c.cfg.Coalesce && sentToken != "" {
		current, ok := c.store.Get(credstore.KeyAccessToken)
		switch {
		case !ok || current == "":
			// Another request already expired the session and emitted the signal.
			return output.ErrSessionExpired(ErrSessionEnded)
		case current != sentToken:
			// Another request already refreshed while this one was in flight.
			c.logger.Debug("access token replaced concurrently, skipping refresh")
			return nil
		}
	}
	_, err := c.refresh(ctx)
	return err
}

// Refresh forces the refresh sub-protocol and returns the new access token.
// On failure the session is expired exactly as for a failed automatic refresh.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	return c.refresh(ctx)
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	refreshToken, _ := c.store.Get(credstore.KeyRefreshToken)
	if !c.cfg.Coalesce {
		return c.refreshOnce(ctx, refreshToken)
	}

	key := refreshToken
	if key == "" {
		key = absentKey
	}

	// The flight outlives any single caller: a caller that gives up returns
	// at once while the refresh completes for the others.
	shared := context.WithoutCancel(ctx)
	led := false
	ch := c.refreshes.DoChan(key, func() (any, error) {
		led = true
		return c.refreshOnce(shared, refreshToken)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if !led {
			c.hooks.OnRefresh(ctx, observability.RefreshInfo{Joined: true, Error: res.Err})
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// refreshOnce performs one refresh and applies its outcome: on success the
// store and default header are updated; on failure both tokens are removed
// and the session-expired signal is emitted once.
func (c *Client) refreshOnce(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", c.expire(ctx, ErrNoRefreshToken)
	}

	start := time.Now()
	access, rotated, err := c.postRefresh(ctx, refreshToken)
	c.hooks.OnRefresh(ctx, observability.RefreshInfo{Duration: time.Since(start), Error: err})
	if err != nil {
		// The caller gave up; the session may still be fine.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", c.expire(ctx, err)
	}

	if err := c.store.Set(credstore.KeyAccessToken, access); err != nil {
		// A stale token left in the store would override the default header.
		c.logger.Warn("storing refreshed access token", "error", err)
		_ = c.store.Remove(credstore.KeyAccessToken)
	}
	if rotated != "" {
		if err := c.store.Set(credstore.KeyRefreshToken, rotated); err != nil {
			c.logger.Warn("storing rotated refresh token", "error", err)
		}
	}
	c.SetDefaultHeader("Authorization", "Bearer "+access)
	c.logger.Debug("access token refreshed")
	return access, nil
}

// postRefresh calls the refresh endpoint over the bare client.
func (c *Client) postRefresh(ctx context.Context, refreshToken string) (access, rotated string, err error) {
	body, err := jsonBody(map[string]string{"refresh": refreshToken})
	if err != nil {
		return "", "", err
	}
	req := request{method: http.MethodPost, path: c.cfg.RefreshPath, body: body}

	resp, err := c.roundTrip(ctx, c.bare, req, false)
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", statusError(req, resp)
	}

	var out struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := resp.UnmarshalData(&out); err != nil || out.Access == "" {
		return "", "", output.ErrAPI(resp.StatusCode, "Refresh response did not include an access token")
	}
	return out.Access, out.Refresh, nil
}

// expire is the unrecoverable path.
func (c *Client) expire(ctx context.Context, cause error) error {
	for _, key := range []string{credstore.KeyAccessToken, credstore.KeyRefreshToken} {
		if err := c.store.Remove(key); err != nil {
			c.logger.Warn("removing credential after failed refresh", "key", key, "error", err)
		}
	}
	c.RemoveDefaultHeader("Authorization")

	c.logger.Info("session expired", "cause", cause)
	c.hooks.OnSessionExpired(ctx)
	c.bus.EmitExpired()
	return output.ErrSessionExpired(cause)
}
