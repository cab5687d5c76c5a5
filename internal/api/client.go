// Package api is the authenticated request gateway. Every backend call goes
// through Client, which attaches the bearer token on the way out and, on the
// way back, recovers from an expired access token by refreshing it once.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/productivity/taskr/internal/credstore"
	"github.com/productivity/taskr/internal/observability"
	"github.com/productivity/taskr/internal/output"
	"github.com/productivity/taskr/internal/session"
)

const (
	DefaultLoginPath   = "/token/"
	DefaultRefreshPath = "/token/refresh/"
	DefaultTimeout     = 30 * time.Second
)

// Config controls the gateway.
type Config struct {
	// BaseURL is the API root, e.g. https://tasks.example.com/api.
	BaseURL     string
	LoginPath   string
	RefreshPath string
	Timeout     time.Duration
	// Coalesce shares one in-flight refresh among concurrent 401s.
	Coalesce bool
	// Transport is the underlying round tripper. Nil uses a pooled default.
	Transport http.RoundTripper
}

// Option configures a Client.
type Option func(*Client)

// WithHooks sets observability hooks.
func WithHooks(h observability.Hooks) Option {
	return func(c *Client) {
		if h != nil {
			c.hooks = h
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBus sets the bus the session-expired signal is emitted on.
func WithBus(b *session.Bus) Option {
	return func(c *Client) {
		if b != nil {
			c.bus = b
		}
	}
}

// Client is the single shared HTTP client all REST calls go through.
type Client struct {
	cfg    Config
	store  credstore.Store
	bus    *session.Bus
	hooks  observability.Hooks
	logger *slog.Logger

	http *http.Client // outbound and inbound stages
	bare *http.Client // refresh only; bypasses both stages

	headersMu sync.RWMutex
	headers   http.Header

	refreshes singleflight.Group
}

// Response wraps an API response.
type Response struct {
	Data       json.RawMessage
	StatusCode int
	Headers    http.Header
}

// UnmarshalData unmarshals the response data into the given value.
func (r *Response) UnmarshalData(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// NewClient creates the gateway over store.
func NewClient(cfg Config, store credstore.Store, opts ...Option) *Client {
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = DefaultRefreshPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	base := cfg.Transport
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	c := &Client{
		cfg:     cfg,
		store:   store,
		bus:     session.NewBus(),
		hooks:   observability.NopHooks{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}

	plain := &headerTransport{base: base}
	c.bare = &http.Client{Timeout: cfg.Timeout, Transport: plain}
	c.http = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &bearerTransport{base: plain, store: store, defaults: c.defaultHeaders},
	}
	return c
}

// Store returns the credential store the gateway reads from.
func (c *Client) Store() credstore.Store { return c.store }

// Bus returns the session bus.
func (c *Client) Bus() *session.Bus { return c.bus }

// LoginPath returns the credential-issuance path.
func (c *Client) LoginPath() string { return c.cfg.LoginPath }

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// SetDefaultHeader sets a header sent on every gateway request unless the
// request sets it itself. The stored access token still wins for Authorization.
func (c *Client) SetDefaultHeader(key, value string) {
	c.headersMu.Lock()
	defer c.headersMu.Unlock()
	c.headers.Set(key, value)
}

// DefaultHeader returns a default header value.
func (c *Client) DefaultHeader(key string) string {
	c.headersMu.RLock()
	defer c.headersMu.RUnlock()
	return c.headers.Get(key)
}

// RemoveDefaultHeader deletes a default header.
func (c *Client) RemoveDefaultHeader(key string) {
	c.headersMu.Lock()
	defer c.headersMu.Unlock()
	c.headers.Del(key)
}

func (c *Client) defaultHeaders() http.Header {
	c.headersMu.RLock()
	defer c.headersMu.RUnlock()
	return c.headers.Clone()
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, path, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Do sends a request through the gateway. path is relative to the base URL
// and may carry a query string.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		b, err := jsonBody(body)
		if err != nil {
			return nil, err
		}
		payload = b
	}
	return c.send(ctx, attempt{req: request{method: method, path: path, body: payload}})
}

// Track wraps fn in operation hooks.
func (c *Client) Track(ctx context.Context, op observability.OperationInfo, fn func(context.Context) error) error {
	start := time.Now()
	ctx = c.hooks.OnOperationStart(ctx, op)
	err := fn(ctx)
	c.hooks.OnOperationEnd(ctx, op, err, time.Since(start))
	return err
}

// request is the immutable description of a call; its body is kept as bytes
// so it can be re-sent.
type request struct {
	method string
	path   string
	body   []byte
}

// attempt threads a request through the retry path. It is passed by value:
// replay returns a new record instead of flipping a flag in place.
type attempt struct {
	req     request
	retried bool
	// token is the access token the store held when this attempt was sent.
	token string
}

func (a attempt) replay() attempt {
	a.retried = true
	a.token = ""
	return a
}

func (c *Client) send(ctx context.Context, a attempt) (*Response, error) {
	a.token, _ = c.store.Get(credstore.KeyAccessToken)
	resp, err := c.roundTrip(ctx, c.http, a.req, a.retried)
	if err != nil {
		return nil, err
	}
	return c.inbound(ctx, a, resp)
}

// inbound is the response stage.
func (c *Client) inbound(ctx context.Context, a attempt, resp *Response) (*Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	// A 401 from the login endpoint is a credential rejection, never an expiry.
	if c.isLoginPath(a.req.path) {
		return nil, statusError(a.req, resp)
	}

	if resp.StatusCode == http.StatusUnauthorized && !a.retried {
		next := a.replay()
		if err := c.recoverSession(ctx, a.token); err != nil {
			return nil, err
		}
		c.logger.Debug("replaying request after refresh", "method", a.req.method, "path", stripQuery(a.req.path))
		return c.send(ctx, next)
	}

	return nil, statusError(a.req, resp)
}

func (c *Client) isLoginPath(path string) bool {
	return strings.HasSuffix(stripQuery(path), c.cfg.LoginPath)
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.cfg.BaseURL + path
}

// roundTrip performs one HTTP exchange with hc and reads the whole body.
// Any status is a successful round trip; only transport failures are errors.
func (c *Client) roundTrip(ctx context.Context, hc *http.Client, r request, replay bool) (*Response, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.url(r.path), body)
	if err != nil {
		return nil, output.ErrUsage(fmt.Sprintf("Invalid request: %v", err))
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	info := observability.RequestInfo{
		Method:    r.method,
		URL:       req.URL.String(),
		RequestID: requestID,
		Replay:    replay,
	}
	ctx = c.hooks.OnRequestStart(ctx, info)
	start := time.Now()

	resp, err := hc.Do(req)
	if err != nil {
		c.hooks.OnRequestEnd(ctx, info, observability.RequestResult{Duration: time.Since(start), Error: err})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, output.ErrNetwork(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	c.hooks.OnRequestEnd(ctx, info, observability.RequestResult{
		StatusCode: resp.StatusCode,
		Duration:   duration,
		Error:      err,
	})
	if err != nil {
		return nil, output.ErrNetwork(fmt.Errorf("failed to read response: %w", err))
	}

	c.logger.Debug("http",
		"method", r.method,
		"path", stripQuery(r.path),
		"status", resp.StatusCode,
		"replay", replay,
		"request_id", requestID,
		"duration", duration,
	)

	return &Response{Data: data, StatusCode: resp.StatusCode, Headers: resp.Header}, nil
}

func jsonBody(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}
	return b, nil
}
