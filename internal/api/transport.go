package api

import (
	"net/http"

	"github.com/productivity/taskr/internal/credstore"
	"github.com/productivity/taskr/internal/version"
)

// headerTransport stamps the headers every request carries, authenticated or not.
type headerTransport struct {
	base http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", version.UserAgent())
	}
	if r.Header.Get("Accept") == "" {
		r.Header.Set("Accept", "application/json")
	}
	if r.Body != nil && r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", "application/json")
	}
	return t.base.RoundTrip(r)
}

// bearerTransport is the outbound stage: it applies the client's default
// headers, then attaches the stored access token when there is one. It never
// fails a request on its own; without a token the request goes out
// unauthenticated and the server decides.
type bearerTransport struct {
	base     http.RoundTripper
	store    credstore.Store
	defaults func() http.Header
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, vs := range t.defaults() {
		if _, set := r.Header[k]; !set {
			r.Header[k] = append([]string(nil), vs...)
		}
	}
	if token, ok := t.store.Get(credstore.KeyAccessToken); ok && token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return t.base.RoundTrip(r)
}
