// Package hostutil turns user-supplied hosts into API base URLs.
package hostutil

import (
	"net/url"
	"strings"
)

// DefaultAPIPath is appended to bare hosts; the service mounts its REST API there.
const DefaultAPIPath = "/api"

// Normalize converts a host string to a full URL.
// Loopback hosts default to http://, everything else to https://.
// Full URLs are returned without a trailing slash.
func Normalize(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		if IsLocalhost(host) {
			host = "http://" + host
		} else {
			host = "https://" + host
		}
	}
	return strings.TrimSuffix(host, "/")
}

// APIBase normalizes host and appends DefaultAPIPath when the URL has no path.
func APIBase(host string) string {
	base := Normalize(host)
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultAPIPath
	}
	return strings.TrimSuffix(u.String(), "/")
}

// Origin returns scheme://host[:port] for a base URL. Credentials are keyed by origin
// so that switching API paths on one server keeps the same session.
func Origin(base string) string {
	u, err := url.Parse(Normalize(base))
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(base, "/")
	}
	return u.Scheme + "://" + u.Host
}

// IsLocalhost reports whether host is localhost, a .localhost subdomain,
// 127.0.0.1 or [::1], with an optional port.
func IsLocalhost(host string) bool {
	h := host
	if strings.HasPrefix(h, "[") {
		if end := strings.Index(h, "]"); end != -1 {
			h = h[:end+1]
		}
	} else if idx := strings.LastIndex(h, ":"); idx != -1 {
		h = h[:idx]
	}

	switch {
	case h == "localhost", strings.HasSuffix(h, ".localhost"):
		return true
	case h == "127.0.0.1", h == "[::1]":
		return true
	}
	return false
}
