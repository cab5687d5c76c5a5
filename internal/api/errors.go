package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/productivity/taskr/internal/output"
)

// HTTPError is the raw rejection from the server. It is attached as the
// Cause of the *output.Error the gateway returns, so callers can inspect the
// status and body unchanged.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
}

// statusError maps a non-2xx response onto the output error taxonomy.
func statusError(r request, resp *Response) *output.Error {
	herr := &HTTPError{
		Method:     r.method,
		Path:       r.path,
		StatusCode: resp.StatusCode,
		Body:       resp.Data,
		Detail:     detailOf(resp.Data),
	}

	var e *output.Error
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		e = output.ErrAuth(orDefault(herr.Detail, "Authentication failed"))
	case resp.StatusCode == http.StatusForbidden:
		e = output.ErrForbidden(orDefault(herr.Detail, "Access denied"))
	case resp.StatusCode == http.StatusNotFound:
		e = output.ErrNotFound("Resource", stripQuery(r.path))
	case resp.StatusCode == http.StatusTooManyRequests:
		e = output.ErrRateLimit(parseRetryAfter(resp.Headers.Get("Retry-After")))
	case resp.StatusCode >= 500:
		e = output.ErrAPI(resp.StatusCode, fmt.Sprintf("Server error (%d)", resp.StatusCode))
		e.Retryable = true
	default:
		e = output.ErrAPI(resp.StatusCode,
			orDefault(herr.Detail, fmt.Sprintf("Request failed (HTTP %d)", resp.StatusCode)))
	}
	e.HTTPStatus = resp.StatusCode
	e.Cause = herr
	return e
}

// detailOf extracts a human message from a REST error body. It understands
// {"detail": "..."}, field maps like {"username": ["taken"]} and plain lists.
func detailOf(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		if raw, ok := obj["detail"]; ok {
			var s string
			if json.Unmarshal(raw, &s) == nil {
				return s
			}
		}
		fields := make([]string, 0, len(obj))
		for k := range obj {
			fields = append(fields, k)
		}
		sort.Strings(fields)
		var parts []string
		for _, k := range fields {
			if msg := joinMessages(obj[k]); msg != "" {
				parts = append(parts, k+": "+msg)
			}
		}
		return strings.Join(parts, "; ")
	}

	return joinMessages(body)
}

func joinMessages(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return strings.Join(list, " ")
	}
	return ""
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

// parseRetryAfter parses the Retry-After header value.
func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return seconds
	}
	return 0
}
