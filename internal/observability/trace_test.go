package observability

import (
	"bytes"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTraceWriter_Operation(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriterTo(&buf)

	w.WriteOperationStart(OperationInfo{Service: "Tasks", Operation: "List"})
	w.WriteOperationEnd(OperationInfo{Service: "Tasks", Operation: "List"}, nil, 234*time.Millisecond)

	assert.Contains(t, buf.String(), "Calling Tasks.List")
	assert.Contains(t, buf.String(), "Completed Tasks.List (234ms)")
}

func TestTraceWriter_RequestEndError(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriterTo(&buf)

	w.WriteRequestEnd(RequestInfo{}, RequestResult{Error: errors.New("connection refused")})
	assert.Contains(t, buf.String(), "<- ERROR: connection refused")
}

func TestTraceWriter_Timestamps(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriterTo(&buf)

	w.WriteSessionExpired()
	assert.Regexp(t, regexp.MustCompile(`^\[\d+\.\d{3}s\] Session expired\n$`), buf.String())
}

func TestTraceWriter_RedactsTokens(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriterTo(&buf)

	w.WriteRequestStart(RequestInfo{Method: "GET", URL: "https://x.test/api/?refresh=secret-value&page=2"})
	out := buf.String()
	assert.NotContains(t, out, "secret-value")
	assert.Contains(t, out, "page=2")
}

func TestScrubURL(t *testing.T) {
	assert.Equal(t, "/api/tasks/tasks/?page=1", scrubURL("/api/tasks/tasks/?page=1"))
	assert.Equal(t, "[unparseable URL]", scrubURL("://bad url"))
	assert.Contains(t, scrubURL("/x?Token=abc"), "REDACTED")
}
