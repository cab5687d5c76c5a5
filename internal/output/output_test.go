package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Exit Codes Tests
// =============================================================================

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{CodeUsage, ExitUsage},
		{CodeNotFound, ExitNotFound},
		{CodeAuth, ExitAuth},
		{CodeForbidden, ExitForbidden},
		{CodeRateLimit, ExitRateLimit},
		{CodeNetwork, ExitNetwork},
		{CodeAPI, ExitAPI},
		{CodeSessionExpired, ExitSessionExpired},
		{"unknown_code", ExitAPI},
		{"", ExitAPI},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExitCodeFor(tt.code))
		})
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestErrorMessageWithHint(t *testing.T) {
	e := ErrAuth("Not authenticated")
	assert.Equal(t, "Not authenticated: "+LoginHint, e.Error())
	assert.Equal(t, ExitAuth, e.ExitCode())

	plain := ErrUsage("ID required")
	assert.Equal(t, "ID required", plain.Error())
}

func TestErrSessionExpiredWrapsCause(t *testing.T) {
	cause := ErrAPI(400, "Token is invalid or expired")
	e := ErrSessionExpired(cause)

	assert.Equal(t, CodeSessionExpired, e.Code)
	assert.True(t, errors.Is(e, cause))
	assert.True(t, IsSessionExpired(fmt.Errorf("wrapped: %w", e)))
	assert.False(t, IsSessionExpired(cause))
}

func TestErrCredentialsRejected(t *testing.T) {
	e := ErrCredentialsRejected(nil)
	assert.Equal(t, "Incorrect username or password.", e.Message)
	assert.Equal(t, CodeAuth, e.Code)
	assert.Empty(t, e.Hint)
}

func TestAsErrorWrapsPlainErrors(t *testing.T) {
	plain := errors.New("boom")
	e := AsError(plain)
	assert.Equal(t, CodeAPI, e.Code)
	assert.Equal(t, "boom", e.Message)
	assert.Same(t, plain, e.Cause)

	structured := ErrNotFound("Task", "42")
	assert.Same(t, structured, AsError(fmt.Errorf("ctx: %w", structured)))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, 404, StatusOf(ErrNotFound("Task", "1")))
	assert.Equal(t, 0, StatusOf(errors.New("x")))
}

// =============================================================================
// Writer Tests
// =============================================================================

func TestWriterJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatJSON, Writer: &buf})

	err := w.OK(map[string]any{"id": 42, "title": "Write report"},
		WithSummary("Task #42"),
		WithBreadcrumbs(Breadcrumb{Action: "show", Cmd: "taskr tasks show 42", Description: "Show task"}),
	)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "Task #42", resp.Summary)
	require.Len(t, resp.Breadcrumbs, 1)
	assert.Equal(t, "show", resp.Breadcrumbs[0].Action)
}

func TestWriterErrEnvelope(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatJSON, Writer: &buf})

	require.NoError(t, w.Err(ErrSessionExpired(nil)))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.False(t, resp.OK)
	assert.Equal(t, CodeSessionExpired, resp.Code)
	assert.Equal(t, LoginHint, resp.Hint)
}

func TestWriterQuietEmitsDataOnly(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatQuiet, Writer: &buf})

	require.NoError(t, w.OK([]map[string]any{{"id": 1}}, WithSummary("ignored")))
	assert.NotContains(t, buf.String(), "summary")
	assert.Contains(t, buf.String(), `"id": 1`)
}

func TestWriterIDsAndCount(t *testing.T) {
	data := json.RawMessage(`[{"id": 7, "title": "a"}, {"id": 9, "title": "b"}]`)

	var ids bytes.Buffer
	require.NoError(t, New(Options{Format: FormatIDs, Writer: &ids}).OK(data))
	assert.Equal(t, "7\n9\n", ids.String())

	var count bytes.Buffer
	require.NoError(t, New(Options{Format: FormatCount, Writer: &count}).OK(data))
	assert.Equal(t, "2\n", count.String())
}

func TestWriterYAML(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatYAML, Writer: &buf})

	require.NoError(t, w.OK(map[string]any{"title": "Write report"}))
	out := buf.String()
	assert.Contains(t, out, "ok: true")
	assert.Contains(t, out, "title: Write report")
}

func TestWriterJQFilter(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatQuiet, Writer: &buf, JQ: "[.[] | .title]"})

	data := []map[string]any{{"id": 1, "title": "a"}, {"id": 2, "title": "b"}}
	require.NoError(t, w.OK(data))

	var titles []string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &titles))
	assert.Equal(t, []string{"a", "b"}, titles)
}

func TestWriterJQInvalidExpression(t *testing.T) {
	w := New(Options{Format: FormatJSON, Writer: &bytes.Buffer{}, JQ: "[.["})

	err := w.OK(map[string]any{"id": 1})
	require.Error(t, err)
	assert.Equal(t, CodeUsage, AsError(err).Code)
}

func TestWriterStyledTable(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	w := New(Options{Format: FormatStyled, Writer: &buf})

	data := []map[string]any{
		{"id": 1, "title": "Write report", "state": "To-Do", "description": "long text"},
	}
	require.NoError(t, w.OK(data, WithSummary("1 task")))

	out := buf.String()
	assert.Contains(t, out, "1 task")
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "Write report")
	assert.NotContains(t, out, "long text")
}

func TestWriterStyledError(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	w := New(Options{Format: FormatStyled, Writer: &buf})

	require.NoError(t, w.Err(ErrAuth("Not authenticated")))
	assert.True(t, strings.HasPrefix(buf.String(), "Error: Not authenticated"))
	assert.Contains(t, buf.String(), "Hint: "+LoginHint)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"": FormatAuto, "json": FormatJSON, "yaml": FormatYAML, "table": FormatStyled,
		"quiet": FormatQuiet, "ids": FormatIDs, "count": FormatCount,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("xml")
	require.Error(t, err)
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "42", formatCell(float64(42)))
	assert.Equal(t, "1.5", formatCell(1.5))
	assert.Equal(t, "yes", formatCell(true))
	assert.Equal(t, "", formatCell(nil))
	assert.Equal(t, "alice", formatCell(map[string]any{"username": "alice"}))
	assert.Equal(t, "a, b", formatCell([]any{"a", "b"}))
}
