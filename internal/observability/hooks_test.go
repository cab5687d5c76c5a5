package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCLIHooks_SetLevel(t *testing.T) {
	h := NewCLIHooks(0, nil, nil)

	assert.Equal(t, 0, h.Level())

	h.SetLevel(2)
	assert.Equal(t, 2, h.Level())
}

func TestCLIHooks_Level0_Silent(t *testing.T) {
	var buf bytes.Buffer
	collector := NewSessionCollector()
	h := NewCLIHooks(0, collector, NewTraceWriterTo(&buf))

	ctx := context.Background()
	op := OperationInfo{Service: "Tasks", Operation: "List"}
	ctx = h.OnOperationStart(ctx, op)
	info := RequestInfo{Method: "GET", URL: "/api/tasks/tasks/?page=1"}
	ctx = h.OnRequestStart(ctx, info)
	h.OnRequestEnd(ctx, info, RequestResult{StatusCode: 200, Duration: 45 * time.Millisecond})
	h.OnOperationEnd(ctx, op, nil, 50*time.Millisecond)
	h.OnRefresh(ctx, RefreshInfo{Duration: time.Millisecond})

	assert.Equal(t, 0, buf.Len(), "expected no output at level 0")

	summary := collector.Summary()
	assert.Equal(t, 1, summary.TotalOperations)
	assert.Equal(t, 1, summary.TotalRequests)
	assert.Equal(t, 1, summary.Refreshes)
}

func TestCLIHooks_Level1_OperationsOnly(t *testing.T) {
	var buf bytes.Buffer
	h := NewCLIHooks(1, nil, NewTraceWriterTo(&buf))

	ctx := context.Background()
	op := OperationInfo{Service: "Tasks", Operation: "Update"}
	ctx = h.OnOperationStart(ctx, op)
	info := RequestInfo{Method: "PUT", URL: "/api/tasks/tasks/5/"}
	ctx = h.OnRequestStart(ctx, info)
	h.OnRequestEnd(ctx, info, RequestResult{StatusCode: 200})
	h.OnOperationEnd(ctx, op, nil, 50*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "Calling Tasks.Update")
	assert.Contains(t, out, "Completed Tasks.Update")
	assert.NotContains(t, out, "PUT", "unexpected request output at level 1")
}

func TestCLIHooks_Level2_Requests(t *testing.T) {
	var buf bytes.Buffer
	h := NewCLIHooks(2, nil, NewTraceWriterTo(&buf))

	ctx := context.Background()
	info := RequestInfo{Method: "GET", URL: "/api/notifications/"}
	h.OnRequestEnd(h.OnRequestStart(ctx, info), info, RequestResult{StatusCode: 401})

	replay := RequestInfo{Method: "GET", URL: "/api/notifications/", Replay: true}
	h.OnRequestEnd(h.OnRequestStart(ctx, replay), replay, RequestResult{StatusCode: 200})

	out := buf.String()
	assert.Contains(t, out, "-> GET /api/notifications/")
	assert.Contains(t, out, "<- 401")
	assert.Contains(t, out, "=> GET /api/notifications/", "replays are marked")
	assert.Contains(t, out, "<- 200")
}

func TestCLIHooks_OperationError(t *testing.T) {
	var buf bytes.Buffer
	collector := NewSessionCollector()
	h := NewCLIHooks(1, collector, NewTraceWriterTo(&buf))

	op := OperationInfo{Service: "Comments", Operation: "Delete"}
	h.OnOperationEnd(context.Background(), op, errors.New("permission denied"), time.Millisecond)

	assert.Contains(t, buf.String(), "Failed Comments.Delete: permission denied")
	assert.Equal(t, 1, collector.Summary().FailedOps)
}

func TestCLIHooks_RefreshAndExpiry(t *testing.T) {
	var buf bytes.Buffer
	collector := NewSessionCollector()
	h := NewCLIHooks(1, collector, NewTraceWriterTo(&buf))
	ctx := context.Background()

	h.OnRefresh(ctx, RefreshInfo{Error: errors.New("Token is invalid or expired")})
	h.OnRefresh(ctx, RefreshInfo{Joined: true, Error: errors.New("Token is invalid or expired")})
	h.OnSessionExpired(ctx)

	out := buf.String()
	assert.Contains(t, out, "Token refresh failed")
	assert.Contains(t, out, "Session expired")

	s := collector.Summary()
	assert.Equal(t, 1, s.Refreshes)
	assert.Equal(t, 1, s.FailedRefreshes)
	assert.Equal(t, 1, s.JoinedRefreshes)
	assert.True(t, s.SessionExpired)
}

func TestCLIHooks_NilCollectorAndWriter(t *testing.T) {
	h := NewCLIHooks(2, nil, nil)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		h.OnOperationEnd(h.OnOperationStart(ctx, OperationInfo{}), OperationInfo{}, nil, 0)
		h.OnRequestEnd(h.OnRequestStart(ctx, RequestInfo{}), RequestInfo{}, RequestResult{})
		h.OnRefresh(ctx, RefreshInfo{})
		h.OnSessionExpired(ctx)
	})
}

func TestNopHooks(t *testing.T) {
	var h Hooks = NopHooks{}
	ctx := context.Background()
	assert.Equal(t, ctx, h.OnRequestStart(ctx, RequestInfo{}))
}
