// Package observability provides metrics collection and tracing for CLI operations.
package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// RequestMetrics holds timing and status information for a single HTTP request.
type RequestMetrics struct {
	Method     string
	URL        string
	Replay     bool
	StatusCode int
	Duration   time.Duration
	Error      error
}

// OperationMetrics holds timing information for a semantic operation.
type OperationMetrics struct {
	Service   string
	Operation string
	Duration  time.Duration
	Error     error
}

// SessionMetrics aggregates metrics for an entire CLI session.
type SessionMetrics struct {
	StartTime       time.Time
	EndTime         time.Time
	TotalRequests   int
	Unauthorized    int
	Replays         int
	TotalOperations int
	FailedOps       int
	Refreshes       int
	FailedRefreshes int
	JoinedRefreshes int
	SessionExpired  bool
	TotalLatency    time.Duration
}

// String renders a compact one-line summary.
func (m SessionMetrics) String() string {
	parts := []string{fmt.Sprintf("%d requests", m.TotalRequests)}
	if m.Refreshes > 0 {
		parts = append(parts, fmt.Sprintf("%d refreshes", m.Refreshes))
	}
	if m.JoinedRefreshes > 0 {
		parts = append(parts, fmt.Sprintf("%d joined", m.JoinedRefreshes))
	}
	if m.Replays > 0 {
		parts = append(parts, fmt.Sprintf("%d replayed", m.Replays))
	}
	if m.SessionExpired {
		parts = append(parts, "session expired")
	}
	parts = append(parts, fmt.Sprintf("%dms", m.TotalLatency.Milliseconds()))
	return strings.Join(parts, ", ")
}

// SessionCollector accumulates metrics across a CLI session.
// It is safe for concurrent use and uses counters instead of unbounded slices.
type SessionCollector struct {
	mu sync.Mutex

	startTime       time.Time
	totalRequests   int
	unauthorized    int
	replays         int
	totalOperations int
	failedOps       int
	refreshes       int
	failedRefreshes int
	joinedRefreshes int
	sessionExpired  bool
	totalLatency    time.Duration
}

// NewSessionCollector creates a new SessionCollector.
func NewSessionCollector() *SessionCollector {
	return &SessionCollector{
		startTime: time.Now(),
	}
}

// RecordRequest records metrics for an HTTP request.
func (c *SessionCollector) RecordRequest(m RequestMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.totalLatency += m.Duration
	if m.StatusCode == 401 {
		c.unauthorized++
	}
	if m.Replay {
		c.replays++
	}
}

// RecordOperation records metrics for a semantic operation.
func (c *SessionCollector) RecordOperation(m OperationMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalOperations++
	if m.Error != nil {
		c.failedOps++
	}
}

// RecordRefresh records a refresh attempt. Joined attempts are counted
// separately: they share the leader's network call.
func (c *SessionCollector) RecordRefresh(info RefreshInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if info.Joined {
		c.joinedRefreshes++
		return
	}
	c.refreshes++
	if info.Error != nil {
		c.failedRefreshes++
	}
}

// RecordSessionExpired notes that the session ended.
func (c *SessionCollector) RecordSessionExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionExpired = true
}

// Summary returns aggregated metrics for the session.
func (c *SessionCollector) Summary() SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return SessionMetrics{
		StartTime:       c.startTime,
		EndTime:         time.Now(),
		TotalRequests:   c.totalRequests,
		Unauthorized:    c.unauthorized,
		Replays:         c.replays,
		TotalOperations: c.totalOperations,
		FailedOps:       c.failedOps,
		Refreshes:       c.refreshes,
		FailedRefreshes: c.failedRefreshes,
		JoinedRefreshes: c.joinedRefreshes,
		SessionExpired:  c.sessionExpired,
		TotalLatency:    c.totalLatency,
	}
}

// Reset clears all collected metrics and resets the start time.
func (c *SessionCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.totalRequests = 0
	c.unauthorized = 0
	c.replays = 0
	c.totalOperations = 0
	c.failedOps = 0
	c.refreshes = 0
	c.failedRefreshes = 0
	c.joinedRefreshes = 0
	c.sessionExpired = false
	c.totalLatency = 0
}
