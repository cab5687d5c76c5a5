package observability

import (
	"context"
	"time"
)

// OperationInfo describes a semantic operation such as Tasks.List.
type OperationInfo struct {
	Service    string // e.g. "Tasks", "Comments"
	Operation  string // e.g. "List", "Update"
	ResourceID string
	IsMutation bool
}

// RequestInfo describes one HTTP exchange made by the gateway.
type RequestInfo struct {
	Method    string
	URL       string
	RequestID string
	// Replay is true for the single retry that follows a successful refresh.
	Replay bool
}

// RequestResult describes how an HTTP exchange ended.
type RequestResult struct {
	StatusCode int
	Duration   time.Duration
	Error      error
}

// RefreshInfo describes a token refresh attempt.
type RefreshInfo struct {
	// Joined is true when the caller waited on a refresh already in flight.
	Joined   bool
	Duration time.Duration
	Error    error
}

// Hooks receives gateway lifecycle events.
type Hooks interface {
	OnOperationStart(ctx context.Context, op OperationInfo) context.Context
	OnOperationEnd(ctx context.Context, op OperationInfo, err error, duration time.Duration)
	OnRequestStart(ctx context.Context, info RequestInfo) context.Context
	OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult)
	OnRefresh(ctx context.Context, info RefreshInfo)
	OnSessionExpired(ctx context.Context)
}

// NopHooks ignores every event.
type NopHooks struct{}

var _ Hooks = NopHooks{}

func (NopHooks) OnOperationStart(ctx context.Context, _ OperationInfo) context.Context { return ctx }
func (NopHooks) OnOperationEnd(context.Context, OperationInfo, error, time.Duration)    {}
func (NopHooks) OnRequestStart(ctx context.Context, _ RequestInfo) context.Context     { return ctx }
func (NopHooks) OnRequestEnd(context.Context, RequestInfo, RequestResult)              {}
func (NopHooks) OnRefresh(context.Context, RefreshInfo)                                {}
func (NopHooks) OnSessionExpired(context.Context)                                      {}
