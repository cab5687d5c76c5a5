// Package resources wraps the task API's REST endpoints. Every call goes
// through the authenticated gateway in package api.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/productivity/taskr/internal/api"
	"github.com/productivity/taskr/internal/observability"
	"github.com/productivity/taskr/internal/output"
)

// Services groups the resource clients.
type Services struct {
	Tasks         *TaskService
	Comments      *CommentService
	Accounts      *AccountService
	Notifications *NotificationService
}

// New builds all services over one gateway.
func New(c *api.Client) *Services {
	return &Services{
		Tasks:         &TaskService{c: c},
		Comments:      &CommentService{c: c},
		Accounts:      &AccountService{c: c},
		Notifications: &NotificationService{c: c},
	}
}

func track(ctx context.Context, c *api.Client, service, operation string, mutation bool, id int64, fn func(context.Context) error) error {
	op := observability.OperationInfo{Service: service, Operation: operation, IsMutation: mutation}
	if id != 0 {
		op.ResourceID = fmt.Sprint(id)
	}
	return c.Track(ctx, op, fn)
}

// page is the paginated envelope some list endpoints use.
type page[T any] struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []T    `json:"results"`
}

// decodeList accepts either a bare JSON array or a paginated envelope.
// more reports whether another page may follow.
func decodeList[T any](resp *api.Response) (items []T, more bool, err error) {
	if err := json.Unmarshal(resp.Data, &items); err == nil {
		return items, len(items) > 0, nil
	}
	var p page[T]
	if err := json.Unmarshal(resp.Data, &p); err != nil {
		return nil, false, output.ErrAPI(resp.StatusCode, "Unexpected response structure")
	}
	return p.Results, p.Next != "", nil
}

func decode[T any](resp *api.Response) (*T, error) {
	var v T
	if err := resp.UnmarshalData(&v); err != nil {
		return nil, output.ErrAPI(resp.StatusCode, "Unexpected response structure")
	}
	return &v, nil
}
