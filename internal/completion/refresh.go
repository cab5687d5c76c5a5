package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/productivity/taskr/internal/models"
	"github.com/productivity/taskr/internal/resources"
)

// RefreshResult contains the outcome of a refresh operation.
type RefreshResult struct {
	TasksCount int
	UsersCount int
	TasksErr   error
	UsersErr   error
}

// HasError returns true if any refresh operation failed.
func (r RefreshResult) HasError() bool {
	return r.TasksErr != nil || r.UsersErr != nil
}

// Error returns the combined failure, or nil.
func (r RefreshResult) Error() error {
	var errs []error
	if r.TasksErr != nil {
		errs = append(errs, fmt.Errorf("tasks: %w", r.TasksErr))
	}
	if r.UsersErr != nil {
		errs = append(errs, fmt.Errorf("users: %w", r.UsersErr))
	}
	return errors.Join(errs...)
}

// Source is the slice of the API the refresher reads from.
type Source interface {
	AllTasks(ctx context.Context) ([]models.Task, error)
	Users(ctx context.Context) ([]models.User, error)
}

// ServicesSource adapts resources.Services to Source.
type ServicesSource struct {
	Services *resources.Services
}

func (s ServicesSource) AllTasks(ctx context.Context) ([]models.Task, error) {
	return s.Services.Tasks.All(ctx, resources.TaskFilter{})
}

func (s ServicesSource) Users(ctx context.Context) ([]models.User, error) {
	return s.Services.Accounts.Users(ctx)
}

// Refresher fetches fresh completion data.
type Refresher struct {
	store  *Store
	source Source
}

// NewRefresher creates a new cache refresher.
func NewRefresher(store *Store, source Source) *Refresher {
	return &Refresher{store: store, source: source}
}

// RefreshAll fetches tasks and users in parallel and updates the cache.
// A failed section keeps its previous cached data.
func (r *Refresher) RefreshAll(ctx context.Context) RefreshResult {
	var (
		result RefreshResult
		tasks  []models.Task
		users  []models.User
		wg     sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		tasks, result.TasksErr = r.source.AllTasks(ctx)
	}()
	go func() {
		defer wg.Done()
		users, result.UsersErr = r.source.Users(ctx)
	}()
	wg.Wait()

	if result.TasksErr == nil {
		if err := r.store.UpdateTasks(tasks); err != nil {
			result.TasksErr = err
		} else {
			result.TasksCount = len(tasks)
		}
	}
	if result.UsersErr == nil {
		if err := r.store.UpdateUsers(users); err != nil {
			result.UsersErr = err
		} else {
			result.UsersCount = len(users)
		}
	}
	return result
}
