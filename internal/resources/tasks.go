package resources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/productivity/taskr/internal/api"
	"github.com/productivity/taskr/internal/models"
	"github.com/productivity/taskr/internal/output"
)

// maxPages bounds TaskService.All.
const maxPages = 100

// TaskFilter narrows a task listing. Zero values are omitted.
type TaskFilter struct {
	Page     int
	Search   string
	Category string
	Priority string
	State    string
}

// Validate checks the enumerated fields.
func (f TaskFilter) Validate() error {
	checks := []struct {
		field, value string
		allowed      []string
	}{
		{"category", f.Category, models.Categories},
		{"priority", f.Priority, models.Priorities},
		{"state", f.State, models.States},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		if err := models.OneOf(c.field, c.value, c.allowed); err != nil {
			return output.ErrUsage(err.Error())
		}
	}
	return nil
}

func (f TaskFilter) query() string {
	q := url.Values{}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Priority != "" {
		q.Set("priority", f.Priority)
	}
	if f.State != "" {
		q.Set("state", f.State)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// TaskPage is one page of a task listing.
type TaskPage struct {
	Tasks   []models.Task `json:"tasks"`
	Page    int           `json:"page"`
	HasMore bool          `json:"has_more"`
}

// TaskService manages the signed-in user's tasks.
type TaskService struct {
	c *api.Client
}

func taskPath(id int64) string {
	return fmt.Sprintf("/tasks/tasks/%d/", id)
}

// List fetches one page of tasks.
func (s *TaskService) List(ctx context.Context, f TaskFilter) (*TaskPage, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	var result *TaskPage
	err := track(ctx, s.c, "Tasks", "List", false, 0, func(ctx context.Context) error {
		resp, err := s.c.Get(ctx, "/tasks/tasks/"+f.query())
		if err != nil {
			return err
		}
		tasks, more, err := decodeList[models.Task](resp)
		if err != nil {
			return err
		}
		result = &TaskPage{Tasks: tasks, Page: f.Page, HasMore: more}
		return nil
	})
	return result, err
}

// All walks pages starting at f.Page until one comes back empty.
func (s *TaskService) All(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	var all []models.Task
	for i := 0; i < maxPages; i++ {
		p, err := s.List(ctx, f)
		if err != nil {
			// Paginated backends answer 404 past the last page.
			if len(all) > 0 && output.StatusOf(err) == 404 {
				return all, nil
			}
			return nil, err
		}
		all = append(all, p.Tasks...)
		if !p.HasMore {
			return all, nil
		}
		f.Page++
	}
	return all, nil
}

// Get fetches one task.
func (s *TaskService) Get(ctx context.Context, id int64) (*models.Task, error) {
	var task *models.Task
	err := track(ctx, s.c, "Tasks", "Get", false, id, func(ctx context.Context) error {
		resp, err := s.c.Get(ctx, taskPath(id))
		if err != nil {
			return err
		}
		task, err = decode[models.Task](resp)
		return err
	})
	return task, err
}

// Create adds a task.
func (s *TaskService) Create(ctx context.Context, in models.TaskInput) (*models.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, output.ErrUsage(err.Error())
	}
	var task *models.Task
	err := track(ctx, s.c, "Tasks", "Create", true, 0, func(ctx context.Context) error {
		resp, err := s.c.Post(ctx, "/tasks/tasks/", in)
		if err != nil {
			return err
		}
		task, err = decode[models.Task](resp)
		return err
	})
	return task, err
}

// Update replaces a task's writable fields.
func (s *TaskService) Update(ctx context.Context, id int64, in models.TaskInput) (*models.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, output.ErrUsage(err.Error())
	}
	var task *models.Task
	err := track(ctx, s.c, "Tasks", "Update", true, id, func(ctx context.Context) error {
		resp, err := s.c.Put(ctx, taskPath(id), in)
		if err != nil {
			return err
		}
		task, err = decode[models.Task](resp)
		return err
	})
	return task, err
}

// Edit applies change to the current task and saves the result.
func (s *TaskService) Edit(ctx context.Context, id int64, change func(*models.TaskInput)) (*models.Task, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in := current.Input()
	change(&in)
	return s.Update(ctx, id, in)
}

// SetState moves a task to another state.
func (s *TaskService) SetState(ctx context.Context, id int64, state string) (*models.Task, error) {
	if err := models.OneOf("state", state, models.States); err != nil {
		return nil, output.ErrUsage(err.Error())
	}
	return s.Edit(ctx, id, func(in *models.TaskInput) { in.State = state })
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, id int64) error {
	return track(ctx, s.c, "Tasks", "Delete", true, id, func(ctx context.Context) error {
		_, err := s.c.Delete(ctx, taskPath(id))
		return err
	})
}
