// Package models provides canonical type definitions for task API entities.
package models

import "fmt"

// Task priorities.
const (
	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"
)

// Task categories.
const (
	CategoryWork     = "Work"
	CategoryPersonal = "Personal"
	CategoryOthers   = "Others"
)

// Task states.
const (
	StateToDo       = "To-Do"
	StateInProgress = "In Progress"
	StateDone       = "Done"
)

var (
	Priorities = []string{PriorityLow, PriorityMedium, PriorityHigh}
	Categories = []string{CategoryWork, CategoryPersonal, CategoryOthers}
	States     = []string{StateToDo, StateInProgress, StateDone}
)

// Task is a personal task owned by one user.
type Task struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	State       string `json:"state"`
	Owner       string `json:"owner,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// TaskInput is the writable subset of a task.
type TaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	State       string `json:"state"`
}

// Validate checks required fields and enumerations.
func (in TaskInput) Validate() error {
	if in.Title == "" {
		return fmt.Errorf("title is required")
	}
	if in.DueDate == "" {
		return fmt.Errorf("due date is required")
	}
	if err := OneOf("priority", in.Priority, Priorities); err != nil {
		return err
	}
	if err := OneOf("category", in.Category, Categories); err != nil {
		return err
	}
	return OneOf("state", in.State, States)
}

// Input returns the writable fields of t, for read-modify-write updates.
func (t Task) Input() TaskInput {
	return TaskInput{
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		Priority:    t.Priority,
		Category:    t.Category,
		State:       t.State,
	}
}

// OneOf returns an error unless value is one of allowed.
func OneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %q, got %q", field, allowed, value)
}

// Comment is a note left on a task.
type Comment struct {
	ID             int64  `json:"id"`
	Task           int64  `json:"task"`
	Author         int64  `json:"author"`
	AuthorUsername string `json:"author_username"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// User is a public account reference.
type User struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email,omitempty"`
	DateJoined string `json:"date_joined,omitempty"`
}

// Profile is the signed-in user's account with their tasks.
type Profile struct {
	User  User   `json:"user"`
	Tasks []Task `json:"tasks"`
}

// Notification contexts.
const (
	ContextMyTasks       = "my_tasks"
	ContextFollowedTasks = "followed_tasks"
)

// Notification tells a user about activity on a task.
type Notification struct {
	ID        int64  `json:"id"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	Context   string `json:"context,omitempty"`
	TaskID    int64  `json:"task_id,omitempty"`
	CommentID int64  `json:"comment_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Tokens is the credential pair issued at login.
type Tokens struct {
	Access   string `json:"access"`
	Refresh  string `json:"refresh"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}
