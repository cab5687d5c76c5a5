package resources

import (
	"context"
	"fmt"
	"strings"

	"github.com/productivity/taskr/internal/api"
	"github.com/productivity/taskr/internal/models"
	"github.com/productivity/taskr/internal/output"
)

// CommentService manages comments on tasks.
type CommentService struct {
	c *api.Client
}

func commentPath(id int64) string {
	return fmt.Sprintf("/comments/%d/", id)
}

// List returns the comments on a task.
func (s *CommentService) List(ctx context.Context, taskID int64) ([]models.Comment, error) {
	var comments []models.Comment
	err := track(ctx, s.c, "Comments", "List", false, taskID, func(ctx context.Context) error {
		resp, err := s.c.Get(ctx, fmt.Sprintf("/comments/?task=%d", taskID))
		if err != nil {
			return err
		}
		comments, _, err = decodeList[models.Comment](resp)
		return err
	})
	return comments, err
}

// Create posts a comment on a task.
func (s *CommentService) Create(ctx context.Context, taskID int64, content string) (*models.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, output.ErrUsage("Comment cannot be empty")
	}
	var comment *models.Comment
	err := track(ctx, s.c, "Comments", "Create", true, taskID, func(ctx context.Context) error {
		resp, err := s.c.Post(ctx, "/comments/", map[string]any{"task": taskID, "content": content})
		if err != nil {
			return err
		}
		comment, err = decode[models.Comment](resp)
		return err
	})
	return comment, err
}

// Update changes a comment's text.
func (s *CommentService) Update(ctx context.Context, id int64, content string) (*models.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, output.ErrUsage("Comment cannot be empty")
	}
	var comment *models.Comment
	err := track(ctx, s.c, "Comments", "Update", true, id, func(ctx context.Context) error {
		resp, err := s.c.Patch(ctx, commentPath(id), map[string]string{"content": content})
		if err != nil {
			return err
		}
		comment, err = decode[models.Comment](resp)
		return err
	})
	return comment, err
}

// Delete removes a comment.
func (s *CommentService) Delete(ctx context.Context, id int64) error {
	return track(ctx, s.c, "Comments", "Delete", true, id, func(ctx context.Context) error {
		_, err := s.c.Delete(ctx, commentPath(id))
		return err
	})
}
