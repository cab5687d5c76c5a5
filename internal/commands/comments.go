package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/productivity/taskr/internal/output"
	"github.com/productivity/taskr/internal/prompt"
)

// NewCommentsCmd creates the comments command group.
func NewCommentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "comments",
		Aliases: []string{"comment"},
		Short:   "Manage task comments",
		Long:    "List, add, edit, and delete comments on tasks.",
	}

	cmd.AddCommand(
		newCommentsListCmd(),
		newCommentsAddCmd(),
		newCommentsEditCmd(),
		newCommentsDeleteCmd(),
	)

	return cmd
}

func newCommentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "list <task-id>",
		Short:             "List comments on a task",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completer.TaskCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}
			taskID, err := parseID(args[0], "task")
			if err != nil {
				return err
			}

			comments, err := app.Services.Comments.List(cmd.Context(), taskID)
			if err != nil {
				return err
			}

			return app.OK(comments,
				output.WithSummary(fmt.Sprintf("%s on task #%d", plural(len(comments), "comment"), taskID)),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action:      "add",
					Cmd:         fmt.Sprintf("taskr comments add %d \"...\"", taskID),
					Description: "Add a comment",
				}),
			)
		},
	}
}

// commentContent joins args, or prompts for the text in a terminal.
func commentContent(args []string, interactive bool) (string, error) {
	content := strings.TrimSpace(strings.Join(args, " "))
	if content != "" {
		return content, nil
	}
	if !interactive {
		return "", output.ErrUsage("Comment content required")
	}
	return prompt.Input("Comment", "Write a comment...")
}

func newCommentsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <task-id> [content...]",
		Short: "Comment on a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}
			taskID, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			content, err := commentContent(args[1:], app.IsInteractive())
			if err != nil {
				return err
			}

			comment, err := app.Services.Comments.Create(cmd.Context(), taskID, content)
			if err != nil {
				return err
			}

			return app.OK(comment, output.WithSummary(fmt.Sprintf("Commented on task #%d", taskID)))
		},
	}
}

func newCommentsEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <comment-id> [content...]",
		Short: "Edit a comment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "comment")
			if err != nil {
				return err
			}
			content, err := commentContent(args[1:], app.IsInteractive())
			if err != nil {
				return err
			}

			comment, err := app.Services.Comments.Update(cmd.Context(), id, content)
			if err != nil {
				return err
			}

			return app.OK(comment, output.WithSummary(fmt.Sprintf("Updated comment #%d", id)))
		},
	}
}

func newCommentsDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <comment-id>",
		Short: "Delete a comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "comment")
			if err != nil {
				return err
			}
			if err := confirmDelete(app, force, fmt.Sprintf("comment #%d", id)); err != nil {
				return err
			}

			if err := app.Services.Comments.Delete(cmd.Context(), id); err != nil {
				return err
			}

			return app.OK(map[string]any{
				"id":     id,
				"status": "deleted",
			}, output.WithSummary(fmt.Sprintf("Deleted comment #%d", id)))
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")

	return cmd
}
