package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/productivity/taskr/internal/appctx"
	"github.com/productivity/taskr/internal/completion"
	"github.com/productivity/taskr/internal/dateparse"
	"github.com/productivity/taskr/internal/models"
	"github.com/productivity/taskr/internal/output"
	"github.com/productivity/taskr/internal/prompt"
	"github.com/productivity/taskr/internal/resources"
)

// tasksListFlags holds the flags for the tasks list command.
type tasksListFlags struct {
	page     int
	all      bool
	search   string
	category string
	priority string
	state    string
}

func (f *tasksListFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.page, "page", 1, "Page number")
	cmd.Flags().BoolVar(&f.all, "all", false, "Fetch every page")
	cmd.Flags().StringVarP(&f.search, "search", "s", "", "Search title and description")
	cmd.Flags().StringVar(&f.category, "category", "", "Filter by category (Work, Personal, Others)")
	cmd.Flags().StringVar(&f.priority, "priority", "", "Filter by priority (Low, Medium, High)")
	cmd.Flags().StringVar(&f.state, "state", "", "Filter by state (To-Do, In Progress, Done)")
	registerEnumCompletions(cmd)
}

// NewTasksCmd creates the tasks command group.
func NewTasksCmd() *cobra.Command {
	var flags tasksListFlags

	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Manage your tasks",
		Long:    "List, show, create, update, and delete your tasks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default to list when called without subcommand
			return runTasksList(cmd, flags)
		},
	}
	flags.register(cmd)

	cmd.AddCommand(
		newTasksListCmd(),
		newTasksShowCmd(),
		newTasksCreateCmd(),
		newTasksUpdateCmd(),
		newTasksStateCmd("start", "Move a task to In Progress", models.StateInProgress),
		newTasksStateCmd("done", "Mark a task as Done", models.StateDone),
		newTasksDeleteCmd(),
	)

	return cmd
}

func newTasksListCmd() *cobra.Command {
	var flags tasksListFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long: `List your tasks, newest first, one page at a time.

Filters combine. Enumerated values are matched case-insensitively, so
--state "in progress" and --priority high both work.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasksList(cmd, flags)
		},
	}
	flags.register(cmd)

	return cmd
}

func runTasksList(cmd *cobra.Command, flags tasksListFlags) error {
	app, err := authedApp(cmd)
	if err != nil {
		return err
	}

	filter, err := taskFilter(flags)
	if err != nil {
		return err
	}

	if flags.all {
		tasks, err := app.Services.Tasks.All(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if filter.Page <= 1 && unfiltered(filter) {
			rememberTasks(app, tasks)
		}
		return app.OK(tasks, output.WithSummary(plural(len(tasks), "task")))
	}

	page, err := app.Services.Tasks.List(cmd.Context(), filter)
	if err != nil {
		return err
	}

	opts := []output.ResponseOption{
		output.WithSummary(fmt.Sprintf("%s (page %d)", plural(len(page.Tasks), "task"), page.Page)),
	}
	if page.HasMore {
		opts = append(opts, output.WithBreadcrumbs(output.Breadcrumb{
			Action:      "next",
			Cmd:         fmt.Sprintf("taskr tasks list --page %d", page.Page+1),
			Description: "Next page",
		}))
	}
	if len(page.Tasks) > 0 {
		opts = append(opts, output.WithBreadcrumbs(output.Breadcrumb{
			Action:      "show",
			Cmd:         "taskr tasks show <id>",
			Description: "Show task details",
		}))
	}
	return app.OK(page.Tasks, opts...)
}

// unfiltered reports whether f selects every task.
func unfiltered(f resources.TaskFilter) bool {
	f.Page = 0
	return f == resources.TaskFilter{}
}

func taskFilter(flags tasksListFlags) (resources.TaskFilter, error) {
	f := resources.TaskFilter{Page: flags.page, Search: flags.search}
	var err error
	if f.Category, err = matchEnum("category", flags.category, models.Categories); err != nil {
		return f, err
	}
	if f.Priority, err = matchEnum("priority", flags.priority, models.Priorities); err != nil {
		return f, err
	}
	if f.State, err = matchEnum("state", flags.state, models.States); err != nil {
		return f, err
	}
	return f, nil
}

// matchEnum maps user input onto one of allowed, ignoring case, spaces and
// hyphens. Empty input stays empty.
func matchEnum(field, value string, allowed []string) (string, error) {
	if value == "" {
		return "", nil
	}
	fold := func(s string) string {
		return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(s))
	}
	for _, a := range allowed {
		if fold(a) == fold(value) {
			return a, nil
		}
	}
	return "", output.ErrUsage(fmt.Sprintf("Invalid %s %q (choose from %s)", field, value, strings.Join(allowed, ", ")))
}

func newTasksShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "show <id>",
		Short:             "Show a task",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completer.TaskCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}

			task, err := app.Services.Tasks.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			return app.OK(task,
				output.WithSummary(fmt.Sprintf("Task #%d: %s", task.ID, task.Title)),
				output.WithBreadcrumbs(
					output.Breadcrumb{
						Action:      "comments",
						Cmd:         fmt.Sprintf("taskr comments list %d", task.ID),
						Description: "Show comments",
					},
					output.Breadcrumb{
						Action:      "update",
						Cmd:         fmt.Sprintf("taskr tasks update %d --state Done", task.ID),
						Description: "Update task",
					},
				),
			)
		},
	}
}

// taskInputFlags holds the writable task fields as flags.
type taskInputFlags struct {
	title       string
	description string
	due         string
	priority    string
	category    string
	state       string
}

func (f *taskInputFlags) register(cmd *cobra.Command, defaults bool) {
	priority, category, state := "", "", ""
	if defaults {
		priority, category, state = models.PriorityMedium, models.CategoryWork, models.StateToDo
	}
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "Task title")
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "Task description")
	cmd.Flags().StringVar(&f.due, "due", "", "Due date (YYYY-MM-DD, today, tomorrow, friday, +3d)")
	cmd.Flags().StringVar(&f.priority, "priority", priority, "Priority (Low, Medium, High)")
	cmd.Flags().StringVar(&f.category, "category", category, "Category (Work, Personal, Others)")
	cmd.Flags().StringVar(&f.state, "state", state, "State (To-Do, In Progress, Done)")
	registerEnumCompletions(cmd)
}

func registerEnumCompletions(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("priority", completion.EnumCompletion(models.Priorities))
	_ = cmd.RegisterFlagCompletionFunc("category", completion.EnumCompletion(models.Categories))
	_ = cmd.RegisterFlagCompletionFunc("state", completion.EnumCompletion(models.States))
}

// apply copies the flags the user set onto in.
func (f *taskInputFlags) apply(cmd *cobra.Command, in *models.TaskInput, all bool) error {
	changed := func(name string) bool { return all || cmd.Flags().Changed(name) }
	var err error

	if changed("title") {
		in.Title = strings.TrimSpace(f.title)
	}
	if changed("description") {
		in.Description = f.description
	}
	if changed("due") {
		if in.DueDate, err = dateparse.Resolve(f.due); err != nil {
			return output.ErrUsageHint(fmt.Sprintf("Invalid due date %q", f.due), "Use YYYY-MM-DD, today, tomorrow, a weekday or +3d")
		}
	}
	if changed("priority") {
		if in.Priority, err = matchEnum("priority", f.priority, models.Priorities); err != nil {
			return err
		}
	}
	if changed("category") {
		if in.Category, err = matchEnum("category", f.category, models.Categories); err != nil {
			return err
		}
	}
	if changed("state") {
		if in.State, err = matchEnum("state", f.state, models.States); err != nil {
			return err
		}
	}
	return nil
}

func newTasksCreateCmd() *cobra.Command {
	var flags taskInputFlags

	cmd := &cobra.Command{
		Use:   "create [title]",
		Short: "Create a task",
		Long: `Create a task. A title and due date are required.

In a terminal, running without a title opens an interactive form.

Examples:
  taskr tasks create "Write report" --due friday --priority High
  taskr tasks create --title "Pay rent" --due 2026-11-01 --category Personal`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 && flags.title == "" {
				flags.title = args[0]
			}

			var in models.TaskInput
			if err := flags.apply(cmd, &in, true); err != nil {
				return err
			}
			if in.Title == "" || in.DueDate == "" {
				if in, err = promptTask(app, "New task", in); err != nil {
					return err
				}
			}

			task, err := app.Services.Tasks.Create(cmd.Context(), in)
			if err != nil {
				return err
			}

			return app.OK(task,
				output.WithSummary(fmt.Sprintf("Created task #%d: %s", task.ID, task.Title)),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action:      "show",
					Cmd:         fmt.Sprintf("taskr tasks show %d", task.ID),
					Description: "View task",
				}),
			)
		},
	}
	flags.register(cmd, true)

	return cmd
}

func promptTask(app *appctx.App, title string, in models.TaskInput) (models.TaskInput, error) {
	if !app.IsInteractive() {
		if in.Title == "" {
			return in, output.ErrUsage("Task title required")
		}
		return in, output.ErrUsageHint("Due date required", "Pass --due, e.g. --due tomorrow")
	}
	return prompt.Task(title, in)
}

func newTasksUpdateCmd() *cobra.Command {
	var flags taskInputFlags
	var interactive bool

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Long: `Update the fields given as flags; other fields keep their current values.

Examples:
  taskr tasks update 42 --state "In Progress"
  taskr tasks update 42 --due +1w --priority high
  taskr tasks update 42 --interactive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			if !interactive && !anyChanged(cmd, "title", "description", "due", "priority", "category", "state") {
				return output.ErrUsageHint("Nothing to update", "Pass at least one of --title, --description, --due, --priority, --category, --state")
			}

			var applyErr error
			task, err := app.Services.Tasks.Edit(cmd.Context(), id, func(in *models.TaskInput) {
				if applyErr = flags.apply(cmd, in, false); applyErr != nil {
					return
				}
				if interactive {
					*in, applyErr = prompt.Task(fmt.Sprintf("Edit task #%d", id), *in)
				}
			})
			if applyErr != nil {
				return applyErr
			}
			if err != nil {
				return err
			}

			return app.OK(task, output.WithSummary(fmt.Sprintf("Updated task #%d: %s", task.ID, task.Title)))
		},
	}
	flags.register(cmd, false)
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Edit in a form")

	return cmd
}

func newTasksStateCmd(use, short, state string) *cobra.Command {
	return &cobra.Command{
		Use:               use + " <id>...",
		Short:             short,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completer.TaskCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}
			ids, err := parseIDs(args, "task")
			if err != nil {
				return err
			}

			updated := make([]models.Task, 0, len(ids))
			for _, id := range ids {
				task, err := app.Services.Tasks.SetState(cmd.Context(), id, state)
				if err != nil {
					return err
				}
				updated = append(updated, *task)
			}

			return app.OK(updated, output.WithSummary(fmt.Sprintf("%s moved to %s", plural(len(updated), "task"), state)))
		},
	}
}

func newTasksDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:               "delete <id>",
		Short:             "Delete a task",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completer.TaskCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			if err := confirmDelete(app, force, fmt.Sprintf("task #%d", id)); err != nil {
				return err
			}

			if err := app.Services.Tasks.Delete(cmd.Context(), id); err != nil {
				return err
			}

			return app.OK(map[string]any{
				"id":     id,
				"status": "deleted",
			}, output.WithSummary(fmt.Sprintf("Deleted task #%d", id)))
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")

	return cmd
}
