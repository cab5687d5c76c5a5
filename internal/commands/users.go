package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/productivity/taskr/internal/output"
	"github.com/productivity/taskr/internal/resources"
)

// NewUsersCmd creates the users command group.
func NewUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"people"},
		Short:   "Find and follow other users",
		Long:    "List and search users, view their tasks, and follow or unfollow them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsersList(cmd)
		},
	}

	cmd.AddCommand(
		newUsersListCmd(),
		newUsersSearchCmd(),
		newUsersTasksCmd(),
		newUsersFollowCmd(true),
		newUsersFollowCmd(false),
		newUsersProfileCmd(),
	)

	return cmd
}

func newUsersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsersList(cmd)
		},
	}
}

func runUsersList(cmd *cobra.Command) error {
	app, err := authedApp(cmd)
	if err != nil {
		return err
	}
	users, err := app.Services.Accounts.Users(cmd.Context())
	if err != nil {
		return err
	}
	rememberUsers(app, users)
	return app.OK(users,
		output.WithSummary(plural(len(users), "user")),
		output.WithBreadcrumbs(output.Breadcrumb{
			Action:      "follow",
			Cmd:         "taskr users follow <id>",
			Description: "Follow a user",
		}),
	)
}

func newUsersSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search users by username",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")

			users, err := app.Services.Accounts.Search(cmd.Context(), query)
			if err != nil {
				return err
			}

			return app.OK(users, output.WithSummary(fmt.Sprintf("%s matching %q", plural(len(users), "user"), query)))
		},
	}
}

func newUsersTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "tasks <user-id>",
		Short:             "List a user's tasks",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completer.UserCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "user")
			if err != nil {
				return err
			}

			tasks, err := app.Services.Accounts.UserTasks(cmd.Context(), id)
			if err != nil {
				return err
			}

			return app.OK(tasks, output.WithSummary(fmt.Sprintf("%s for user #%d", plural(len(tasks), "task"), id)))
		},
	}
}

func newUsersFollowCmd(follow bool) *cobra.Command {
	use, short, verb := "follow", "Follow a user", "Following"
	if !follow {
		use, short, verb = "unfollow", "Stop following a user", "Unfollowed"
	}

	return &cobra.Command{
		Use:               use + " <user-id>",
		Short:             short,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completer.UserCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "user")
			if err != nil {
				return err
			}
			if me, ok := app.Auth.Identity(); ok && me.UserID == id {
				return output.ErrUsage("You cannot " + use + " yourself")
			}

			if follow {
				err = app.Services.Accounts.Follow(cmd.Context(), id)
			} else {
				err = app.Services.Accounts.Unfollow(cmd.Context(), id)
			}
			if err != nil {
				return err
			}

			return app.OK(map[string]any{
				"user_id": id,
				"status":  use + "ed",
			},
				output.WithSummary(fmt.Sprintf("%s user #%d", verb, id)),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action:      "followed",
					Cmd:         "taskr followed",
					Description: "Tasks of users you follow",
				}),
			)
		},
	}
}

func newUsersProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "profile",
		Aliases: []string{"me"},
		Short:   "Show your profile and tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}

			profile, err := app.Services.Accounts.Profile(cmd.Context())
			if err != nil {
				return err
			}

			return app.OK(profile, output.WithSummary(fmt.Sprintf("%s (%s)", profile.User.Username, plural(len(profile.Tasks), "task"))))
		},
	}
}

// NewFollowedCmd lists the tasks of users the signed-in user follows.
func NewFollowedCmd() *cobra.Command {
	var group bool

	cmd := &cobra.Command{
		Use:   "followed",
		Short: "Tasks of users you follow",
		Long: `List tasks belonging to the users you follow.

--group nests the tasks under their owners.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}

			tasks, err := app.Services.Accounts.FollowedTasks(cmd.Context())
			if err != nil {
				return err
			}

			summary := output.WithSummary(plural(len(tasks), "followed task"))
			if group {
				groups := resources.GroupByOwner(tasks)
				return app.OK(groups, summary)
			}
			return app.OK(tasks, summary)
		},
	}
	cmd.Flags().BoolVar(&group, "group", false, "Group tasks by owner")

	return cmd
}
