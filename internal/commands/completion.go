package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/productivity/taskr/internal/completion"
	"github.com/productivity/taskr/internal/output"
)

// NewCompletionCmd creates the completion command group.
func NewCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [shell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for taskr.

To load completions:

Bash:
  $ source <(taskr completion bash)

Zsh:
  $ taskr completion zsh > "${fpath[1]}/_taskr"

Fish:
  $ taskr completion fish | source

PowerShell:
  PS> taskr completion powershell | Out-String | Invoke-Expression

Task and user IDs complete from a local cache that "taskr tasks list --all"
and "taskr users" keep up to date. "taskr completion refresh" fills it
explicitly.`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompletion(cmd.Root(), cmd.OutOrStdout(), args[0])
		},
	}

	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		cmd.AddCommand(&cobra.Command{
			Use:   shell,
			Short: fmt.Sprintf("Generate %s completion script", shell),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCompletion(cmd.Root(), cmd.OutOrStdout(), shell)
			},
		})
	}
	cmd.AddCommand(newCompletionRefreshCmd(), newCompletionStatusCmd())

	return cmd
}

func runCompletion(root *cobra.Command, w io.Writer, shell string) error {
	switch shell {
	case "bash":
		return root.GenBashCompletionV2(w, true)
	case "zsh":
		return root.GenZshCompletion(w)
	case "fish":
		return root.GenFishCompletion(w, true)
	case "powershell":
		return root.GenPowerShellCompletionWithDesc(w)
	}
	return output.ErrUsage("unknown shell: " + shell)
}

func newCompletionRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the task and user completion cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := authedApp(cmd)
			if err != nil {
				return err
			}

			store := completionStore(app)
			result := completion.NewRefresher(store, completion.ServicesSource{Services: app.Services}).RefreshAll(cmd.Context())
			if result.TasksErr != nil && result.UsersErr != nil {
				return result.Error()
			}

			data := map[string]any{
				"tasks": result.TasksCount,
				"users": result.UsersCount,
				"path":  store.Path(),
			}
			summary := fmt.Sprintf("Cached %s and %s", plural(result.TasksCount, "task"), plural(result.UsersCount, "user"))
			if result.HasError() {
				data["error"] = result.Error().Error()
				summary += " (partial)"
			}
			return app.OK(data, output.WithSummary(summary))
		},
	}
}

func newCompletionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show completion cache status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			store := completionStore(app)
			cache := store.Load()
			stale := store.IsStale(completion.DefaultMaxAge)

			data := map[string]any{
				"path":  store.Path(),
				"tasks": len(cache.Tasks),
				"users": len(cache.Users),
				"stale": stale,
			}
			if !cache.TasksUpdatedAt.IsZero() {
				data["tasks_updated_at"] = cache.TasksUpdatedAt
			}
			if !cache.UsersUpdatedAt.IsZero() {
				data["users_updated_at"] = cache.UsersUpdatedAt
			}

			summary := fmt.Sprintf("%s, %s cached", plural(len(cache.Tasks), "task"), plural(len(cache.Users), "user"))
			opts := []output.ResponseOption{output.WithSummary(summary)}
			if stale {
				opts = append(opts, output.WithBreadcrumbs(output.Breadcrumb{
					Action:      "refresh",
					Cmd:         "taskr completion refresh",
					Description: "Refresh the cache",
				}))
			}
			return app.OK(data, opts...)
		},
	}
}
