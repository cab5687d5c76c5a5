package commands

import (
	"github.com/spf13/cobra"

	"github.com/productivity/taskr/internal/output"
)

// CommandInfo describes a CLI command.
type CommandInfo struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Actions     []string `json:"actions,omitempty"`
}

// CommandCategory groups commands by category.
type CommandCategory struct {
	Name     string        `json:"name"`
	Commands []CommandInfo `json:"commands"`
}

func commandCategories() []CommandCategory {
	return []CommandCategory{
		{
			Name: "Core Commands",
			Commands: []CommandInfo{
				{Name: "tasks", Category: "core", Description: "Manage tasks", Actions: []string{"list", "show", "create", "update", "start", "done", "delete"}},
				{Name: "comments", Category: "core", Description: "Manage task comments", Actions: []string{"list", "add", "edit", "delete"}},
				{Name: "notifications", Category: "core", Description: "Read and watch notifications", Actions: []string{"list", "read", "watch"}},
			},
		},
		{
			Name: "People",
			Commands: []CommandInfo{
				{Name: "users", Category: "people", Description: "Find and follow other users", Actions: []string{"list", "search", "tasks", "follow", "unfollow", "profile"}},
				{Name: "followed", Category: "people", Description: "Tasks of users you follow"},
			},
		},
		{
			Name: "Auth & Config",
			Commands: []CommandInfo{
				{Name: "auth", Category: "auth", Description: "Authenticate with the task server", Actions: []string{"login", "logout", "status", "refresh", "token", "register"}},
				{Name: "config", Category: "auth", Description: "Manage configuration", Actions: []string{"show", "set", "unset", "path"}},
			},
		},
		{
			Name: "Additional Commands",
			Commands: []CommandInfo{
				{Name: "commands", Category: "additional", Description: "List all commands"},
				{Name: "completion", Category: "additional", Description: "Generate shell completions", Actions: []string{"bash", "zsh", "fish", "powershell", "refresh", "status"}},
				{Name: "help", Category: "additional", Description: "Show help"},
				{Name: "version", Category: "additional", Description: "Show version"},
			},
		},
	}
}

// CatalogCommandNames returns all command names from the catalog.
func CatalogCommandNames() []string {
	var names []string
	for _, cat := range commandCategories() {
		for _, cmd := range cat.Commands {
			names = append(names, cmd.Name)
		}
	}
	return names
}

// NewCommandsCmd creates the commands listing command.
func NewCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "commands",
		Aliases: []string{"cmds"},
		Short:   "List all available commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			return app.OK(commandCategories(),
				output.WithSummary("All available taskr commands"),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action:      "help",
					Cmd:         "taskr --help",
					Description: "View help",
				}),
			)
		},
	}
}
