package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/productivity/taskr/internal/config"
	"github.com/productivity/taskr/internal/output"
)

// NewConfigCmd creates the config command for managing configuration.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage taskr configuration.

Configuration is loaded from multiple sources with the following precedence:
  flags > env > local > repo > global > system > defaults

Config locations:
  - System: /etc/taskr/config.json
  - Global: ~/.config/taskr/config.json
  - Repo:   <git-root>/.taskr/config.json
  - Local:  .taskr/config.json

base_url, login_path and refresh_path are only honored from the system and
global files, the environment, and flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetCmd(),
		newConfigUnsetCmd(),
		newConfigPathCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Display the current effective configuration with source information.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}
}

func runConfigShow(cmd *cobra.Command) error {
	app, err := appFrom(cmd)
	if err != nil {
		return err
	}

	values := app.Config.Values()
	configData := make(map[string]any, len(values))
	for _, key := range config.Keys {
		configData[key] = map[string]string{
			"value":  values[key],
			"source": app.Config.SourceOf(key),
		}
	}

	return app.OK(configData,
		output.WithSummary("Effective configuration"),
		output.WithBreadcrumbs(output.Breadcrumb{
			Action:      "set",
			Cmd:         "taskr config set <key> <value>",
			Description: "Set config value",
		}),
	)
}

func configTarget(global bool) (path, scope string) {
	if global {
		return config.GlobalConfigPath(), "global"
	}
	return config.LocalConfigPath(), "local"
}

func newConfigSetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: fmt.Sprintf(`Set a configuration value in the local or global config file.

Valid keys: %s`, strings.Join(config.Keys, ", ")),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			key, value := args[0], args[1]
			path, scope := configTarget(global)

			stored, err := config.SetValue(path, key, value)
			if err != nil {
				return output.ErrUsage(err.Error())
			}

			result := map[string]any{
				"key":   key,
				"value": stored,
				"scope": scope,
				"path":  path,
			}
			opts := []output.ResponseOption{output.WithSummary(fmt.Sprintf("Set %s = %v (%s)", key, stored, scope))}
			if !global && isAuthorityKey(key) {
				result["ignored"] = true
				opts = append(opts, output.WithBreadcrumbs(output.Breadcrumb{
					Action:      "global",
					Cmd:         fmt.Sprintf("taskr config set --global %s %s", key, value),
					Description: key + " is only read from the global config",
				}))
			}

			return app.OK(result, opts...)
		},
	}
	cmd.Flags().BoolVarP(&global, "global", "g", false, "Write to the global config")

	return cmd
}

func newConfigUnsetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			path, scope := configTarget(global)

			removed, err := config.UnsetValue(path, args[0])
			if err != nil {
				return err
			}

			summary := fmt.Sprintf("Unset %s (%s)", args[0], scope)
			if !removed {
				summary = fmt.Sprintf("%s was not set in %s config", args[0], scope)
			}
			return app.OK(map[string]any{
				"key":     args[0],
				"removed": removed,
				"scope":   scope,
				"path":    path,
			}, output.WithSummary(summary))
		},
	}
	cmd.Flags().BoolVarP(&global, "global", "g", false, "Edit the global config")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return app.OK(map[string]string{
				"global":      config.GlobalConfigPath(),
				"local":       config.LocalConfigPath(),
				"credentials": config.GlobalConfigDir(),
			}, output.WithSummary("Config file locations"))
		},
	}
}

func isAuthorityKey(key string) bool {
	switch key {
	case "base_url", "login_path", "refresh_path":
		return true
	}
	return false
}
