package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/productivity/taskr/internal/appctx"
	"github.com/productivity/taskr/internal/auth"
	"github.com/productivity/taskr/internal/output"
	"github.com/productivity/taskr/internal/prompt"
	"github.com/productivity/taskr/internal/resources"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long:  "Log in and out, inspect the stored session, and create accounts.",
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthStatusCmd(),
		newAuthRefreshCmd(),
		newAuthTokenCmd(),
		newAuthRegisterCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var username string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a username and password",
		Long: `Exchange a username and password for an access and refresh token.

Without --password-stdin the password is prompted for in a terminal.

Examples:
  taskr auth login
  echo "$PASSWORD" | taskr auth login --username alice --password-stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			var password string
			if passwordStdin {
				if password, err = readSecret(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if username == "" || password == "" {
				creds, err := prompt.Login(username)
				if err != nil {
					return output.ErrUsageHint("Username and password are required",
						"Use --username with --password-stdin when not in a terminal")
				}
				username, password = creds.Username, creds.Password
			}

			return runLogin(cmd, app, username, password)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")

	return cmd
}

func runLogin(cmd *cobra.Command, app *appctx.App, username, password string) error {
	tokens, err := app.Auth.Login(cmd.Context(), username, password)
	if err != nil {
		return err
	}
	name := tokens.Username
	if name == "" {
		name = username
	}
	return app.OK(map[string]any{
		"status":   "logged_in",
		"username": name,
		"user_id":  tokens.UserID,
		"backend":  app.Auth.Status().Backend,
	},
		output.WithSummary("Logged in as "+name),
		output.WithBreadcrumbs(output.Breadcrumb{
			Action:      "tasks",
			Cmd:         "taskr tasks",
			Description: "List your tasks",
		}),
	)
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Long:  "Remove the stored tokens and identity for the current server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			if err := app.Auth.Logout(); err != nil {
				return err
			}
			if err := completionStore(app).Clear(); err != nil {
				app.Logger.Debug("clear completion cache", "error", err)
			}

			return app.OK(map[string]string{
				"status": "logged_out",
			}, output.WithSummary("Successfully logged out"))
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  "Display the stored session without contacting the server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			st := app.Auth.Status()
			data := map[string]any{
				"authenticated": st.Authenticated,
				"state":         st.State,
				"origin":        app.Client.BaseURL(),
				"backend":       st.Backend,
				"can_refresh":   st.CanRefresh,
				"stored_keys":   st.StoredKeys,
			}
			if st.Static {
				data["source"] = auth.EnvToken
			}
			if st.Username != "" {
				data["username"] = st.Username
			}
			if st.UserID != 0 {
				data["user_id"] = st.UserID
			}
			if st.ExpiresAt != nil {
				data["expires_at"] = st.ExpiresAt.Format(time.RFC3339)
				data["expires_in"] = time.Until(*st.ExpiresAt).Round(time.Second).String()
				data["expired"] = st.Expired
			}

			return app.OK(data, output.WithSummary(statusSummary(st)))
		},
	}
}

func statusSummary(st auth.Status) string {
	switch {
	case !st.Authenticated:
		return "Not authenticated"
	case st.Static:
		return "Authenticated via " + auth.EnvToken
	case st.Expired && st.CanRefresh:
		return fmt.Sprintf("Authenticated as %s (access token expired, will refresh)", st.Username)
	case st.Username != "":
		return "Authenticated as " + st.Username
	}
	return "Authenticated"
}

func newAuthRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token",
		Long: `Force a refresh of the access token using the stored refresh token.

A refused refresh ends the session: stored credentials are removed and you
must log in again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			if err := app.Auth.Refresh(cmd.Context()); err != nil {
				return err
			}

			return app.OK(map[string]string{
				"status": "refreshed",
			}, output.WithSummary("Token refreshed successfully"))
		},
	}
}

func newAuthTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the access token",
		Long: `Print the current access token to stdout for use with other tools.

Examples:
  curl -H "Authorization: Bearer $(taskr auth token)" ...
  export TASKR_TOKEN=$(taskr auth token)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			token, err := app.Auth.Token()
			if err != nil {
				return err
			}

			// Raw by default for shell substitution; envelope only when asked.
			if app.Flags.JSON || app.Flags.YAML {
				return app.OK(map[string]string{"token": token})
			}
			_, err = fmt.Fprintln(app.Stdout, token)
			return err
		},
	}
}

func newAuthRegisterCmd() *cobra.Command {
	var username, email string
	var passwordStdin, login bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create a new account. Prompts for the details in a terminal.

Pass --login to log in with the new account right away.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			reg := resources.Registration{Username: username, Email: email}
			if passwordStdin {
				if reg.Password, err = readSecret(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if reg.Username == "" || reg.Password == "" {
				r, err := prompt.Register()
				if err != nil {
					return output.ErrUsageHint("Username and password are required",
						"Use --username, --email and --password-stdin when not in a terminal")
				}
				reg = resources.Registration{Username: r.Username, Email: r.Email, Password: r.Password}
			}

			user, err := app.Services.Accounts.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			if login {
				return runLogin(cmd, app, reg.Username, reg.Password)
			}

			if user.Username == "" {
				user.Username = reg.Username
			}
			return app.OK(user,
				output.WithSummary("Registered "+user.Username),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action:      "login",
					Cmd:         "taskr auth login --username " + user.Username,
					Description: "Log in",
				}),
			)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	cmd.Flags().BoolVar(&login, "login", false, "Log in after registering")

	return cmd
}
