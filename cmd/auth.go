package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/minutes-cli/client"
	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/credentials"
	"github.com/otherjamesbrown/minutes-cli/pkg/notice"
	"github.com/otherjamesbrown/minutes-cli/pkg/session"
)

// NewAuthCommand creates the auth command group.
func NewAuthCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage your session",
		Long: `Log in to the meeting assistant, create an account, and inspect the
current session.

The session cookie is stored encrypted in ~/.minutes/credentials.yaml (or
$MINUTES_CONFIG_DIR). The encryption key comes from MINUTES_ENCRYPTION_KEY,
the system keyring, or MINUTES_PASSPHRASE, in that order.

MINUTES_SESSION_ID overrides the stored session for one invocation.`,
	}

	cmd.AddCommand(newAuthLoginCommand(deps))
	cmd.AddCommand(newAuthLogoutCommand(deps))
	cmd.AddCommand(newAuthRegisterCommand(deps))
	cmd.AddCommand(newAuthStatusCommand(deps))
	cmd.AddCommand(newAuthWhoamiCommand(deps))
	return cmd
}

func newAuthLoginCommand(deps *Deps) *cobra.Command {
	var (
		username      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		Long: `Log in with your username and password. The password is read without
echo from the terminal, or from the first line of stdin with --password-stdin.

Examples:
  minutes auth login
  minutes auth login --username alice
  echo "$PASSWORD" | minutes auth login --username alice --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := deps.Connect(ctx)
			if err != nil {
				return err
			}

			if username == "" {
				if username, err = deps.readLine("Username: "); err != nil {
					return err
				}
			}
			var password string
			if passwordStdin {
				password, err = deps.readLine("")
			} else {
				password, err = deps.readPassword("Password: ")
			}
			if err != nil {
				return err
			}
			return app.login(ctx, username, password)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted when omitted)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func newAuthLogoutCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget it locally",
		Long: `Log out on the server and remove the stored session. The local session is
removed even when the server cannot be reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := deps.Connect(ctx)
			if err != nil {
				return err
			}
			if _, ok := app.Client.SessionCookie(); !ok {
				fmt.Fprintln(deps.Out, "Not logged in.")
				return nil
			}
			if err := app.Session.Logout(ctx); err != nil {
				app.Notifier.Notify(notice.Notice{
					Level:   notice.LevelWarning,
					Title:   "Logged out locally",
					Message: errorMessage(err),
				})
				return nil
			}
			fmt.Fprintln(deps.Out, "Logged out.")
			return nil
		},
	}
}

func newAuthRegisterCommand(deps *Deps) *cobra.Command {
	var username, email string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create an account on the meeting assistant. Passwords must be at least
6 characters and are asked for twice. Registering does not log you in.

Examples:
  minutes auth register
  minutes auth register --username alice --email alice@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := deps.Connect(ctx)
			if err != nil {
				return err
			}

			reg := client.Registration{Username: username, Email: email}
			if reg.Username == "" {
				if reg.Username, err = deps.readLine("Username: "); err != nil {
					return err
				}
			}
			if reg.Email == "" {
				if reg.Email, err = deps.readLine("Email: "); err != nil {
					return err
				}
			}
			if reg.Password, err = deps.readPassword("Password: "); err != nil {
				return err
			}
			if reg.ConfirmPassword, err = deps.readPassword("Confirm password: "); err != nil {
				return err
			}
			return app.register(ctx, reg)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted when omitted)")
	cmd.Flags().StringVar(&email, "email", "", "Email address (prompted when omitted)")
	return cmd
}

func (a *App) register(ctx context.Context, reg client.Registration) error {
	if err := reg.Validate(); err != nil {
		title := "Weak Password"
		if reg.Password != reg.ConfirmPassword {
			title = "Password Mismatch"
		}
		a.Notifier.Notify(notice.Notice{Level: notice.LevelError, Title: title, Message: errorMessage(err)})
		return reported(err)
	}
	if err := a.Client.Register(ctx, reg); err != nil {
		title := "Registration Failed"
		if isNetworkError(err) {
			title = "Connection Error"
		}
		a.Notifier.Notify(notice.Notice{Level: notice.LevelError, Title: title, Message: errorMessage(err)})
		return reported(err)
	}
	a.Notifier.Notify(notice.Notice{
		Level:   notice.LevelSuccess,
		Title:   "Registration Successful",
		Message: "Your account has been created. Please login.",
	})
	return nil
}

// authStatus is the machine-readable form of `auth status`.
type authStatus struct {
	Server          string `json:"server" yaml:"server"`
	IsAuthenticated bool   `json:"is_authenticated" yaml:"is_authenticated"`
	Username        string `json:"username,omitempty" yaml:"username,omitempty"`
	Email           string `json:"email,omitempty" yaml:"email,omitempty"`
	Source          string `json:"source" yaml:"source"`
	Expires         string `json:"expires,omitempty" yaml:"expires,omitempty"`
	KeyProvider     string `json:"key_provider,omitempty" yaml:"key_provider,omitempty"`
	Error           string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newAuthStatusCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Long: `Check the stored session against the server and show who you are logged in
as. A session the server rejects is removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := deps.Connect(ctx)
			if err != nil {
				return err
			}

			status := authStatus{Server: app.Client.ServerURL(), Source: "none"}
			if store, err := deps.credentialStore(); err == nil {
				status.KeyProvider = store.KeyDescription()
				if creds, err := store.GetActiveCredential(status.Server); err == nil {
					status.Source = "stored"
					status.Expires = credentials.FormatExpiry(creds.ExpiresAt)
				}
			}
			if os.Getenv(credentials.EnvSessionID) != "" {
				status.Source = "environment"
			}

			state, err := app.Session.Start(ctx)
			if err != nil {
				status.Error = errorMessage(err)
			}
			if state.IsAuthenticated {
				status.IsAuthenticated = true
				status.Username = state.User.Username
				status.Email = state.User.Email
			}
			return deps.printAuthStatus(app.Config, status)
		},
	}
}

func (d *Deps) printAuthStatus(cfg *config.CLIConfig, s authStatus) error {
	switch cfg.OutputFormat {
	case config.OutputFormatJSON:
		return outputJSON(d.Out, s)
	case config.OutputFormatYAML:
		return outputYAML(d.Out, s)
	}

	fmt.Fprintln(d.Out, "Authentication Status:")
	fmt.Fprintf(d.Out, "  Server:        %s\n", s.Server)
	if s.IsAuthenticated {
		fmt.Fprintf(d.Out, "  Status:        logged in\n")
		fmt.Fprintf(d.Out, "  User:          %s <%s>\n", s.Username, valueOrDefault(s.Email, "no email"))
	} else {
		fmt.Fprintf(d.Out, "  Status:        not logged in\n")
	}
	fmt.Fprintf(d.Out, "  Session from:  %s\n", s.Source)
	if s.Expires != "" {
		fmt.Fprintf(d.Out, "  Expires in:    %s\n", s.Expires)
	}
	if s.KeyProvider != "" {
		fmt.Fprintf(d.Out, "  Key provider:  %s\n", s.KeyProvider)
	}
	if s.Error != "" {
		fmt.Fprintf(d.Out, "  Error:         %s\n", s.Error)
	}
	if !s.IsAuthenticated && s.Error == "" {
		fmt.Fprintln(d.Out, "\nRun 'minutes auth login' to sign in.")
	}
	return nil
}

func newAuthWhoamiCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the logged-in username",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := deps.Connect(ctx)
			if err != nil {
				return err
			}
			state, err := app.Session.Start(ctx)
			if err != nil {
				return err
			}
			if !state.IsAuthenticated {
				app.Notifier.Notify(session.AuthRequiredNotice)
				return reported(errors.New("not logged in"))
			}
			fmt.Fprintln(deps.Out, strings.TrimSpace(state.User.Username))
			return nil
		},
	}
}
