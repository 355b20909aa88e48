package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
)

type credentials struct {
	username string
	password string
}

// prompt fills in whatever the flags left empty.
func (c *credentials) prompt(cmd *cobra.Command) error {
	reader := bufio.NewReader(cmd.InOrStdin())
	w := cmd.ErrOrStderr()

	if c.username == "" {
		name, err := getSimpleText(reader, "Enter username", w)
		if err != nil {
			return err
		}
		c.username = name
	}
	if c.password == "" {
		pw, err := getPassword(reader, w)
		if err != nil {
			return err
		}
		c.password = pw
	}
	if c.username == "" || c.password == "" {
		return fmt.Errorf("username and password are required")
	}
	return nil
}

func newRegisterCommand(opts *RootOptions) *cobra.Command {
	var creds credentials

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on the server",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, _ []string, app *App) error {
			if err := creds.prompt(cmd); err != nil {
				return err
			}
			id, err := app.auth.Register(ctx, creds.username, creds.password)
			if err != nil {
				return err
			}
			res := map[string]string{"userId": id}
			return opts.printer(cmd).print(res, func(w io.Writer) error {
				fmt.Fprintf(w, "registered %s; run login to start syncing\n", creds.username)
				return nil
			})
		}),
	}

	cmd.Flags().StringVarP(&creds.username, "username", "u", "", "account name")
	return cmd
}

func newLoginCommand(opts *RootOptions) *cobra.Command {
	var creds credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign this device in",
		Long: `Sign this device in. Catches logged while signed out are pushed on the
next sync under the signed-in account.`,
		Args: cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, _ []string, app *App) error {
			if err := creds.prompt(cmd); err != nil {
				return err
			}
			id, err := app.auth.Login(ctx, creds.username, creds.password)
			if err != nil {
				return err
			}
			res := map[string]string{"userId": id}
			return opts.printer(cmd).print(res, func(w io.Writer) error {
				fmt.Fprintf(w, "signed in as %s\n", creds.username)
				return nil
			})
		}),
	}

	cmd.Flags().StringVarP(&creds.username, "username", "u", "", "account name")
	return cmd
}

func newLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign this device out; queued changes are kept",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, _ []string, app *App) error {
			if err := app.auth.Logout(ctx); err != nil {
				return err
			}
			return opts.printer(cmd).print(map[string]bool{"signedIn": false}, func(w io.Writer) error {
				fmt.Fprintln(w, "signed out")
				return nil
			})
		}),
	}
}

type whoami struct {
	SignedIn bool   `json:"signedIn"`
	UserID   string `json:"userId,omitempty"`
}

func newWhoamiCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, _ []string, app *App) error {
			id, ok := app.auth.Whoami(ctx)
			res := whoami{SignedIn: ok, UserID: id}
			return opts.printer(cmd).print(res, func(w io.Writer) error {
				if !ok {
					fmt.Fprintln(w, "not signed in")
					return nil
				}
				fmt.Fprintln(w, id)
				return nil
			})
		}),
	}
}

func newPingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server is reachable",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, _ []string, app *App) error {
			if err := app.auth.Ping(ctx); err != nil {
				return err
			}
			return opts.printer(cmd).print(map[string]string{"status": "ok"}, func(w io.Writer) error {
				fmt.Fprintln(w, "ok")
				return nil
			})
		}),
	}
}
