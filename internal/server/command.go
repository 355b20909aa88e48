package server

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/catchkeeper/internal/server/config"
	"github.com/spf13/cobra"
)

// NewCommand builds the catchkeeper-server command. The root command serves
// until SIGINT or SIGTERM; "migrate" only applies the schema.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "catchkeeper-server",
		Short:         "Authoritative sync server for catchkeeper devices",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Run(ctx)
		},
	}
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			cfg.EndpointAddrHTTP = ""
			app, err := NewApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if err := app.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})
	return cmd
}

// Execute runs the command with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
