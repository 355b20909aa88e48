package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/catchkeeper/internal/client/config"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string

	factory AppFactory
}

type commandFunc func(ctx context.Context, cmd *cobra.Command, args []string, app *App) error

// NewRootCommand creates the catchkeeper command tree. A nil factory uses
// NewApp.
func NewRootCommand(factory AppFactory) *cobra.Command {
	if factory == nil {
		factory = NewApp
	}
	opts := &RootOptions{factory: factory}

	cmd := &cobra.Command{
		Use:   "catchkeeper",
		Short: "Offline-first fishing journal",
		Long: `Log catches on this device and keep them in sync with a catchkeeper server.

Every change is stored locally first and queued for the server; nothing is
lost while offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	config.BindFlags(cmd.PersistentFlags())
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (text|json|yaml)")

	cmd.AddCommand(
		newLogCommand(opts),
		newListCommand(opts),
		newShowCommand(opts),
		newUpdateCommand(opts),
		newDeleteCommand(opts),
		newStatsCommand(opts),
		newSyncCommand(opts),
		newPullCommand(opts),
		newFullSyncCommand(opts),
		newDaemonCommand(opts),
		newRegisterCommand(opts),
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newWhoamiCommand(opts),
		newPingCommand(opts),
		newBackupCommand(opts),
		newCacheCommand(opts),
	)
	return cmd
}

// run wraps fn so that it gets a freshly opened App, closed when fn returns.
func (o *RootOptions) run(fn commandFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		app, err := o.factory(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := app.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
				err = cerr
			}
		}()

		return fn(ctx, cmd, args, app)
	}
}

func (o *RootOptions) printer(cmd *cobra.Command) printer {
	return printer{format: o.Format, w: cmd.OutOrStdout()}
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand(nil)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}
