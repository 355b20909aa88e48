package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/syncer"
	"github.com/spf13/cobra"
)

type syncStatus struct {
	syncer.PushResult
	Pending int `json:"pending"`
}

func writePushResult(w io.Writer, r syncer.PushResult) {
	switch {
	case r.Unauthenticated:
		fmt.Fprintln(w, "not signed in; changes stay queued")
	case r.Skipped:
		fmt.Fprintln(w, "a sync is already running")
	default:
		fmt.Fprintf(w, "pushed %d, failed %d, malformed %d\n", r.Committed, r.Failed, r.Malformed)
	}
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push queued changes to the server now",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, _ []string, app *App) error {
			res, pushErr := app.catches.RetrySync(ctx)
			pending, err := app.catches.PendingCount(ctx)
			if err != nil {
				return err
			}
			st := syncStatus{PushResult: res, Pending: pending}
			if err := opts.printer(cmd).print(st, func(w io.Writer) error {
				writePushResult(w, res)
				fmt.Fprintf(w, "%d operations pending\n", pending)
				return nil
			}); err != nil {
				return err
			}
			return pushErr
		}),
	}
}

func newPullCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch catches this device has not seen",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, _ []string, app *App) error {
			n, err := app.catches.Pull(ctx, limit)
			if err != nil {
				return err
			}
			res := map[string]int{"pulled": n}
			return opts.printer(cmd).print(res, func(w io.Writer) error {
				fmt.Fprintf(w, "pulled %d catches\n", n)
				return nil
			})
		}),
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "newest remote catches to look at (default pull-limit)")
	return cmd
}

func newFullSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fullsync",
		Short: "Reconcile with the server; the newer edit wins",
		Long: `Merge remote and local catches by last write, then push the result.

Catches deleted on this device but not yet pushed are not brought back.`,
		Args: cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, _ []string, app *App) error {
			res, err := app.catches.FullSync(ctx)
			if err != nil {
				return err
			}
			return opts.printer(cmd).print(res, func(w io.Writer) error {
				fmt.Fprintf(w, "pulled %d, pushed %d, conflicts %d\n", res.Pulled, res.Pushed, res.Conflicts)
				return nil
			})
		}),
	}
}

func newDaemonCommand(opts *RootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Sync in the background until interrupted",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, _ []string, app *App) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			every := interval
			if every <= 0 {
				every = app.cfg.SyncInterval
			}
			app.logger.Info(ctx, "background sync started", "interval", every)
			app.catches.StartBackgroundSync(every)

			<-ctx.Done()

			app.catches.StopBackgroundSync()
			app.logger.Info(context.WithoutCancel(ctx), "background sync stopped")
			return nil
		}),
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "sync period (default sync-interval)")
	return cmd
}
