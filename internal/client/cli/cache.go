package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/cache"
	"github.com/spf13/cobra"
)

const defaultCacheTTL = 10 * time.Minute

func newCacheCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the local TTL cache",
	}
	cmd.AddCommand(
		newCacheGetCommand(opts),
		newCacheSetCommand(opts),
		newCacheInvalidateCommand(opts),
		newCacheClearCommand(opts),
		newCacheKeyCommand(opts),
	)
	return cmd
}

func newCacheGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a cached value; expired entries are misses",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, args []string, app *App) error {
			raw, ok := app.cache.Get(ctx, args[0])
			if !ok {
				return fmt.Errorf("cache miss: %s", args[0])
			}
			return opts.printer(cmd).print(raw, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, string(raw))
				return err
			})
		}),
	}
}

func newCacheSetCommand(opts *RootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Cache a value; valid JSON is stored as JSON, anything else as a string",
		Args:  cobra.ExactArgs(2),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, args []string, app *App) error {
			var value any = args[1]
			if json.Valid([]byte(args[1])) {
				value = json.RawMessage(args[1])
			}
			if err := app.cache.Set(ctx, args[0], value, ttl); err != nil {
				return err
			}
			res := map[string]string{"key": args[0], "ttl": ttl.String()}
			return opts.printer(cmd).print(res, func(w io.Writer) error {
				fmt.Fprintf(w, "cached %s for %s\n", args[0], ttl)
				return nil
			})
		}),
	}

	cmd.Flags().DurationVar(&ttl, "ttl", defaultCacheTTL, "time to live")
	return cmd
}

func newCacheInvalidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <key>",
		Short: "Drop one cache entry",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, args []string, app *App) error {
			if err := app.cache.Invalidate(ctx, args[0]); err != nil {
				return err
			}
			return opts.printer(cmd).print(map[string]string{"invalidated": args[0]}, func(w io.Writer) error {
				fmt.Fprintf(w, "invalidated %s\n", args[0])
				return nil
			})
		}),
	}
}

func newCacheClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cache entry; catches and the sync queue are kept",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, _ []string, app *App) error {
			if err := app.cache.ClearAll(ctx); err != nil {
				return err
			}
			return opts.printer(cmd).print(map[string]bool{"cleared": true}, func(w io.Writer) error {
				fmt.Fprintln(w, "cache cleared")
				return nil
			})
		}),
	}
}

// newCacheKeyCommand needs no App: it only formats a key.
func newCacheKeyCommand(opts *RootOptions) *cobra.Command {
	var (
		lat, lon  float64
		precision int
	)

	cmd := &cobra.Command{
		Use:   "key <prefix>",
		Short: "Print the location cache key for a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := cache.GeoKey(args[0], lat, lon, precision)
			return opts.printer(cmd).print(map[string]string{"key": key}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, key)
				return err
			})
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	cmd.Flags().IntVar(&precision, "precision", 2, "decimal places kept")
	return cmd
}
