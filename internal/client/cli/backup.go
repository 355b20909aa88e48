package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newBackupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Upload a snapshot of local catches and pending changes",
		Long: `Upload a JSON snapshot of every local catch and every queued operation
to the configured S3 bucket (s3_bucket, s3_region, s3_base_endpoint).`,
		Args: cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, _ []string, app *App) error {
			key, err := app.backup.Run(ctx)
			if err != nil {
				return err
			}
			res := map[string]string{"bucket": app.cfg.S3Bucket, "key": key}
			return opts.printer(cmd).print(res, func(w io.Writer) error {
				fmt.Fprintf(w, "uploaded s3://%s/%s\n", app.cfg.S3Bucket, key)
				return nil
			})
		}),
	}
}
