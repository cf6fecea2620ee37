package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/velmie/cadence"
)

func newRunBatchCommand(opts *rootOptions) *cobra.Command {
	var req cadence.BatchRequest

	cmd := &cobra.Command{
		Use:   "run-batch",
		Short: "Advance one batch of due enrollments",
		Example: `  cadence run-batch --batch-size 50
  cadence run-batch --enrollment 0190f3c2-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) (any, error) {
				return a.engine.RunBatch(ctx, req)
			})
		},
	}

	cmd.Flags().StringVar(&req.EnrollmentID, "enrollment", "", "advance only this enrollment, due or not")
	cmd.Flags().IntVar(&req.BatchSize, "batch-size", 0, "maximum enrollments to advance (0 uses engine.batch_size)")

	return cmd
}
