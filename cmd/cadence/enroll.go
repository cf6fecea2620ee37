package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/velmie/cadence"
)

type enrollOptions struct {
	leadID     string
	leadIDs    []string
	cadenceID  string
	campaignID string
	now        bool
}

func newEnrollCommand(opts *rootOptions) *cobra.Command {
	eo := &enrollOptions{}

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Enroll one lead into a cadence",
		Example: `  cadence enroll --lead L1 --cadence warm-outreach
  cadence enroll --lead L1 --cadence warm-outreach --campaign spring --now`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) (any, error) {
				return a.engine.Enroll(ctx, cadence.EnrollRequest{
					LeadID:           eo.leadID,
					CadenceID:        eo.cadenceID,
					CampaignID:       eo.campaignID,
					StartImmediately: eo.now,
				})
			})
		},
	}

	cmd.Flags().StringVar(&eo.leadID, "lead", "", "lead id (required)")
	eo.bind(cmd)
	_ = cmd.MarkFlagRequired("lead")

	return cmd
}

func newEnrollBulkCommand(opts *rootOptions) *cobra.Command {
	eo := &enrollOptions{}

	cmd := &cobra.Command{
		Use:   "enroll-bulk",
		Short: "Enroll many leads into a cadence",
		Long: `Enroll many leads into a cadence.

Every lead is attempted; failures are reported per lead in the errors list
and never stop the remaining leads.`,
		Example: `  cadence enroll-bulk --leads L1,L2,L3 --cadence warm-outreach`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) (any, error) {
				return a.engine.EnrollBulk(ctx, cadence.BulkEnrollRequest{
					LeadIDs:          eo.leadIDs,
					CadenceID:        eo.cadenceID,
					CampaignID:       eo.campaignID,
					StartImmediately: eo.now,
				})
			})
		},
	}

	cmd.Flags().StringSliceVar(&eo.leadIDs, "leads", nil, "comma separated lead ids (required)")
	eo.bind(cmd)
	_ = cmd.MarkFlagRequired("leads")

	return cmd
}

func (eo *enrollOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&eo.cadenceID, "cadence", "", "cadence id (required)")
	cmd.Flags().StringVar(&eo.campaignID, "campaign", "", "campaign id")
	cmd.Flags().BoolVar(&eo.now, "now", false, "make the first step due now and advance it")
	_ = cmd.MarkFlagRequired("cadence")
}
