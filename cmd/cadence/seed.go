package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/velmie/cadence/internal/config"
	"github.com/velmie/cadence/memory"
	"github.com/velmie/cadence/mysql"
)

type seedResult struct {
	Leads     int `json:"leads"`
	Cadences  int `json:"cadences"`
	Campaigns int `json:"campaigns"`
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the seed section of the config into the store",
		Long: `Upsert the leads and cadences of the config seed section.

The memory store is seeded on every start, so this command is mostly useful
with MySQL. Campaign rows are created by the first enrollment that names them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) (any, error) {
				if a.mysql == nil {
					return seedResult{
						Leads:     len(a.cfg.Seed.Leads),
						Cadences:  len(a.cfg.Seed.Cadences),
						Campaigns: len(a.cfg.Seed.Campaigns),
					}, nil
				}
				return seed(ctx, a.mysql, a.cfg.Seed)
			})
		},
	}
}

// seed writes the seed section into a memory or MySQL store.
func seed(ctx context.Context, store any, s config.SeedConfig) (seedResult, error) {
	var res seedResult
	switch st := store.(type) {
	case *memory.Store:
		for _, id := range s.Campaigns {
			st.PutCampaign(id)
			res.Campaigns++
		}
		for _, l := range s.Leads {
			st.PutLead(l.Lead())
			res.Leads++
		}
		for _, c := range s.Cadences {
			st.PutCadence(c.Cadence())
			res.Cadences++
		}
	case *mysql.Store:
		for _, l := range s.Leads {
			if err := st.UpsertLead(ctx, l.Lead()); err != nil {
				return res, fmt.Errorf("seed lead %s: %w", l.ID, err)
			}
			res.Leads++
		}
		for _, c := range s.Cadences {
			if err := st.UpsertCadence(ctx, c.Cadence()); err != nil {
				return res, fmt.Errorf("seed cadence %s: %w", c.ID, err)
			}
			res.Cadences++
		}
	default:
		return res, fmt.Errorf("seed: unsupported store %T", store)
	}

	return res, nil
}
