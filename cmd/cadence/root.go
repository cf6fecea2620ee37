package main

import (
	"github.com/spf13/cobra"

	"github.com/velmie/cadence/internal/config"
)

type rootOptions struct {
	configPath string
	store      string
	dsn        string
	logLevel   string

	cfg config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cadence",
		Short: "Multi-step outreach cadence engine",
		Long: `Enrolls leads into multi-channel outreach cadences, advances each enrollment
on schedule and hands every due step to the automation engine.

Configuration is read from --config (YAML) and CADENCE_* environment variables.
Flags take precedence over both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.store, "store", "", "store driver (memory|mysql)")
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "MySQL DSN, e.g. user:pass@tcp(host:3306)/db?parseTime=true")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newEnrollCommand(opts))
	cmd.AddCommand(newEnrollBulkCommand(opts))
	cmd.AddCommand(newRunBatchCommand(opts))
	cmd.AddCommand(newSchemaCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))

	return cmd
}

func (o *rootOptions) load() error {
	cfg, err := config.Load(o.configPath, func(c *config.Config) {
		if o.store != "" {
			c.Store.Driver = o.store
		}
		if o.dsn != "" {
			c.Store.DSN = o.dsn
		}
		if o.logLevel != "" {
			c.Logging.Level = o.logLevel
		}
	})
	if err != nil {
		return err
	}
	o.cfg = cfg

	return nil
}
