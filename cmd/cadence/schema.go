package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/velmie/cadence/internal/config"
	"github.com/velmie/cadence/mysql"
)

func newSchemaCommand(opts *rootOptions) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print or apply the MySQL schema",
		Long: `Print the MySQL DDL for the configured table names.

With --apply the statements are executed against --dsn instead. Every
statement is CREATE TABLE IF NOT EXISTS, so applying twice is safe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !apply {
				ddl, err := mysql.Schema(opts.cfg.Store.Tables)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), ddl)
				return err
			}

			if opts.cfg.Store.Driver != config.DriverMySQL {
				return fmt.Errorf("schema --apply requires the mysql store")
			}
			statements, err := mysql.SchemaStatements(opts.cfg.Store.Tables)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			for _, stmt := range statements {
				if _, err := a.db.ExecContext(cmd.Context(), stmt); err != nil {
					return fmt.Errorf("apply schema: %w", err)
				}
			}
			a.logger.Info("schema applied", "statements", len(statements))

			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "execute the DDL against the configured database")

	return cmd
}
