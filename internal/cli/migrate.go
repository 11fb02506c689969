package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"dailyaed/internal/config"
	"dailyaed/internal/storage"
)

func newMigrateCmd(d deps) *cobra.Command {
	return LeafCommand{
		Use:   "migrate",
		Short: "Apply database migrations for the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}
			return runMigrate(cmd.OutOrStdout(), cfg, storage.Migrate)
		},
	}.Build()
}

func runMigrate(w io.Writer, cfg *config.Config, migrate func(backend, dsn string) error) error {
	var dsn string
	switch cfg.DataBackend {
	case config.BackendSQLite:
		dsn = cfg.SQLiteDBPath
	case config.BackendPostgres:
		dsn = cfg.PostgresDSN
	default:
		fmt.Fprintf(w, "Backend %q has no schema to migrate\n", cfg.DataBackend)
		return nil
	}

	if err := migrate(cfg.DataBackend, dsn); err != nil {
		return err
	}
	fmt.Fprintf(w, "Migrations applied (%s)\n", cfg.DataBackend)
	return nil
}
