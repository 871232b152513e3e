package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"gibiertrace/internal/core"
	"gibiertrace/internal/infra/persistence/postgres"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			storage := opts.config.Storage
			if storage.Driver != core.StoragePostgres {
				return fmt.Errorf("migrate requires storage.driver %q, got %q", core.StoragePostgres, storage.Driver)
			}
			db, err := postgres.Open(storage.PostgresDSN)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			opts.logger.Info("migrations applied")
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
}
