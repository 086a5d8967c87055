package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/congo-pay/safetext/internal/config"
	"github.com/congo-pay/safetext/internal/infra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			if cfg.DatabaseURL == "" {
				return WrapExitError(ExitCommandError, "invalid configuration", errors.New("DATABASE_URL must be set"))
			}

			ctx := commandContext(cmd)
			db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := infra.Migrate(ctx, db); err != nil {
				return err
			}
			version, err := infra.MigrationVersion(ctx, db)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.Out, "database at version %d\n", version)
			return nil
		},
	}
}
