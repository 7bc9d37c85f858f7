package cli

import (
	"fmt"

	"github.com/prudhvinik1/possync/internal/app"
	"github.com/prudhvinik1/possync/internal/config"
	"github.com/spf13/cobra"
)

func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply sync ledger migrations",
		Long:  "Apply the sync ledger migrations to DATABASE_URL, or to SQLITE_PATH when no Postgres URL is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if err := app.Migrate(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ledger migrations applied")
			return nil
		},
	}
}
