package cli

import (
	"os/signal"
	"syscall"

	"github.com/prudhvinik1/possync/internal/app"
	"github.com/prudhvinik1/possync/internal/config"
	"github.com/prudhvinik1/possync/internal/logger"
	"github.com/prudhvinik1/possync/internal/watcher"
	"github.com/spf13/cobra"
)

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Forward MongoDB change-stream events to NocoDB",
		Long: `Open a change stream over the mapped MongoDB collections and push every
insert, update, replace and delete to NocoDB. Requires a replica set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Env)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			return watcher.New(a.Database, a.Registry, a.Sync, log).Run(ctx)
		},
	}
}
