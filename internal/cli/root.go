package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command of the syncctl operator tool.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Operator tool for the POS mirror sync service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewWatchCommand())
	cmd.AddCommand(NewTokenCommand())
	cmd.AddCommand(NewHashSecretCommand())

	return cmd
}
