package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prudhvinik1/possync/internal/services"
	"github.com/spf13/cobra"
)

type tokenOptions struct {
	Subject string
	Secret  string
	TTL     time.Duration
}

func NewTokenCommand() *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the MongoDB change endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := opts.Secret
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("JWT_SECRET is not set and --secret was not given")
			}
			token, err := services.NewDispatcherAuth(secret).GenerateToken(opts.Subject, opts.TTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "dispatcher name recorded in the token")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "signing secret (defaults to JWT_SECRET)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 365*24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
