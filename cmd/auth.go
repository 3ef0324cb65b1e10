package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/sbginvoice/internal/google"
)

func newAuthCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize calendar access and cache the token",
		Long: `Run the credential check on its own: use the cached token if it is still
valid, refresh it if possible, and otherwise open the interactive consent
flow. The resulting token is saved so scheduled runs do not need a terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger := newLogger()
			cfg, err := loadConfig(logger)
			if err != nil {
				return err
			}
			if err := cfg.ValidateGoogle(); err != nil {
				return err
			}

			provider, err := newInstrumentation(ctx)
			if err != nil {
				return err
			}
			defer shutdownInstrumentation(provider, logger)

			credentials, err := newCredentialProvider(cfg, logger, provider.Metrics())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if force {
				if _, err := credentials.Reauthorize(ctx); err != nil {
					return err
				}
				fmt.Fprintf(out, "Authorized. Token saved to %s\n", cfg.Google.TokenPath)
				return nil
			}

			_, state, err := credentials.Authenticate(ctx)
			if err != nil {
				return err
			}
			if state == google.StateValid {
				fmt.Fprintf(out, "Cached token in %s is valid.\n", cfg.Google.TokenPath)
				return nil
			}
			fmt.Fprintf(out, "Credentials ready. Token saved to %s\n", cfg.Google.TokenPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Ignore the cached token and authorize again")

	return cmd
}
