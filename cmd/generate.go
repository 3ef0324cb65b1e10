package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/sbginvoice/internal/calendar"
	"github.com/teemow/sbginvoice/internal/clock"
	"github.com/teemow/sbginvoice/internal/config"
	"github.com/teemow/sbginvoice/internal/google"
	"github.com/teemow/sbginvoice/internal/instrumentation"
	"github.com/teemow/sbginvoice/internal/invoice"
	"github.com/teemow/sbginvoice/internal/logging"
	"github.com/teemow/sbginvoice/internal/mail"
	"github.com/teemow/sbginvoice/internal/pipeline"
	"github.com/teemow/sbginvoice/internal/render"
)

// periodFlags are the raw --month/--year values. Unset flags fall back to
// the current month.
type periodFlags struct {
	month    int
	year     int
	monthSet bool
	yearSet  bool
}

func (f periodFlags) resolve(c clock.Clock) (invoice.Period, error) {
	current := invoice.CurrentPeriod(c)
	month, year := int(current.Month), current.Year
	if f.monthSet {
		month = f.month
	}
	if f.yearSet {
		year = f.year
	}
	return invoice.NewPeriod(year, month)
}

func newGenerateCmd() *cobra.Command {
	var (
		flags  periodFlags
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the invoice for a month and email it",
		Long: `Fetch all calendar events of the month, write the invoice CSV, render the
PDF with the external generator and email it to the configured recipient.

Without flags the current month is invoiced:
  sbginvoice generate                # current month
  sbginvoice generate -m 10          # October of the current year
  sbginvoice generate -m 12 -y 2023  # December 2023`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.monthSet = cmd.Flags().Changed("month")
			flags.yearSet = cmd.Flags().Changed("year")

			period, err := flags.resolve(clock.SystemClock{})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runGenerate(ctx, cmd.OutOrStdout(), period, dryRun)
		},
	}

	cmd.Flags().IntVarP(&flags.month, "month", "m", 0, "Month to invoice, 1-12 (default: current month)")
	cmd.Flags().IntVarP(&flags.year, "year", "y", 0, "Year to invoice (default: current year)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Write and render the invoice but do not send the email")

	return cmd
}

func runGenerate(ctx context.Context, out io.Writer, period invoice.Period, dryRun bool) error {
	logger := newLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Generating invoice for %s\n", period.Label())

	provider, err := newInstrumentation(ctx)
	if err != nil {
		return err
	}
	defer shutdownInstrumentation(provider, logger)
	metrics := provider.Metrics()

	credentials, err := newCredentialProvider(cfg, logger, metrics)
	if err != nil {
		return err
	}

	runner := &pipeline.Runner{
		CalendarID: cfg.Calendar.ID,
		OutputDir:  cfg.OutputPath(),
		From:       cfg.Mail.From,
		To:         cfg.Mail.To,
		Connect: func(ctx context.Context) (pipeline.EventSource, error) {
			ts, err := credentials.TokenSource(ctx)
			if err != nil {
				return nil, err
			}
			client, err := calendar.NewClientFromTokenSource(ctx, ts)
			if err != nil {
				return nil, err
			}
			return client.WithMetrics(metrics), nil
		},
		Renderer: &render.CommandRenderer{
			Command: cfg.Renderer.Command,
			Script:  cfg.ScriptPath(),
			WorkDir: cfg.Renderer.WorkDir,
			Logger:  logger,
		},
		Mailer: &mail.SMTPMailer{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.From,
			Password: cfg.Mail.Password,
			Logger:   logger,
		},
		DryRun:  dryRun,
		Logger:  logger,
		Metrics: metrics,
	}

	res, err := runner.Run(ctx, period)
	if err != nil {
		if res != nil && res.CSVPath != "" {
			logger.Info("Invoice files kept on disk", logging.Path(res.CSVPath), "pdf", res.PDFPath)
		}
		return err
	}

	switch {
	case res.NoEvents:
		fmt.Fprintln(out, "No events found for that month.")
	case dryRun:
		fmt.Fprintf(out, "Generated invoice (dry run, not emailed): %s\n", res.PDFPath)
	default:
		fmt.Fprintf(out, "Generated and emailed invoice: %s\n", res.PDFPath)
	}
	return nil
}

func newInstrumentation(ctx context.Context) (*instrumentation.Provider, error) {
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	return provider, nil
}

// shutdownInstrumentation flushes exporters on a fresh context so an
// interrupted run still pushes what it recorded.
func shutdownInstrumentation(provider *instrumentation.Provider, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		logger.Warn("Error during instrumentation shutdown", logging.Err(err))
	}
}

func newCredentialProvider(cfg config.Config, logger *slog.Logger, metrics *instrumentation.Metrics) (*google.CredentialProvider, error) {
	creds := google.ClientCredentials{
		ClientID:     cfg.Google.ClientID,
		ProjectID:    cfg.Google.ProjectID,
		ClientSecret: cfg.Google.ClientSecret,
	}
	conf, err := creds.OAuthConfig()
	if err != nil {
		return nil, err
	}

	return google.NewCredentialProvider(conf, google.NewTokenCache(cfg.Google.TokenPath),
		google.WithAuthorizer(&google.LoopbackAuthorizer{Port: cfg.Google.OAuthPort, Out: os.Stderr}),
		google.WithLogger(logger),
		google.WithMetrics(metrics),
	), nil
}
