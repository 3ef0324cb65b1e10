package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/sbginvoice/internal/calendar"
	"github.com/teemow/sbginvoice/internal/instrumentation"
	"github.com/teemow/sbginvoice/internal/invoice"
	"github.com/teemow/sbginvoice/internal/logging"
	"github.com/teemow/sbginvoice/internal/mail"
	"github.com/teemow/sbginvoice/internal/render"
)

// Stage names one step of the run.
type Stage string

const (
	StageAuthenticate Stage = "authenticate"
	StageFetch        Stage = "fetch"
	StageTransform    Stage = "transform"
	StageRender       Stage = "render"
	StageSend         Stage = "send"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageAuthenticate, StageFetch, StageTransform, StageRender, StageSend}

// EventSource lists the events of one month.
type EventSource interface {
	ListMonthEvents(ctx context.Context, calendarID string, year int, month time.Month) ([]calendar.Event, error)
}

// SourceFactory authenticates and returns a ready EventSource.
type SourceFactory func(ctx context.Context) (EventSource, error)

// Runner holds the collaborators of a run.
type Runner struct {
	CalendarID string
	OutputDir  string
	From       string
	To         string

	Connect  SourceFactory
	Renderer render.Renderer
	Mailer   mail.Mailer

	// DryRun renders the invoice but does not send it.
	DryRun bool

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// Result describes what a run produced.
type Result struct {
	Period     invoice.Period
	NoEvents   bool
	Rows       []invoice.Row
	TotalHours decimal.Decimal
	CSVPath    string
	PDFPath    string
	Sent       bool
}

// Run executes the pipeline for period. On failure the partial Result is
// returned alongside the error so callers can report files left on disk.
func (r *Runner) Run(ctx context.Context, period invoice.Period) (*Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logging.WithPeriod(logger, period.Label())

	ctx, span := instrumentation.StartSpan(ctx, "pipeline.run",
		attribute.String(instrumentation.SpanAttrPeriod, period.Label()))
	defer span.End()

	res := &Result{Period: period, TotalHours: decimal.Zero}
	err := r.run(ctx, logger, period, res)
	span.SetAttributes(attribute.Int(instrumentation.SpanAttrRows, len(res.Rows)))

	switch {
	case err != nil:
		instrumentation.SetSpanError(span, err)
		r.Metrics.RecordRun(ctx, instrumentation.RunResultError)
		logger.Error("Invoice run failed", logging.Err(err), "trace_id", instrumentation.GetTraceID(ctx))
	case res.NoEvents:
		instrumentation.SetSpanSuccess(span)
		r.Metrics.RecordRun(ctx, instrumentation.RunResultNoEvents)
	default:
		instrumentation.SetSpanSuccess(span)
		r.Metrics.RecordRun(ctx, instrumentation.RunResultSuccess)
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger, period invoice.Period, res *Result) error {
	var source EventSource
	err := r.stage(ctx, logger, StageAuthenticate, func(ctx context.Context) error {
		var err error
		source, err = r.Connect(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	var events []calendar.Event
	err = r.stage(ctx, logger, StageFetch, func(ctx context.Context) error {
		var err error
		events, err = source.ListMonthEvents(ctx, r.CalendarID, period.Year, period.Month)
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}
	logger.Info("Fetched calendar events", "count", len(events), logging.Calendar(r.CalendarID))

	if len(events) == 0 {
		res.NoEvents = true
		logger.Info("No events found, skipping invoice")
		r.skip(ctx, logger, StageTransform, StageRender, StageSend)
		return nil
	}

	outDir, err := filepath.Abs(r.OutputDir)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}
	csvPath := filepath.Join(outDir, period.CSVName())
	pdfPath := filepath.Join(outDir, period.PDFName())

	err = r.stage(ctx, logger, StageTransform, func(ctx context.Context) error {
		rows, err := invoice.BuildRows(events)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := invoice.WriteFile(csvPath, rows); err != nil {
			return err
		}
		res.Rows = rows
		res.TotalHours = invoice.TotalHours(rows)
		res.CSVPath = csvPath
		return nil
	})
	if err != nil {
		return fmt.Errorf("build invoice: %w", err)
	}
	hours, _ := res.TotalHours.Float64()
	r.Metrics.RecordInvoice(ctx, len(res.Rows), hours)
	logger.Info("Wrote invoice CSV", logging.Path(csvPath), "rows", len(res.Rows), "hours", res.TotalHours.StringFixed(2))

	err = r.stage(ctx, logger, StageRender, func(ctx context.Context) error {
		return r.Renderer.Render(ctx, render.Request{
			CSVPath:     csvPath,
			InvoiceDate: period.ISODate(),
			OutputPath:  pdfPath,
		})
	})
	if err != nil {
		return fmt.Errorf("render invoice: %w", err)
	}
	res.PDFPath = pdfPath

	if r.DryRun {
		logger.Info("Dry run, not sending invoice", logging.Path(pdfPath), logging.Domain(r.To))
		r.skip(ctx, logger, StageSend)
		return nil
	}

	err = r.stage(ctx, logger, StageSend, func(ctx context.Context) error {
		return r.Mailer.Send(ctx, mail.Message{
			From:           r.From,
			To:             r.To,
			Subject:        period.EmailSubject(),
			Body:           period.EmailBody(),
			AttachmentPath: pdfPath,
		})
	})
	if err != nil {
		return fmt.Errorf("send invoice: %w", err)
	}
	res.Sent = true
	return nil
}

// stage runs fn inside a span and records its duration and outcome.
func (r *Runner) stage(ctx context.Context, logger *slog.Logger, stage Stage, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartStageSpan(ctx, string(stage))
	defer span.End()

	logger = logging.WithStage(logger, string(stage))
	logger.Debug("Stage started")

	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started)

	if err != nil {
		instrumentation.SetSpanError(span, err)
		r.Metrics.RecordStage(ctx, string(stage), instrumentation.StatusError, elapsed)
		logger.Error("Stage failed", logging.Duration(elapsed), logging.Status(logging.StatusError), logging.Err(err))
		return err
	}

	instrumentation.SetSpanSuccess(span)
	r.Metrics.RecordStage(ctx, string(stage), instrumentation.StatusSuccess, elapsed)
	logger.Debug("Stage finished", logging.Duration(elapsed), logging.Status(logging.StatusSuccess))
	return nil
}

func (r *Runner) skip(ctx context.Context, logger *slog.Logger, stages ...Stage) {
	for _, s := range stages {
		r.Metrics.RecordStage(ctx, string(s), instrumentation.StatusSkipped, 0)
		logging.WithStage(logger, string(s)).Debug("Stage skipped", logging.Status(logging.StatusSkipped))
	}
}
