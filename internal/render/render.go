package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/teemow/sbginvoice/internal/logging"
)

// stderrTail bounds how much renderer stderr is kept on a RenderError.
const stderrTail = 4096

// ErrMissingOutput is wrapped by a RenderError when the renderer exited
// cleanly without producing the PDF.
var ErrMissingOutput = errors.New("renderer did not produce the output file")

// Request is one rendering job.
type Request struct {
	CSVPath string
	// InvoiceDate is the first day of the month as YYYY-MM-DD.
	InvoiceDate string
	OutputPath  string
}

// Args returns the positional arguments passed after the script.
func (r Request) Args() []string {
	return []string{r.CSVPath, r.InvoiceDate, r.OutputPath}
}

// Renderer produces a PDF for a request.
type Renderer interface {
	Render(ctx context.Context, req Request) error
}

// RenderError reports a failed renderer run. ExitCode is -1 when the
// process could not be started or was killed.
type RenderError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RenderError) Error() string {
	msg := fmt.Sprintf("invoice renderer failed (exit code %d): %v", e.ExitCode, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// CommandRenderer runs the generator as a child process.
type CommandRenderer struct {
	Command string
	Script  string
	WorkDir string
	Logger  *slog.Logger
}

// Render runs the generator synchronously and checks its output.
func (r *CommandRenderer) Render(ctx context.Context, req Request) error {
	logger := r.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logging.WithOperation(logger, "render")

	args := req.Args()
	if r.Script != "" {
		args = append([]string{r.Script}, args...)
	}

	cmd := exec.CommandContext(ctx, r.Command, args...)
	cmd.Dir = r.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// A PDF left by an earlier run must not pass the output check below.
	if err := os.Remove(req.OutputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &RenderError{ExitCode: -1, Err: fmt.Errorf("failed to remove previous output: %w", err)}
	}

	logger.Debug("Running invoice renderer", "command", r.Command, "args", args, logging.Path(r.WorkDir))

	started := time.Now()
	err := cmd.Run()
	if out := strings.TrimSpace(stdout.String()); out != "" {
		logger.Debug("Renderer output", "stdout", out)
	}

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		rerr := &RenderError{ExitCode: exitCode, Stderr: tail(stderr.String(), stderrTail), Err: err}
		logger.Error("Invoice renderer failed", "exit_code", exitCode, logging.Err(err))
		return rerr
	}

	if _, err := os.Stat(req.OutputPath); err != nil {
		return &RenderError{
			ExitCode: 0,
			Stderr:   tail(stderr.String(), stderrTail),
			Err:      fmt.Errorf("%w: %s", ErrMissingOutput, req.OutputPath),
		}
	}

	logger.Info("Rendered invoice", logging.Path(req.OutputPath), logging.Duration(time.Since(started)))
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
