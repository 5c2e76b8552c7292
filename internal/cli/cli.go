// Package cli wires the validated configuration into a running engine and
// routes engine events to the selected frontend: the interactive TUI, a
// progress bar, or structured logs.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/soundsift/soundsift/internal/cli/config"
	"github.com/soundsift/soundsift/internal/cli/hooks"
	"github.com/soundsift/soundsift/internal/cli/ui"
	"github.com/soundsift/soundsift/pkg/analysis"
	"github.com/soundsift/soundsift/pkg/analysis/state"
)

// barAdapter adapts *progressbar.ProgressBar to the hooks.ProgressBar
// interface; Describe and ChangeMax on the underlying bar return nothing.
type barAdapter struct {
	bar *progressbar.ProgressBar
}

func (b *barAdapter) Set(num int) error {
	return b.bar.Set(num)
}

func (b *barAdapter) ChangeMax(num int) error {
	if num != b.bar.GetMax() {
		b.bar.ChangeMax(num)
	}
	return nil
}

func (b *barAdapter) Describe(description string) error {
	b.bar.Describe(description)
	return nil
}

func (b *barAdapter) Close() error {
	return b.bar.Close()
}

type engineOutcome struct {
	report analysis.Report
	err    error
}

// Run executes a full analysis batch with the given settings and writes the
// final report. It blocks until the run completes or ctx is cancelled.
func Run(ctx context.Context, settings config.Settings, logger *slog.Logger) error {
	opts := settings.Opts

	if opts.ResumeEnabled && opts.StateStore == nil {
		opts.StateStore = state.NewFileStateStore(opts.Logger, settings.AppVersion, settings.StateFormat)
	}

	interactive := term.IsTerminal(int(os.Stderr.Fd()))
	tuiActive := settings.TuiEnabled && interactive && !settings.Verbose

	var outcome engineOutcome
	if tuiActive {
		outcome = runWithTUI(ctx, opts, settings, logger)
	} else {
		outcome = runPlain(ctx, opts, settings, logger, interactive)
	}

	if outcome.err != nil {
		logger.Error("Analysis run failed", slog.Any("error", outcome.err))
		return outcome.err
	}

	if err := writeReport(outcome.report, settings, logger); err != nil {
		return err
	}

	if failed := outcome.report.Summary.FailedCount; failed > 0 {
		return fmt.Errorf("%d file(s) failed analysis", failed)
	}
	return nil
}

// runWithTUI hosts the engine behind a Bubble Tea program. The engine runs in
// a goroutine and reports through the hooks; quitting the TUI early cancels
// the run.
func runWithTUI(ctx context.Context, opts analysis.Options, settings config.Settings, logger *slog.Logger) engineOutcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(settings.AppVersion)
	program := tea.NewProgram(&model,
		tea.WithOutput(os.Stderr),
		tea.WithContext(ctx),
	)

	opts.EventHooks = hooks.NewCLIHooks(logger, true, false, program, nil)

	engine, err := analysis.NewEngine(ctx, opts)
	if err != nil {
		return engineOutcome{err: err}
	}

	done := make(chan engineOutcome, 1)
	go func() {
		report, runErr := engine.Run()
		done <- engineOutcome{report: report, err: runErr}
		program.Quit()
	}()

	if _, teaErr := program.Run(); teaErr != nil && !errors.Is(teaErr, tea.ErrProgramKilled) {
		logger.Warn("TUI terminated abnormally", slog.Any("error", teaErr))
	}
	// The user may have quit before the engine finished; unblock it.
	cancel()
	return <-done
}

// runPlain hosts the engine behind a progress bar on a TTY, or plain logs
// otherwise.
func runPlain(ctx context.Context, opts analysis.Options, settings config.Settings, logger *slog.Logger, interactive bool) engineOutcome {
	var bar hooks.ProgressBar
	if interactive && !settings.Verbose {
		bar = &barAdapter{bar: progressbar.NewOptions(-1,
			progressbar.OptionSetDescription(opts.ProgressLabel),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(65 * time.Millisecond),
		)}
	}

	opts.EventHooks = hooks.NewCLIHooks(logger, false, settings.Verbose, nil, bar)

	engine, err := analysis.NewEngine(ctx, opts)
	if err != nil {
		return engineOutcome{err: err}
	}
	report, runErr := engine.Run()
	return engineOutcome{report: report, err: runErr}
}

// writeReport emits the final report in the configured format. JSON goes to
// the output path or stdout; the text summary goes to the output path or
// stderr so it never mixes with piped JSON.
func writeReport(report analysis.Report, settings config.Settings, logger *slog.Logger) error {
	var out io.Writer
	var closeFn func() error

	if settings.OutputPath != "" {
		f, err := os.Create(settings.OutputPath)
		if err != nil {
			logger.Error("Failed to create report file", slog.String("path", settings.OutputPath), slog.Any("error", err))
			return fmt.Errorf("create report file '%s': %w", settings.OutputPath, err)
		}
		out = f
		closeFn = f.Close
	} else if settings.OutputFormat == "json" {
		out = os.Stdout
	} else {
		out = os.Stderr
	}

	var writeErr error
	switch settings.OutputFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		writeErr = encoder.Encode(report)
	default:
		writeErr = writeTextSummary(out, report)
	}

	if closeFn != nil {
		if cerr := closeFn(); writeErr == nil {
			writeErr = cerr
		}
	}
	if writeErr != nil {
		logger.Error("Failed to write report", slog.Any("error", writeErr))
		return fmt.Errorf("write report: %w", writeErr)
	}
	if settings.OutputPath != "" {
		logger.Info("Report written", slog.String("path", settings.OutputPath))
	}
	return nil
}

// writeTextSummary renders the human-readable run summary, including the
// first error of every failed file.
func writeTextSummary(w io.Writer, report analysis.Report) error {
	s := report.Summary
	if _, err := fmt.Fprintf(w,
		"\nAnalysis complete in %.2fs\n  Input:      %s\n  Discovered: %d\n  Analyzed:   %d\n  Skipped:    %d\n  Failed:     %d\n",
		s.DurationSeconds, s.InputPath, s.TotalDiscovered, s.ProcessedCount, s.SkippedCount, s.FailedCount,
	); err != nil {
		return err
	}

	if report.Results == nil {
		return nil
	}
	failed := report.Results.FailedIDs()
	if len(failed) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "\nFailed files:\n"); err != nil {
		return err
	}
	for _, id := range failed {
		detail := ""
		if res, ok := report.Results.FileResult(id); ok {
			if errs := res.Errors(); len(errs) > 0 {
				detail = errs[0]
			}
		}
		if _, err := fmt.Fprintf(w, "  %s: %s\n", id, detail); err != nil {
			return err
		}
	}
	return nil
}
