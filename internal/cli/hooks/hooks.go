// Package hooks bridges engine events to the CLI's presentation layer: the
// Bubble Tea TUI when running interactively, a progress bar on a plain TTY,
// or structured logs in verbose mode.
package hooks

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/soundsift/soundsift/pkg/analysis"
)

// --- TUI message structs ---

// FileDiscoveredMsg signals that an eligible file was found during scanning.
type FileDiscoveredMsg struct{ ID string }

// FileStatusUpdateMsg signals a change in a file's processing status.
type FileStatusUpdateMsg struct {
	ID       string
	Status   analysis.Status
	Message  string
	Duration time.Duration
}

// ProgressMsg carries the monotonic completion counter.
type ProgressMsg struct {
	Completed int64
	Total     int64
	Label     string
}

// RunCompleteMsg signals the completion of the entire batch run.
type RunCompleteMsg struct{ Report analysis.Report }

// TUIProgram is the slice of tea.Program the hooks need.
type TUIProgram interface {
	Send(msg tea.Msg)
}

// ProgressBar is the slice of the progress bar the hooks need. The engine
// reports absolute completion counts, so the bar is driven with Set rather
// than increments; the total is only known after scanning and arrives with
// the first progress event.
type ProgressBar interface {
	Set(num int) error
	ChangeMax(num int) error
	Describe(description string) error
	Close() error
}

// NoOpTUIProgram is the null TUIProgram.
type NoOpTUIProgram struct{}

func (n *NoOpTUIProgram) Send(msg tea.Msg) {}

// NoOpProgressBar is the null ProgressBar.
type NoOpProgressBar struct{}

func (n *NoOpProgressBar) Set(num int) error                 { return nil }
func (n *NoOpProgressBar) ChangeMax(num int) error           { return nil }
func (n *NoOpProgressBar) Describe(description string) error { return nil }
func (n *NoOpProgressBar) Close() error                      { return nil }

// CLIHooks implements analysis.Hooks. Methods are called concurrently from
// worker completions; the progress bar is the only shared mutable piece and
// is guarded by a mutex.
type CLIHooks struct {
	logger         *slog.Logger
	tuiEnabled     bool
	verboseEnabled bool
	tuiProgram     TUIProgram
	progressBar    ProgressBar
	mu             sync.Mutex
}

// NewCLIHooks creates the hooks sink. Pass nil for tuiProgram or progressBar
// when not applicable; no-op versions are substituted.
func NewCLIHooks(logger *slog.Logger, tuiEnabled, verboseEnabled bool, tuiProg TUIProgram, progBar ProgressBar) analysis.Hooks {
	if tuiProg == nil {
		tuiProg = &NoOpTUIProgram{}
	}
	if progBar == nil {
		progBar = &NoOpProgressBar{}
	}
	return &CLIHooks{
		logger:         logger,
		tuiEnabled:     tuiEnabled,
		verboseEnabled: verboseEnabled,
		tuiProgram:     tuiProg,
		progressBar:    progBar,
	}
}

// OnFileDiscovered handles a file found during scanning.
func (h *CLIHooks) OnFileDiscovered(id string) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(FileDiscoveredMsg{ID: id})
	} else if h.verboseEnabled {
		h.logger.Debug("File discovered", "id", id)
	}
	return nil
}

// OnFileStatusUpdate handles per-file status transitions. Thread-safe.
func (h *CLIHooks) OnFileStatusUpdate(id string, status analysis.Status, message string, duration time.Duration) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(FileStatusUpdateMsg{
			ID:       id,
			Status:   status,
			Message:  message,
			Duration: duration,
		})
		return nil
	}

	if h.verboseEnabled {
		logLevel := slog.LevelDebug
		logMsg := "File status updated"
		attrs := []any{
			slog.String("id", id),
			slog.String("status", string(status)),
		}
		if duration > 0 {
			attrs = append(attrs, slog.Duration("duration", duration))
		}
		if message != "" {
			logKey := "message"
			if status == analysis.StatusFailed {
				logKey = "error"
			}
			attrs = append(attrs, slog.String(logKey, message))
		}
		switch status {
		case analysis.StatusSuccess, analysis.StatusSkipped:
			logLevel = slog.LevelInfo
		case analysis.StatusFailed:
			logLevel = slog.LevelError
			logMsg = "File analysis failed"
		}
		h.logger.Log(nil, logLevel, logMsg, attrs...)
		return nil
	}

	// Progress bar mode still surfaces failures on the log stream; the bar
	// itself advances from OnProgress.
	if status == analysis.StatusFailed {
		h.logger.Error("File analysis failed", "id", id, "error", message)
	}
	return nil
}

// OnProgress advances the progress bar (or the TUI counter) to the absolute
// completion count.
func (h *CLIHooks) OnProgress(completed, total int64, label string) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(ProgressMsg{Completed: completed, Total: total, Label: label})
		return nil
	}
	if h.verboseEnabled {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.progressBar.ChangeMax(int(total))
	_ = h.progressBar.Set(int(completed))
	return nil
}

// OnRunComplete forwards the final report to the TUI or finalizes the bar.
// Text summary output is handled by the CLI after the engine returns.
func (h *CLIHooks) OnRunComplete(report analysis.Report) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(RunCompleteMsg{Report: report})
		return nil
	}
	h.mu.Lock()
	_ = h.progressBar.Close()
	h.mu.Unlock()
	if !h.verboseEnabled {
		// Newline after the bar so the summary does not overlap it.
		_, _ = fmt.Fprintf(os.Stderr, "\n")
	}
	return nil
}
