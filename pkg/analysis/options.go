package analysis

import (
	"log/slog"
	"time"

	"github.com/soundsift/soundsift/pkg/analysis/metrics"
	"github.com/soundsift/soundsift/pkg/analysis/signal"
)

// MetricConfig names one analysis to run, its options, and whether it is
// enabled. Configs are applied in slice order; that order is the metric
// iteration order within each file.
type MetricConfig struct {
	Name    string         `mapstructure:"name" json:"name"`
	Enabled bool           `mapstructure:"enabled" json:"enabled"`
	Options map[string]any `mapstructure:"options" json:"options,omitempty"`
}

// WorkItem identifies one input file eligible for processing. Immutable once
// created by enumeration; the identifier doubles as the state store key.
type WorkItem struct {
	// Path is the absolute path of the input file.
	Path string
	// ID is the stable identifier used for results and the state store.
	ID string
}

// Hooks receives status events during a batch run. Implementations MUST be
// thread-safe: methods are called concurrently from worker completions.
// Hook errors are logged and otherwise ignored; they never influence
// scheduling.
type Hooks interface {
	OnFileDiscovered(id string) error
	OnFileStatusUpdate(id string, status Status, message string, duration time.Duration) error
	OnProgress(completed, total int64, label string) error
	OnRunComplete(report Report) error
}

// NoOpHooks is the default, do-nothing Hooks implementation.
type NoOpHooks struct{}

func (NoOpHooks) OnFileDiscovered(string) error                                { return nil }
func (NoOpHooks) OnFileStatusUpdate(string, Status, string, time.Duration) error { return nil }
func (NoOpHooks) OnProgress(int64, int64, string) error                        { return nil }
func (NoOpHooks) OnRunComplete(Report) error                                   { return nil }

// StateStore is the durable record of completed work items. The engine is
// the only mutator during a run; reads may come from any goroutine.
// Load/Persist failures are fatal to the run: a store whose contents cannot
// be trusted makes resumability undecidable.
type StateStore interface {
	// Load reads the durable state from path. A missing file yields an
	// empty store and no error.
	Load(path string) error
	// IsComplete reports whether the identifier is recorded as done.
	IsComplete(id string) bool
	// MarkComplete records a successful completion. Append-only; entries
	// are never pruned automatically.
	MarkComplete(id string) error
	// Persist writes the current state durably to path.
	Persist(path string) error
}

// NoOpStateStore disables resume tracking: nothing is ever complete and
// nothing is persisted.
type NoOpStateStore struct{}

func (NoOpStateStore) Load(string) error         { return nil }
func (NoOpStateStore) IsComplete(string) bool    { return false }
func (NoOpStateStore) MarkComplete(string) error { return nil }
func (NoOpStateStore) Persist(string) error      { return nil }

// MetricRegistry resolves configured metric names to fresh Metric instances.
// *metrics.Registry is the default implementation.
type MetricRegistry interface {
	Get(name string) (metrics.Metric, error)
}

// ProcessorFactory builds the FileProcessor used by the engine's workers.
// Overridable for tests.
type ProcessorFactory func(opts *Options, loggerHandler slog.Handler, registry MetricRegistry) *FileProcessor

// ScannerFactory builds the Scanner used to enumerate eligible files.
// Overridable for tests.
type ScannerFactory func(opts *Options, loggerHandler slog.Handler) *Scanner

// Options holds all configuration for one batch run.
type Options struct {
	// --- Input selection ---
	InputPath      string   `mapstructure:"inputPath"`      // Required: directory of recordings
	Extension      string   `mapstructure:"extension"`      // Eligible file extension (default ".wav")
	Recursive      bool     `mapstructure:"recursive"`      // Walk subdirectories too
	IgnorePatterns []string `mapstructure:"ignore"`         // Glob patterns matched against base names

	// --- Analysis ---
	Metrics            []MetricConfig       `mapstructure:"metrics"`            // Ordered metric configuration
	ParallelChannels   bool                 `mapstructure:"parallelChannels"`   // Fan channels out concurrently within a file
	ChannelConcurrency int                  `mapstructure:"channelConcurrency"` // Bound for the channel fan-out (default 2)
	Calibration        map[string][]float64 `mapstructure:"-"`                  // Recording stem -> per-channel target levels (dB)

	// --- Scheduling & resume ---
	Concurrency   int    `mapstructure:"workers"`   // Worker pool size (0 = DefaultConcurrency)
	Force         bool   `mapstructure:"force"`     // Reprocess files already marked complete
	ResumeEnabled bool   `mapstructure:"resume"`    // Consult and update the state store
	StateFilePath string `mapstructure:"stateFile"` // Durable state location
	ProgressLabel string `mapstructure:"-"`         // Label for progress observations

	// --- Injected dependencies ---
	EventHooks       Hooks            `mapstructure:"-"` // Optional: status sink (NoOpHooks if nil)
	Logger           slog.Handler     `mapstructure:"-"` // Required: logging backend
	StateStore       StateStore       `mapstructure:"-"` // Optional: NoOpStateStore if resume disabled
	Registry         MetricRegistry   `mapstructure:"-"` // Optional: metrics.DefaultRegistry() if nil
	Loader           signal.Loader    `mapstructure:"-"` // Optional: WAV loader if nil
	ProcessorFactory ProcessorFactory `mapstructure:"-"` // Optional: for tests
	ScannerFactory   ScannerFactory   `mapstructure:"-"` // Optional: for tests
}
