package analysis

import "errors"

// Exported error variables. These represent the categories of failure a
// batch run distinguishes; callers can test against them with errors.Is.
var (
	// ErrConfigValidation indicates the Options struct failed validation at
	// engine construction. Returned directly as a fatal error by NewEngine.
	ErrConfigValidation = errors.New("invalid engine options")

	// ErrScanFailed indicates the input directory could not be enumerated.
	// The run cannot start, so this is fatal.
	ErrScanFailed = errors.New("failed to enumerate input directory")

	// ErrLoadFailed indicates a single input file could not be read or
	// decoded. Fatal for that file only; absorbed into its result.
	ErrLoadFailed = errors.New("failed to load input file")

	// ErrMetricResolution indicates a configured metric name is unknown or
	// its options were rejected. Fatal for the file's remaining metrics,
	// not for sibling files.
	ErrMetricResolution = errors.New("failed to resolve metric")

	// ErrCalculation indicates a metric's calculation failed for a channel.
	// On the sequential path it is recorded at the channel level; surfaced
	// from the parallel join it aborts the file's remaining metrics.
	ErrCalculation = errors.New("metric calculation failed")

	// ErrStateStore indicates the durable state store failed. Resumability
	// can no longer be determined, so the error is fatal to the run and
	// propagated to the caller rather than absorbed.
	ErrStateStore = errors.New("state store failure")
)
