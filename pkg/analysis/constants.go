package analysis

// Defaults applied by NewEngine when the corresponding Options field is
// unset. The CLI layer binds these to flags so the two stay in sync.
const (
	// DefaultConcurrency is the bounded worker pool size for per-file work.
	DefaultConcurrency = 4

	// DefaultChannelConcurrency bounds the inner per-channel fan-out of a
	// single file when parallel channel mode is enabled.
	DefaultChannelConcurrency = 2

	// DefaultExtension filters which files in the input directory are
	// eligible work items.
	DefaultExtension = ".wav"

	// DefaultProgressLabel is the human-readable label attached to progress
	// observations.
	DefaultProgressLabel = "Processing files"
)
