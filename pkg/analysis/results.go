package analysis

import (
	"bytes"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/soundsift/soundsift/pkg/analysis/metrics"
)

// ChannelResult is the outcome of applying one configured metric to one
// channel: the channel label it was computed for, the metric's value, and an
// optional error message when the calculation failed.
type ChannelResult struct {
	Channel string        `json:"channel"`
	Value   metrics.Value `json:"value,omitempty"`
	Err     string        `json:"error,omitempty"`
}

// OK reports whether the channel computation succeeded.
func (r ChannelResult) OK() bool { return r.Err == "" }

// MultiChannelResult maps channel labels to ChannelResults for a single
// metric. Insertion order is preserved for rendering; it carries exactly one
// entry per channel that was attempted, whether or not it succeeded.
type MultiChannelResult struct {
	order    []string
	channels map[string]ChannelResult
}

// NewMultiChannelResult returns an empty per-metric result.
func NewMultiChannelResult() *MultiChannelResult {
	return &MultiChannelResult{channels: make(map[string]ChannelResult)}
}

// Add records the result for a channel label, replacing any previous entry
// under the same label without duplicating it in the order.
func (m *MultiChannelResult) Add(res ChannelResult) {
	if _, seen := m.channels[res.Channel]; !seen {
		m.order = append(m.order, res.Channel)
	}
	m.channels[res.Channel] = res
}

// Channel returns the result recorded for the given label.
func (m *MultiChannelResult) Channel(label string) (ChannelResult, bool) {
	res, ok := m.channels[label]
	return res, ok
}

// Channels returns the channel labels in insertion order.
func (m *MultiChannelResult) Channels() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Len returns the number of recorded channels.
func (m *MultiChannelResult) Len() int { return len(m.order) }

// MarshalJSON renders the channels as an object in insertion order.
func (m *MultiChannelResult) MarshalJSON() ([]byte, error) {
	return marshalOrderedObject(m.order, func(key string) any { return m.channels[key] })
}

// FileAnalysisResults collects everything known about one input file: its
// per-metric results in configuration order and the errors accumulated while
// processing it. Errors and metric results can coexist; partial success is
// expected and representable.
type FileAnalysisResults struct {
	FilePath string

	metricOrder []string
	metrics     map[string]*MultiChannelResult
	errors      []string
}

// NewFileAnalysisResults returns an empty result set for the given file.
func NewFileAnalysisResults(filePath string) *FileAnalysisResults {
	return &FileAnalysisResults{
		FilePath: filePath,
		metrics:  make(map[string]*MultiChannelResult),
	}
}

// AddMetricResult records the per-channel results for a metric, keeping
// configuration order.
func (f *FileAnalysisResults) AddMetricResult(name string, res *MultiChannelResult) {
	if _, seen := f.metrics[name]; !seen {
		f.metricOrder = append(f.metricOrder, name)
	}
	f.metrics[name] = res
}

// MetricResult returns the recorded result for a metric name.
func (f *FileAnalysisResults) MetricResult(name string) (*MultiChannelResult, bool) {
	res, ok := f.metrics[name]
	return res, ok
}

// MetricNames returns recorded metric names in configuration order.
func (f *FileAnalysisResults) MetricNames() []string {
	out := make([]string, len(f.metricOrder))
	copy(out, f.metricOrder)
	return out
}

// AddError appends an error description in detection order.
func (f *FileAnalysisResults) AddError(msg string) {
	f.errors = append(f.errors, msg)
}

// Errors returns the accumulated error descriptions in detection order.
func (f *FileAnalysisResults) Errors() []string {
	out := make([]string, len(f.errors))
	copy(out, f.errors)
	return out
}

// Failed reports whether any error was recorded for the file.
func (f *FileAnalysisResults) Failed() bool { return len(f.errors) > 0 }

// MarshalJSON renders the file result with metrics in configuration order.
func (f *FileAnalysisResults) MarshalJSON() ([]byte, error) {
	metricsJSON, err := marshalOrderedObject(f.metricOrder, func(key string) any { return f.metrics[key] })
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		File    string          `json:"file"`
		Metrics json.RawMessage `json:"metrics"`
		Errors  []string        `json:"errors,omitempty"`
	}{
		File:    f.FilePath,
		Metrics: metricsJSON,
		Errors:  f.errors,
	})
}

// DirectoryAnalysisResults owns the per-file results of one batch run.
// Inserts from concurrent completions are serialized internally; reads after
// Run returns need no locking. It carries exactly one entry per dispatched
// file; skipped files are never added.
type DirectoryAnalysisResults struct {
	DirPath string

	mu    sync.Mutex
	files map[string]*FileAnalysisResults
}

// NewDirectoryAnalysisResults returns an empty result tree for a directory.
func NewDirectoryAnalysisResults(dirPath string) *DirectoryAnalysisResults {
	return &DirectoryAnalysisResults{
		DirPath: dirPath,
		files:   make(map[string]*FileAnalysisResults),
	}
}

// AddFileResult records a file's results keyed by its identifier.
// Thread-safe with respect to concurrent completions.
func (d *DirectoryAnalysisResults) AddFileResult(id string, res *FileAnalysisResults) {
	d.mu.Lock()
	d.files[id] = res
	d.mu.Unlock()
}

// FileResult returns the result recorded for a file identifier.
func (d *DirectoryAnalysisResults) FileResult(id string) (*FileAnalysisResults, bool) {
	d.mu.Lock()
	res, ok := d.files[id]
	d.mu.Unlock()
	return res, ok
}

// FileIDs returns the recorded file identifiers in sorted order, so that
// aggregation is deterministic regardless of completion order.
func (d *DirectoryAnalysisResults) FileIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.files))
	for id := range d.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of recorded files.
func (d *DirectoryAnalysisResults) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.files)
}

// FailedIDs returns the identifiers of files that recorded errors, sorted.
func (d *DirectoryAnalysisResults) FailedIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []string
	for id, res := range d.files {
		if res.Failed() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// MarshalJSON renders files in sorted identifier order.
func (d *DirectoryAnalysisResults) MarshalJSON() ([]byte, error) {
	ids := d.FileIDs()
	d.mu.Lock()
	filesJSON, err := marshalOrderedObject(ids, func(key string) any { return d.files[key] })
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Directory string          `json:"directory"`
		Files     json.RawMessage `json:"files"`
	}{
		Directory: d.DirPath,
		Files:     filesJSON,
	})
}

// Summary aggregates the statistics of one batch run.
type Summary struct {
	InputPath       string    `json:"inputPath"`
	StateFilePath   string    `json:"stateFilePath,omitempty"`
	TotalDiscovered int       `json:"totalDiscovered"`
	ProcessedCount  int       `json:"processedCount"`
	SkippedCount    int       `json:"skippedCount"`
	FailedCount     int       `json:"failedCount"`
	DurationSeconds float64   `json:"durationSeconds"`
	Concurrency     int       `json:"concurrency"`
	ResumeEnabled   bool      `json:"resumeEnabled"`
	Timestamp       time.Time `json:"timestamp"`
}

// Report bundles the result tree with the run summary; it is the value the
// engine returns and hands to OnRunComplete.
type Report struct {
	Summary Summary                   `json:"summary"`
	Results *DirectoryAnalysisResults `json:"results"`
}

// marshalOrderedObject renders a JSON object whose keys appear in the given
// order. encoding/json sorts map keys, which would lose the configured
// metric order and channel order in rendered output.
func marshalOrderedObject(order []string, value func(key string) any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range order {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(value(key))
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
