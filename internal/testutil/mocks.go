// Package testutil provides mock implementations of the interfaces defined
// in pkg/analysis and its subpackages, plus fixture helpers for generating
// WAV files and synthetic signals. The mocks are built on testify/mock;
// configure expectations with .On(...).Return(...).
package testutil

import (
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/soundsift/soundsift/pkg/analysis"
	"github.com/soundsift/soundsift/pkg/analysis/metrics"
	"github.com/soundsift/soundsift/pkg/analysis/signal"
)

// MockStateStore mocks the analysis.StateStore interface.
type MockStateStore struct {
	mock.Mock
}

func (m *MockStateStore) Load(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockStateStore) IsComplete(id string) bool {
	args := m.Called(id)
	ok, _ := args.Get(0).(bool)
	return ok
}

func (m *MockStateStore) MarkComplete(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockStateStore) Persist(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

// MockLoader mocks the signal.Loader interface.
type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) Load(path string) (*signal.Signal, error) {
	args := m.Called(path)
	sig, _ := args.Get(0).(*signal.Signal)
	return sig, args.Error(1)
}

// MockHooks mocks the analysis.Hooks interface.
type MockHooks struct {
	mock.Mock
}

func (m *MockHooks) OnFileDiscovered(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockHooks) OnFileStatusUpdate(id string, status analysis.Status, message string, duration time.Duration) error {
	args := m.Called(id, status, message, duration)
	return args.Error(0)
}

func (m *MockHooks) OnProgress(completed, total int64, label string) error {
	args := m.Called(completed, total, label)
	return args.Error(0)
}

func (m *MockHooks) OnRunComplete(report analysis.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

// RecordingHooks is a thread-safe Hooks implementation that records every
// observation it receives, for asserting on event streams (progress
// monotonicity, status transitions) without testify expectation noise.
type RecordingHooks struct {
	mu         sync.Mutex
	Discovered []string
	Statuses   []StatusEvent
	Progress   []ProgressEvent
	Reports    []analysis.Report
}

// StatusEvent is one recorded OnFileStatusUpdate call.
type StatusEvent struct {
	ID       string
	Status   analysis.Status
	Message  string
	Duration time.Duration
}

// ProgressEvent is one recorded OnProgress call.
type ProgressEvent struct {
	Completed int64
	Total     int64
	Label     string
}

func (h *RecordingHooks) OnFileDiscovered(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Discovered = append(h.Discovered, id)
	return nil
}

func (h *RecordingHooks) OnFileStatusUpdate(id string, status analysis.Status, message string, duration time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Statuses = append(h.Statuses, StatusEvent{ID: id, Status: status, Message: message, Duration: duration})
	return nil
}

func (h *RecordingHooks) OnProgress(completed, total int64, label string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Progress = append(h.Progress, ProgressEvent{Completed: completed, Total: total, Label: label})
	return nil
}

func (h *RecordingHooks) OnRunComplete(report analysis.Report) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Reports = append(h.Reports, report)
	return nil
}

// StatusesFor returns the recorded status events for one file identifier.
func (h *RecordingHooks) StatusesFor(id string) []StatusEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []StatusEvent
	for _, ev := range h.Statuses {
		if ev.ID == id {
			out = append(out, ev)
		}
	}
	return out
}

// ProgressCounts returns the recorded completed counts in arrival order.
func (h *RecordingHooks) ProgressCounts() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int64, len(h.Progress))
	for i, ev := range h.Progress {
		out[i] = ev.Completed
	}
	return out
}

// StubMetric is a hand-rolled metric for engine and processor tests. It
// counts Calculate invocations and can be told to fail or panic.
type StubMetric struct {
	ConfigureErr error
	CalculateErr error
	PanicMessage string
	Result       metrics.Value

	mu             sync.Mutex
	configureCalls int
	calculateCalls int
}

func (s *StubMetric) Configure(options map[string]any) error {
	s.mu.Lock()
	s.configureCalls++
	s.mu.Unlock()
	return s.ConfigureErr
}

func (s *StubMetric) Calculate(ch *signal.Channel) (metrics.Value, error) {
	s.mu.Lock()
	s.calculateCalls++
	s.mu.Unlock()
	if s.PanicMessage != "" {
		panic(s.PanicMessage)
	}
	if s.CalculateErr != nil {
		return nil, s.CalculateErr
	}
	if s.Result != nil {
		return s.Result, nil
	}
	return metrics.Value{"value": 1}, nil
}

// CalculateCalls returns the number of Calculate invocations so far.
func (s *StubMetric) CalculateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calculateCalls
}

// ConfigureCalls returns the number of Configure invocations so far.
func (s *StubMetric) ConfigureCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configureCalls
}

// StubRegistry resolves names from a fixed map of shared StubMetric
// instances, so tests can assert on call counts across files.
type StubRegistry struct {
	Metrics map[string]*StubMetric
}

func (r *StubRegistry) Get(name string) (metrics.Metric, error) {
	m, ok := r.Metrics[name]
	if !ok {
		return nil, metrics.ErrUnknownMetric
	}
	return m, nil
}

// TotalCalculateCalls sums Calculate invocations across all stub metrics.
func (r *StubRegistry) TotalCalculateCalls() int {
	total := 0
	for _, m := range r.Metrics {
		total += m.CalculateCalls()
	}
	return total
}
