// Package metrics defines the Metric capability interface, the name-keyed
// registry the engine resolves configured metrics from, and a set of built-in
// time-domain metrics. Any type exposing Configure and Calculate qualifies as
// a Metric; no inheritance hierarchy is involved, only interface conformance.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/soundsift/soundsift/pkg/analysis/signal"
)

var (
	// ErrUnknownMetric indicates a configured metric name has no registered
	// factory. Resolution failures are fatal for the file's remaining
	// metrics, not for sibling files.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrBadOption indicates Configure received an unsupported option name
	// or an option value of the wrong type.
	ErrBadOption = errors.New("unsupported metric option")
)

// Value is the result of one metric calculation on one channel: a small map
// of named statistics. The engine treats it as opaque.
type Value map[string]float64

// Metric is a named, configurable analysis applied to a single channel.
// Configure is called once, before any calculation; Calculate must then be
// safe for concurrent calls, since parallel channel mode fans one configured
// instance out over the channels of a file.
type Metric interface {
	// Configure applies option-name -> value settings. Unknown options or
	// mistyped values return an error wrapping ErrBadOption.
	Configure(options map[string]any) error

	// Calculate computes the metric over one channel's samples.
	Calculate(ch *signal.Channel) (Value, error)
}

// Factory constructs a fresh, unconfigured Metric instance.
type Factory func() Metric

// Registry maps metric names to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry pre-populated with the built-in metrics.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("rms", func() Metric { return &rmsMetric{ref: 1.0} })
	r.Register("peak", func() Metric { return &peakMetric{ref: 1.0} })
	r.Register("zcr", func() Metric { return &zcrMetric{} })
	r.Register("stats", func() Metric { return &statsMetric{} })
	return r
}

// Register adds or replaces a factory under the given name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get resolves a metric by name, returning a fresh instance.
func (r *Registry) Get(name string) (Metric, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	return f(), nil
}

// Names returns the registered metric names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// optFloat reads a float64-compatible option value.
func optFloat(options map[string]any, key string) (float64, bool, error) {
	raw, ok := options[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	default:
		return 0, false, fmt.Errorf("%w: %q expects a number, got %T", ErrBadOption, key, raw)
	}
}

// --- rms ---

// rmsMetric reports the RMS level of a channel in decibels against a
// configurable reference ("reference" option; 1.0 yields dBFS, 2e-5 yields
// dB SPL for calibrated signals).
type rmsMetric struct {
	ref float64
}

func (m *rmsMetric) Configure(options map[string]any) error {
	for key := range options {
		if key != "reference" {
			return fmt.Errorf("%w: %q", ErrBadOption, key)
		}
	}
	if v, ok, err := optFloat(options, "reference"); err != nil {
		return err
	} else if ok {
		if v <= 0 {
			return fmt.Errorf("%w: \"reference\" must be positive", ErrBadOption)
		}
		m.ref = v
	}
	return nil
}

func (m *rmsMetric) Calculate(ch *signal.Channel) (Value, error) {
	if len(ch.Samples) == 0 {
		return nil, errors.New("empty channel")
	}
	r := ch.RMS()
	return Value{
		"rms":    r,
		"rms_db": signal.DB(r, m.ref),
	}, nil
}

// --- peak ---

// peakMetric reports the absolute peak amplitude in dB plus the crest factor
// (peak over RMS, in dB).
type peakMetric struct {
	ref float64
}

func (m *peakMetric) Configure(options map[string]any) error {
	for key := range options {
		if key != "reference" {
			return fmt.Errorf("%w: %q", ErrBadOption, key)
		}
	}
	if v, ok, err := optFloat(options, "reference"); err != nil {
		return err
	} else if ok {
		if v <= 0 {
			return fmt.Errorf("%w: \"reference\" must be positive", ErrBadOption)
		}
		m.ref = v
	}
	return nil
}

func (m *peakMetric) Calculate(ch *signal.Channel) (Value, error) {
	if len(ch.Samples) == 0 {
		return nil, errors.New("empty channel")
	}
	var peak float64
	for _, v := range ch.Samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	out := Value{
		"peak":    peak,
		"peak_db": signal.DB(peak, m.ref),
	}
	if r := ch.RMS(); r > 0 {
		out["crest_db"] = signal.DB(peak, r)
	}
	return out, nil
}

// --- zcr ---

// zcrMetric reports the zero-crossing rate in crossings per second.
type zcrMetric struct{}

func (m *zcrMetric) Configure(options map[string]any) error {
	if len(options) > 0 {
		for key := range options {
			return fmt.Errorf("%w: %q", ErrBadOption, key)
		}
	}
	return nil
}

func (m *zcrMetric) Calculate(ch *signal.Channel) (Value, error) {
	if len(ch.Samples) < 2 {
		return nil, errors.New("channel too short for zero-crossing rate")
	}
	crossings := 0
	for i := 1; i < len(ch.Samples); i++ {
		if (ch.Samples[i-1] >= 0) != (ch.Samples[i] >= 0) {
			crossings++
		}
	}
	duration := float64(len(ch.Samples)) / float64(ch.SampleRate)
	return Value{
		"crossings": float64(crossings),
		"rate_hz":   float64(crossings) / duration,
	}, nil
}

// --- stats ---

// statsMetric reports basic amplitude statistics.
type statsMetric struct{}

func (m *statsMetric) Configure(options map[string]any) error {
	if len(options) > 0 {
		for key := range options {
			return fmt.Errorf("%w: %q", ErrBadOption, key)
		}
	}
	return nil
}

func (m *statsMetric) Calculate(ch *signal.Channel) (Value, error) {
	if len(ch.Samples) == 0 {
		return nil, errors.New("empty channel")
	}
	minV, maxV := ch.Samples[0], ch.Samples[0]
	var sumAbs float64
	for _, v := range ch.Samples {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
		sumAbs += math.Abs(v)
	}
	return Value{
		"min":      minV,
		"max":      maxV,
		"mean_abs": sumAbs / float64(len(ch.Samples)),
	}, nil
}
