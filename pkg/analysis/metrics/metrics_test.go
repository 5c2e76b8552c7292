package metrics_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundsift/soundsift/pkg/analysis/metrics"
	"github.com/soundsift/soundsift/pkg/analysis/signal"
)

// sineChannel synthesizes a whole number of cycles so RMS and peak land on
// their analytic values.
func sineChannel(freq, amplitude float64, sampleRate, frames int) *signal.Channel {
	samples := make([]float64, frames)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return &signal.Channel{SampleRate: sampleRate, Samples: samples}
}

func TestDefaultRegistry_KnowsBuiltins(t *testing.T) {
	reg := metrics.DefaultRegistry()
	assert.Equal(t, []string{"peak", "rms", "stats", "zcr"}, reg.Names())

	for _, name := range reg.Names() {
		m, err := reg.Get(name)
		require.NoError(t, err, name)
		require.NotNil(t, m, name)
	}
}

func TestRegistry_UnknownNameFails(t *testing.T) {
	reg := metrics.DefaultRegistry()
	_, err := reg.Get("loudness_zwicker")
	assert.ErrorIs(t, err, metrics.ErrUnknownMetric)
}

func TestRegistry_GetReturnsFreshInstances(t *testing.T) {
	reg := metrics.DefaultRegistry()
	a, err := reg.Get("rms")
	require.NoError(t, err)
	b, err := reg.Get("rms")
	require.NoError(t, err)
	// Instances are independent, so per-file configuration cannot leak.
	require.NoError(t, a.Configure(map[string]any{"reference": 2e-5}))
	require.NoError(t, b.Configure(nil))

	ch := sineChannel(480, 0.5, 48000, 4800)
	va, err := a.Calculate(ch)
	require.NoError(t, err)
	vb, err := b.Calculate(ch)
	require.NoError(t, err)
	assert.NotEqual(t, va["rms_db"], vb["rms_db"])
}

func TestRegistry_RegisterCustomMetric(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.Register("const", func() metrics.Metric { return constMetric{} })

	m, err := reg.Get("const")
	require.NoError(t, err)
	v, err := m.Calculate(sineChannel(480, 0.5, 48000, 480))
	require.NoError(t, err)
	assert.Equal(t, metrics.Value{"answer": 42}, v)
}

type constMetric struct{}

func (constMetric) Configure(map[string]any) error { return nil }
func (constMetric) Calculate(*signal.Channel) (metrics.Value, error) {
	return metrics.Value{"answer": 42}, nil
}

func TestRMSMetric_SineLevels(t *testing.T) {
	reg := metrics.DefaultRegistry()
	m, err := reg.Get("rms")
	require.NoError(t, err)
	require.NoError(t, m.Configure(nil))

	const amplitude = 0.5
	v, err := m.Calculate(sineChannel(480, amplitude, 48000, 4800))
	require.NoError(t, err)

	wantRMS := amplitude / math.Sqrt2
	assert.InDelta(t, wantRMS, v["rms"], 1e-3)
	assert.InDelta(t, 20*math.Log10(wantRMS), v["rms_db"], 0.05)
}

func TestRMSMetric_ReferenceOption(t *testing.T) {
	reg := metrics.DefaultRegistry()
	m, err := reg.Get("rms")
	require.NoError(t, err)
	require.NoError(t, m.Configure(map[string]any{"reference": signal.RefPressure}))

	const amplitude = 0.5
	v, err := m.Calculate(sineChannel(480, amplitude, 48000, 4800))
	require.NoError(t, err)

	wantDB := 20 * math.Log10((amplitude/math.Sqrt2)/signal.RefPressure)
	assert.InDelta(t, wantDB, v["rms_db"], 0.05)
}

func TestRMSMetric_RejectsBadOptions(t *testing.T) {
	reg := metrics.DefaultRegistry()

	tests := []struct {
		name    string
		options map[string]any
	}{
		{"unknown option", map[string]any{"window": 125}},
		{"wrong type", map[string]any{"reference": "quiet"}},
		{"non-positive reference", map[string]any{"reference": 0.0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := reg.Get("rms")
			require.NoError(t, err)
			assert.ErrorIs(t, m.Configure(tc.options), metrics.ErrBadOption)
		})
	}
}

func TestPeakMetric_SineCrestFactor(t *testing.T) {
	reg := metrics.DefaultRegistry()
	m, err := reg.Get("peak")
	require.NoError(t, err)
	require.NoError(t, m.Configure(nil))

	const amplitude = 0.5
	v, err := m.Calculate(sineChannel(480, amplitude, 48000, 4800))
	require.NoError(t, err)

	assert.InDelta(t, amplitude, v["peak"], 1e-3)
	// A sine's crest factor is sqrt(2), about 3.01 dB.
	assert.InDelta(t, 20*math.Log10(math.Sqrt2), v["crest_db"], 0.05)
}

func TestZCRMetric_SineRate(t *testing.T) {
	reg := metrics.DefaultRegistry()
	m, err := reg.Get("zcr")
	require.NoError(t, err)
	require.NoError(t, m.Configure(nil))

	// A 480 Hz sine crosses zero 960 times per second.
	v, err := m.Calculate(sineChannel(480, 0.5, 48000, 48000))
	require.NoError(t, err)
	assert.InDelta(t, 960, v["rate_hz"], 5)
}

func TestZCRMetric_RejectsOptions(t *testing.T) {
	reg := metrics.DefaultRegistry()
	m, err := reg.Get("zcr")
	require.NoError(t, err)
	assert.ErrorIs(t, m.Configure(map[string]any{"hop": 10}), metrics.ErrBadOption)
}

func TestStatsMetric_SineStatistics(t *testing.T) {
	reg := metrics.DefaultRegistry()
	m, err := reg.Get("stats")
	require.NoError(t, err)
	require.NoError(t, m.Configure(nil))

	const amplitude = 0.5
	v, err := m.Calculate(sineChannel(480, amplitude, 48000, 4800))
	require.NoError(t, err)

	assert.InDelta(t, -amplitude, v["min"], 1e-3)
	assert.InDelta(t, amplitude, v["max"], 1e-3)
	// Mean absolute value of a sine is 2A/pi.
	assert.InDelta(t, 2*amplitude/math.Pi, v["mean_abs"], 1e-2)
}

func TestBuiltins_RejectEmptyChannel(t *testing.T) {
	reg := metrics.DefaultRegistry()
	empty := &signal.Channel{SampleRate: 48000}
	for _, name := range reg.Names() {
		m, err := reg.Get(name)
		require.NoError(t, err)
		require.NoError(t, m.Configure(nil))
		_, err = m.Calculate(empty)
		assert.Error(t, err, name)
	}
}
