package signal_test

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundsift/soundsift/internal/testutil"
	"github.com/soundsift/soundsift/pkg/analysis/signal"
)

func discardHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}

func TestNew_Validation(t *testing.T) {
	t.Run("no channels", func(t *testing.T) {
		_, err := signal.New("x", 48000, nil)
		assert.ErrorIs(t, err, signal.ErrNoData)
	})

	t.Run("empty channel", func(t *testing.T) {
		_, err := signal.New("x", 48000, [][]float64{{}})
		assert.ErrorIs(t, err, signal.ErrNoData)
	})

	t.Run("ragged channels", func(t *testing.T) {
		_, err := signal.New("x", 48000, [][]float64{{1, 2, 3}, {1, 2}})
		assert.Error(t, err)
	})

	t.Run("bad sample rate", func(t *testing.T) {
		_, err := signal.New("x", 0, [][]float64{{1, 2, 3}})
		assert.Error(t, err)
	})
}

func TestSignal_Accessors(t *testing.T) {
	sig, err := signal.New("rec", 48000, [][]float64{
		make([]float64, 24000),
		make([]float64, 24000),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, sig.Channels())
	assert.Equal(t, 24000, sig.Len())
	assert.Equal(t, 500*time.Millisecond, sig.Duration())

	ch, err := sig.Channel(1)
	require.NoError(t, err)
	assert.Equal(t, 48000, ch.SampleRate)
	assert.Len(t, ch.Samples, 24000)

	_, err = sig.Channel(2)
	assert.Error(t, err)
	_, err = sig.Channel(-1)
	assert.Error(t, err)
}

func TestCalibrateTo_PerChannelTargets(t *testing.T) {
	sig := testutil.SineSignal(t, 2, 4800, 48000, 480, 0.5)
	require.NoError(t, sig.CalibrateTo([]float64{60, 66}))

	targets := []float64{60, 66}
	for i := range targets {
		ch, err := sig.Channel(i)
		require.NoError(t, err)
		want := signal.RefPressure * math.Pow(10, targets[i]/20)
		assert.InDelta(t, want, ch.RMS(), want*1e-3)
	}
}

func TestCalibrateTo_SingleLevelBroadcasts(t *testing.T) {
	sig := testutil.SineSignal(t, 2, 4800, 48000, 480, 0.5)
	require.NoError(t, sig.CalibrateTo([]float64{70}))

	want := signal.RefPressure * math.Pow(10, 70.0/20)
	for i := 0; i < sig.Channels(); i++ {
		ch, err := sig.Channel(i)
		require.NoError(t, err)
		assert.InDelta(t, want, ch.RMS(), want*1e-3)
	}
}

func TestCalibrateTo_Failures(t *testing.T) {
	t.Run("level count mismatch", func(t *testing.T) {
		sig := testutil.SineSignal(t, 2, 4800, 48000, 480, 0.5)
		assert.ErrorIs(t, sig.CalibrateTo([]float64{60, 61, 62}), signal.ErrCalibration)
	})

	t.Run("no levels", func(t *testing.T) {
		sig := testutil.SineSignal(t, 2, 4800, 48000, 480, 0.5)
		assert.ErrorIs(t, sig.CalibrateTo(nil), signal.ErrCalibration)
	})

	t.Run("silent channel", func(t *testing.T) {
		sig, err := signal.New("silent", 48000, [][]float64{make([]float64, 100)})
		require.NoError(t, err)
		assert.ErrorIs(t, sig.CalibrateTo([]float64{60}), signal.ErrCalibration)
	})
}

func TestWavLoader_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteWavFixture(t, dir, "stereo.wav", 2, 4800, 48000, 480)

	loader := signal.NewWavLoader(discardHandler())
	sig, err := loader.Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, sig.Path)
	assert.Equal(t, 2, sig.Channels())
	assert.Equal(t, 48000, sig.SampleRate)
	assert.Equal(t, 4800, sig.Len())

	// The fixture writes at half full scale, so the normalized sine peaks
	// near 0.5 and its RMS lands near 0.5/sqrt(2).
	ch, err := sig.Channel(0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5/math.Sqrt2, ch.RMS(), 0.01)
}

func TestWavLoader_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteGarbageFile(t, dir, "broken.wav")

	loader := signal.NewWavLoader(discardHandler())
	_, err := loader.Load(path)
	assert.ErrorIs(t, err, signal.ErrLoadFailed)
}

func TestWavLoader_MissingFile(t *testing.T) {
	loader := signal.NewWavLoader(discardHandler())
	_, err := loader.Load("/does/not/exist.wav")
	assert.ErrorIs(t, err, signal.ErrLoadFailed)
}

func TestDB(t *testing.T) {
	assert.InDelta(t, 0, signal.DB(1, 1), 1e-12)
	assert.InDelta(t, 20, signal.DB(10, 1), 1e-12)
	assert.InDelta(t, -6.0206, signal.DB(0.5, 1), 1e-3)
	assert.True(t, math.IsInf(signal.DB(0, 1), -1))
}
