package signal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/go-audio/wav"
)

// ErrLoadFailed indicates the input file could not be read or decoded.
var ErrLoadFailed = errors.New("failed to load signal")

// Loader loads a Signal from a file path. Implementations may fail with an
// I/O or format error; the engine absorbs such failures into the per-file
// result rather than aborting the batch.
type Loader interface {
	Load(path string) (*Signal, error)
}

// wavLoader implements Loader for RIFF/WAVE files using go-audio/wav.
type wavLoader struct {
	logger *slog.Logger
}

// NewWavLoader creates the default WAV-backed Loader.
func NewWavLoader(loggerHandler slog.Handler) Loader {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "wavLoader"))
	return &wavLoader{logger: logger}
}

// Load implements the Loader interface. Integer PCM samples are normalized
// to [-1, 1] by the decoder's bit depth and deinterleaved per channel.
func (l *wavLoader) Load(path string) (*Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrLoadFailed, path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %q is not a valid WAV file", ErrLoadFailed, path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: decode %q: %w", ErrLoadFailed, path, err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: %q has no channel format", ErrLoadFailed, path)
	}

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, fmt.Errorf("%w: %q contains no samples", ErrLoadFailed, path)
	}

	scale := 1.0
	if dec.BitDepth > 0 {
		scale = 1.0 / float64(int64(1)<<(dec.BitDepth-1))
	}

	data := make([][]float64, channels)
	for c := range data {
		data[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			data[c][i] = float64(buf.Data[i*channels+c]) * scale
		}
	}

	sig, err := New(path, buf.Format.SampleRate, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrLoadFailed, path, err)
	}

	l.logger.Debug("Signal loaded",
		slog.String("path", path),
		slog.Int("channels", channels),
		slog.Int("sampleRate", sig.SampleRate),
		slog.Duration("duration", sig.Duration()),
		slog.Int("bitDepth", int(dec.BitDepth)),
	)
	return sig, nil
}

// DB converts a linear amplitude to decibels against the given reference,
// guarding against log of zero.
func DB(amplitude, ref float64) float64 {
	if amplitude <= 0 || ref <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(amplitude/ref)
}
