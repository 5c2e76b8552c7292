package testutil

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/soundsift/soundsift/pkg/analysis/signal"
)

// SineSignal builds an in-memory signal with the given channel count, each
// channel a sine at freq Hz with the given peak amplitude.
func SineSignal(t *testing.T, chans, frames, sampleRate int, freq, amplitude float64) *signal.Signal {
	t.Helper()
	data := make([][]float64, chans)
	for c := range data {
		data[c] = make([]float64, frames)
		for i := range data[c] {
			data[c][i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		}
	}
	sig, err := signal.New("memory", sampleRate, data)
	if err != nil {
		t.Fatalf("building sine signal: %v", err)
	}
	return sig
}

// WriteWavFixture writes a 16-bit PCM WAV file under dir containing a sine
// wave on every channel, returning its path.
func WriteWavFixture(t *testing.T, dir, name string, chans, frames, sampleRate int, freq float64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, chans, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: chans, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, frames*chans),
	}
	const scale = 1 << 14 // half full-scale keeps headroom
	for i := 0; i < frames; i++ {
		v := int(scale * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		for c := 0; c < chans; c++ {
			buf.Data[i*chans+c] = v
		}
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing %s: %v", path, err)
	}
	return path
}

// WriteGarbageFile writes a file that is not a valid WAV, for load-failure
// scenarios.
func WriteGarbageFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("not a riff header"), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
