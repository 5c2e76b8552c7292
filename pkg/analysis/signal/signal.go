// Package signal provides the in-memory audio model consumed by the analysis
// engine: a multi-channel Signal, per-channel sample access, and RMS-based
// calibration. Loading from disk is handled by Loader implementations; see
// wav.go for the WAV-backed default.
package signal

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// RefPressure is the standard acoustic reference pressure (20 µPa) used when
// expressing calibrated sample data in dB SPL.
const RefPressure = 2e-5

var (
	// ErrNoData indicates a signal with zero channels or zero samples.
	ErrNoData = errors.New("signal contains no sample data")

	// ErrCalibration indicates that calibration levels could not be applied,
	// e.g. a level count that does not match the channel count or a silent
	// channel that cannot be scaled to a target level.
	ErrCalibration = errors.New("failed to calibrate signal")
)

// Signal holds one recording: a sample rate and per-channel float64 sample
// slices. Samples are normalized to [-1, 1] on load; CalibrateTo rescales
// them to pascals against a target level.
type Signal struct {
	Path       string
	SampleRate int
	data       [][]float64
}

// New constructs a Signal from deinterleaved channel data. All channels must
// have the same length.
func New(path string, sampleRate int, data [][]float64) (*Signal, error) {
	if len(data) == 0 || len(data[0]) == 0 {
		return nil, ErrNoData
	}
	n := len(data[0])
	for i, ch := range data {
		if len(ch) != n {
			return nil, fmt.Errorf("channel %d has %d samples, expected %d", i, len(ch), n)
		}
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	return &Signal{Path: path, SampleRate: sampleRate, data: data}, nil
}

// Channels returns the number of audio channels.
func (s *Signal) Channels() int { return len(s.data) }

// Len returns the number of samples per channel.
func (s *Signal) Len() int {
	if len(s.data) == 0 {
		return 0
	}
	return len(s.data[0])
}

// Duration returns the recording length.
func (s *Signal) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(s.Len()) / float64(s.SampleRate) * float64(time.Second))
}

// Channel returns a view of channel i (0-based). The returned Channel shares
// the underlying sample slice; callers must not mutate it.
func (s *Signal) Channel(i int) (*Channel, error) {
	if i < 0 || i >= len(s.data) {
		return nil, fmt.Errorf("channel index %d out of range [0,%d)", i, len(s.data))
	}
	return &Channel{SampleRate: s.SampleRate, Samples: s.data[i]}, nil
}

// CalibrateTo rescales each channel so that its RMS level, referenced to
// RefPressure, equals the corresponding target level in dB. levels must
// contain either one value (applied to every channel) or one value per
// channel.
func (s *Signal) CalibrateTo(levels []float64) error {
	switch len(levels) {
	case 0:
		return fmt.Errorf("%w: no levels given", ErrCalibration)
	case 1:
		expanded := make([]float64, s.Channels())
		for i := range expanded {
			expanded[i] = levels[0]
		}
		levels = expanded
	case s.Channels():
	default:
		return fmt.Errorf("%w: %d levels for %d channels", ErrCalibration, len(levels), s.Channels())
	}
	for i, ch := range s.data {
		level := rms(ch)
		if level == 0 {
			return fmt.Errorf("%w: channel %d is silent", ErrCalibration, i)
		}
		target := RefPressure * math.Pow(10, levels[i]/20)
		gain := target / level
		for j := range ch {
			ch[j] *= gain
		}
	}
	return nil
}

// Channel is a single channel's view of a Signal.
type Channel struct {
	SampleRate int
	Samples    []float64
}

// RMS returns the root-mean-square amplitude of the channel.
func (c *Channel) RMS() float64 { return rms(c.Samples) }

func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
