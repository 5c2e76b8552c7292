package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundsift/soundsift/internal/cli/config"
	"github.com/soundsift/soundsift/internal/testutil"
	"github.com/soundsift/soundsift/pkg/analysis"
	"github.com/soundsift/soundsift/pkg/analysis/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSettings(inputDir string) config.Settings {
	return config.Settings{
		Opts: analysis.Options{
			InputPath: inputDir,
			Metrics:   []analysis.MetricConfig{{Name: "rms", Enabled: true}},
			Logger:    slog.NewTextHandler(io.Discard, nil),
		},
		OutputFormat: "text",
		StateFormat:  state.DefaultFormat,
		AppVersion:   "test",
	}
}

func TestRun_WritesJSONReportToFile(t *testing.T) {
	inputDir := t.TempDir()
	testutil.WriteWavFixture(t, inputDir, "a.wav", 2, 4800, 48000, 440)
	testutil.WriteWavFixture(t, inputDir, "b.wav", 1, 4800, 48000, 440)

	settings := testSettings(inputDir)
	settings.OutputFormat = "json"
	settings.OutputPath = filepath.Join(t.TempDir(), "report.json")

	require.NoError(t, Run(context.Background(), settings, testLogger()))

	raw, err := os.ReadFile(settings.OutputPath)
	require.NoError(t, err)

	var decoded struct {
		Summary analysis.Summary `json:"summary"`
		Results struct {
			Files map[string]json.RawMessage `json:"files"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 2, decoded.Summary.TotalDiscovered)
	assert.Equal(t, 2, decoded.Summary.ProcessedCount)
	assert.Contains(t, decoded.Results.Files, "a.wav")
	assert.Contains(t, decoded.Results.Files, "b.wav")
}

func TestRun_FailedFileYieldsError(t *testing.T) {
	inputDir := t.TempDir()
	testutil.WriteWavFixture(t, inputDir, "good.wav", 1, 4800, 48000, 440)
	testutil.WriteGarbageFile(t, inputDir, "bad.wav")

	settings := testSettings(inputDir)
	settings.OutputFormat = "json"
	settings.OutputPath = filepath.Join(t.TempDir(), "report.json")

	err := Run(context.Background(), settings, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 file(s) failed analysis")

	// The report is still written even when some files failed.
	_, statErr := os.Stat(settings.OutputPath)
	assert.NoError(t, statErr)
}

func TestRun_ResumeCreatesStateFile(t *testing.T) {
	inputDir := t.TempDir()
	testutil.WriteWavFixture(t, inputDir, "a.wav", 1, 4800, 48000, 440)

	settings := testSettings(inputDir)
	settings.Opts.ResumeEnabled = true
	settings.Opts.StateFilePath = filepath.Join(t.TempDir(), "run.state")

	require.NoError(t, Run(context.Background(), settings, testLogger()))

	store := state.NewFileStateStore(settings.Opts.Logger, "test", state.DefaultFormat)
	require.NoError(t, store.Load(settings.Opts.StateFilePath))
	assert.True(t, store.IsComplete("a.wav"))
}

func TestRun_InvalidOptionsSurfaceBeforeProcessing(t *testing.T) {
	settings := testSettings(filepath.Join(t.TempDir(), "missing"))

	err := Run(context.Background(), settings, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrConfigValidation)
}

func TestWriteTextSummary(t *testing.T) {
	results := analysis.NewDirectoryAnalysisResults("/in")
	bad := analysis.NewFileAnalysisResults("/in/bad.wav")
	bad.AddError("failed to load signal: truncated header")
	results.AddFileResult("bad.wav", bad)

	report := analysis.Report{
		Summary: analysis.Summary{
			InputPath:       "/in",
			TotalDiscovered: 3,
			ProcessedCount:  2,
			FailedCount:     1,
			DurationSeconds: 1.5,
		},
		Results: results,
	}

	var buf bytes.Buffer
	require.NoError(t, writeTextSummary(&buf, report))

	out := buf.String()
	assert.Contains(t, out, "Discovered: 3")
	assert.Contains(t, out, "Analyzed:   2")
	assert.Contains(t, out, "Failed:     1")
	assert.Contains(t, out, "bad.wav: failed to load signal: truncated header")
}
