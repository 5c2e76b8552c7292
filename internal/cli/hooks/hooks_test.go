package hooks

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/soundsift/soundsift/pkg/analysis"
)

type MockTUIProgram struct {
	mock.Mock
}

func (m *MockTUIProgram) Send(msg tea.Msg) {
	m.Called(msg)
}

type MockProgressBar struct {
	mock.Mock
}

func (m *MockProgressBar) Set(num int) error {
	args := m.Called(num)
	return args.Error(0)
}

func (m *MockProgressBar) ChangeMax(num int) error {
	args := m.Called(num)
	return args.Error(0)
}

func (m *MockProgressBar) Describe(description string) error {
	args := m.Called(description)
	return args.Error(0)
}

func (m *MockProgressBar) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestCLIHooks_OnFileDiscovered(t *testing.T) {
	testID := "recordings/morning.wav"

	t.Run("tui enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", mock.AnythingOfType("FileDiscoveredMsg")).Run(func(args mock.Arguments) {
			msg := args.Get(0).(FileDiscoveredMsg)
			assert.Equal(t, testID, msg.ID)
		}).Once()

		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		h := NewCLIHooks(logger, true, false, mockTUI, nil)
		require.NoError(t, h.OnFileDiscovered(testID))
		mockTUI.AssertExpectations(t)
		assert.Empty(t, logBuf.String())
	})

	t.Run("verbose enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		h := NewCLIHooks(logger, false, true, mockTUI, nil)
		require.NoError(t, h.OnFileDiscovered(testID))

		mockTUI.AssertNotCalled(t, "Send", mock.Anything)
		logOutput := logBuf.String()
		assert.Contains(t, logOutput, `"msg":"File discovered"`)
		assert.Contains(t, logOutput, `"id":"`+testID+`"`)
	})

	t.Run("neither", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		h := NewCLIHooks(logger, false, false, mockTUI, nil)
		require.NoError(t, h.OnFileDiscovered(testID))

		mockTUI.AssertNotCalled(t, "Send", mock.Anything)
		assert.Empty(t, logBuf.String())
	})
}

func TestCLIHooks_OnFileStatusUpdate(t *testing.T) {
	testID := "rec.wav"
	testDuration := 50 * time.Millisecond

	t.Run("tui enabled sends message", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", mock.MatchedBy(func(msg FileStatusUpdateMsg) bool {
			return msg.ID == testID &&
				msg.Status == analysis.StatusProcessing &&
				msg.Duration == testDuration
		})).Once()

		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		h := NewCLIHooks(logger, true, false, mockTUI, nil)
		require.NoError(t, h.OnFileStatusUpdate(testID, analysis.StatusProcessing, "", testDuration))
		mockTUI.AssertExpectations(t)
	})

	t.Run("verbose logs failure at error level", func(t *testing.T) {
		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		h := NewCLIHooks(logger, false, true, nil, nil)
		require.NoError(t, h.OnFileStatusUpdate(testID, analysis.StatusFailed, "failed to load signal", testDuration))

		logOutput := logBuf.String()
		assert.Contains(t, logOutput, `"level":"ERROR"`)
		assert.Contains(t, logOutput, `"error":"failed to load signal"`)
	})

	t.Run("progress bar mode logs only failures", func(t *testing.T) {
		logBuf := &bytes.Buffer{}
		logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))
		bar := new(MockProgressBar)
		h := NewCLIHooks(logger, false, false, nil, bar)

		require.NoError(t, h.OnFileStatusUpdate(testID, analysis.StatusSuccess, "", testDuration))
		assert.Empty(t, logBuf.String())

		require.NoError(t, h.OnFileStatusUpdate(testID, analysis.StatusFailed, "boom", testDuration))
		assert.Contains(t, logBuf.String(), "boom")
		// The bar is advanced from OnProgress, never from status updates.
		bar.AssertNotCalled(t, "Set", mock.Anything)
	})
}

func TestCLIHooks_OnProgress(t *testing.T) {
	t.Run("progress bar mode sets absolute count", func(t *testing.T) {
		bar := new(MockProgressBar)
		bar.On("ChangeMax", 10).Return(nil).Once()
		bar.On("Set", 3).Return(nil).Once()

		logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		h := NewCLIHooks(logger, false, false, nil, bar)
		require.NoError(t, h.OnProgress(3, 10, "Processing files"))
		bar.AssertExpectations(t)
	})

	t.Run("tui enabled forwards message", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", mock.MatchedBy(func(msg ProgressMsg) bool {
			return msg.Completed == 3 && msg.Total == 10
		})).Once()

		logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		h := NewCLIHooks(logger, true, false, mockTUI, nil)
		require.NoError(t, h.OnProgress(3, 10, "Processing files"))
		mockTUI.AssertExpectations(t)
	})
}

func TestCLIHooks_OnRunComplete(t *testing.T) {
	report := analysis.Report{Summary: analysis.Summary{ProcessedCount: 2}}

	t.Run("tui enabled forwards report", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", mock.AnythingOfType("RunCompleteMsg")).Run(func(args mock.Arguments) {
			msg := args.Get(0).(RunCompleteMsg)
			assert.Equal(t, 2, msg.Report.Summary.ProcessedCount)
		}).Once()

		logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		h := NewCLIHooks(logger, true, false, mockTUI, nil)
		require.NoError(t, h.OnRunComplete(report))
		mockTUI.AssertExpectations(t)
	})

	t.Run("progress bar mode closes the bar", func(t *testing.T) {
		bar := new(MockProgressBar)
		bar.On("Close").Return(nil).Once()

		logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		h := NewCLIHooks(logger, false, false, nil, bar)
		require.NoError(t, h.OnRunComplete(report))
		bar.AssertExpectations(t)
	})
}
