// Package ui implements the interactive terminal view of a batch run: a
// scrollable file list with live status, a spinner, and a summary footer.
// Events arrive as messages forwarded by the hooks layer.
package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/soundsift/soundsift/internal/cli/hooks"
	"github.com/soundsift/soundsift/pkg/analysis"
)

const listHeightMargin = 4

// Model holds the TUI state. Access to fileItems and itemMap is protected by
// listLock because hook messages arrive from engine goroutines.
type Model struct {
	list    list.Model
	spinner spinner.Model
	width   int
	height  int
	// initialized tracks if the model has received initial dimensions.
	initialized bool
	appVersion  string

	fileItems []listItem
	itemMap   map[string]int
	listLock  sync.Mutex

	summary      Summary
	phaseMessage string
	fatalError   string
	quitting     bool

	processTime   map[string]time.Time
	debounceTimer *time.Timer
}

// listItem represents one file in the TUI list.
type listItem struct {
	id       string
	status   analysis.Status
	message  string
	duration time.Duration
}

// Summary holds the aggregated statistics displayed in the footer.
type Summary struct {
	TotalDiscovered int
	Completed       int64
	Total           int64
	ProcessedCount  int
	SkippedCount    int
	FailedCount     int
	StartTime       time.Time
}

// NewModel creates the initial model.
func NewModel(appVersion string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.
		Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.
		Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	return Model{
		list:         l,
		spinner:      s,
		appVersion:   appVersion,
		summary:      Summary{StartTime: time.Now()},
		phaseMessage: "Initializing...",
		fileItems:    make([]listItem, 0, 256),
		itemMap:      make(map[string]int),
		processTime:  make(map[string]time.Time),
	}
}

// Init starts the spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles user input and forwarded engine events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var listCmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listHeight := m.height - listHeightMargin
		if listHeight < 1 {
			listHeight = 1
		}
		m.list.SetSize(m.width, listHeight)
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		m.list, listCmd = m.list.Update(msg)
		cmds = append(cmds, listCmd)

	case spinner.TickMsg:
		if m.quitting {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	case hooks.FileDiscoveredMsg:
		m.listLock.Lock()
		if _, exists := m.itemMap[msg.ID]; !exists {
			m.fileItems = append(m.fileItems, listItem{id: msg.ID, status: analysis.StatusPending})
			m.itemMap[msg.ID] = len(m.fileItems) - 1
			m.summary.TotalDiscovered++
			cmds = append(cmds, m.debounceListUpdate())
		}
		m.listLock.Unlock()
		if !m.quitting && (m.phaseMessage == "" || m.phaseMessage == "Initializing...") {
			m.phaseMessage = "Scanning..."
		}

	case hooks.FileStatusUpdateMsg:
		m.listLock.Lock()
		if idx, ok := m.itemMap[msg.ID]; ok && idx < len(m.fileItems) {
			item := &m.fileItems[idx]

			if isFinalStatus(msg.Status) && item.status == analysis.StatusProcessing {
				if startTime, found := m.processTime[msg.ID]; found {
					item.duration = time.Since(startTime)
					delete(m.processTime, msg.ID)
				}
				if msg.Duration > 0 {
					item.duration = msg.Duration
				}
			} else if msg.Status == analysis.StatusProcessing {
				m.processTime[msg.ID] = time.Now()
				item.duration = 0
			}

			if isFinalStatus(msg.Status) && !isFinalStatus(item.status) {
				m.incrementSummaryCount(msg.Status)
			}

			item.status = msg.Status
			item.message = msg.Message
			cmds = append(cmds, m.debounceListUpdate())
		} else {
			// Status for an item the discovery message never reached; add it.
			m.fileItems = append(m.fileItems, listItem{id: msg.ID, status: msg.Status, message: msg.Message, duration: msg.Duration})
			m.itemMap[msg.ID] = len(m.fileItems) - 1
			m.summary.TotalDiscovered++
			if isFinalStatus(msg.Status) {
				m.incrementSummaryCount(msg.Status)
			}
			cmds = append(cmds, m.debounceListUpdate())
		}
		m.listLock.Unlock()

		if !m.quitting && m.phaseMessage != "Processing..." && msg.Status == analysis.StatusProcessing {
			m.phaseMessage = "Processing..."
		}

	case hooks.ProgressMsg:
		m.summary.Completed = msg.Completed
		m.summary.Total = msg.Total

	case hooks.RunCompleteMsg:
		m.phaseMessage = "Complete"
		m.summary.ProcessedCount = msg.Report.Summary.ProcessedCount
		m.summary.SkippedCount = msg.Report.Summary.SkippedCount
		m.summary.FailedCount = msg.Report.Summary.FailedCount
		m.summary.TotalDiscovered = msg.Report.Summary.TotalDiscovered
		if msg.Report.Results != nil {
			if failed := msg.Report.Results.FailedIDs(); len(failed) > 0 {
				res, ok := msg.Report.Results.FileResult(failed[0])
				if ok && len(res.Errors()) > 0 {
					m.fatalError = fmt.Sprintf("%s: %s", failed[0], res.Errors()[0])
				}
			}
		}

	case UpdateListMsg:
		m.listLock.Lock()
		items := make([]list.Item, len(m.fileItems))
		for i, item := range m.fileItems {
			items[i] = item
		}
		m.listLock.Unlock()
		cmds = append(cmds, m.list.SetItems(items))
	}

	if listCmd != nil {
		cmds = append(cmds, listCmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the header, file list, and summary footer.
func (m *Model) View() string {
	if m.quitting {
		return "Exiting...\n"
	}
	if !m.initialized {
		return "Initializing..."
	}

	headerLeft := fmt.Sprintf("soundsift v%s", m.appVersion)
	headerRight := m.phaseMessage
	if m.phaseMessage != "Complete" && m.phaseMessage != "Initializing..." {
		headerRight = m.spinner.View() + " " + m.phaseMessage
	}
	headerCenter := ""
	headerWidth := m.width - lipgloss.Width(headerLeft) - lipgloss.Width(headerRight)
	if headerWidth > 0 {
		headerCenter = lipgloss.PlaceHorizontal(headerWidth, lipgloss.Center, " ")
	}
	header := HeaderStyle.Width(m.width).Render(lipgloss.JoinHorizontal(lipgloss.Top, headerLeft, headerCenter, headerRight))

	elapsed := time.Since(m.summary.StartTime).Round(time.Millisecond)
	summaryText := fmt.Sprintf(
		"Done: %d/%d | Analyzed: %d | Skipped: %d | Failed: %d | Elapsed: %s",
		m.summary.Completed,
		m.summary.Total,
		m.summary.ProcessedCount,
		m.summary.SkippedCount,
		m.summary.FailedCount,
		elapsed,
	)
	footerLeft := summaryText
	footerRight := "q: quit"
	footerWidth := m.width - lipgloss.Width(footerLeft) - lipgloss.Width(footerRight)
	footerCenter := ""
	if footerWidth > 0 {
		footerCenter = lipgloss.PlaceHorizontal(footerWidth, lipgloss.Center, " ")
	}
	footer := FooterStyle.Width(m.width).Render(lipgloss.JoinHorizontal(lipgloss.Bottom, footerLeft, footerCenter, footerRight))

	errorView := ""
	if m.fatalError != "" {
		errorView = StatusStyleFailed.Render(m.fatalError) + "\n"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.list.View(),
		errorView,
		footer,
	)
}

// isFinalStatus checks if a status represents a terminal state for a file.
func isFinalStatus(status analysis.Status) bool {
	return status == analysis.StatusSuccess ||
		status == analysis.StatusFailed ||
		status == analysis.StatusSkipped
}

// incrementSummaryCount updates counts for a new final status.
// MUST be called with listLock held.
func (m *Model) incrementSummaryCount(status analysis.Status) {
	switch status {
	case analysis.StatusSuccess:
		m.summary.ProcessedCount++
	case analysis.StatusSkipped:
		m.summary.SkippedCount++
	case analysis.StatusFailed:
		m.summary.FailedCount++
	}
}

// --- list.Item implementation ---

func (i listItem) FilterValue() string { return i.id }

func (i listItem) Title() string { return i.id }

func (i listItem) Description() string {
	var statusStyle lipgloss.Style
	statusIcon := " "
	switch i.status {
	case analysis.StatusSuccess:
		statusStyle = StatusStyleSuccess
		statusIcon = "✓"
	case analysis.StatusFailed:
		statusStyle = StatusStyleFailed
		statusIcon = "✗"
	case analysis.StatusSkipped:
		statusStyle = StatusStyleSkipped
		statusIcon = "S"
	case analysis.StatusProcessing:
		statusStyle = StatusStyleProcessing
		statusIcon = "…"
	default:
		statusStyle = StatusStylePending
	}

	statusStr := statusStyle.Render(fmt.Sprintf("[%s]", statusIcon))
	details := ""
	switch i.status {
	case analysis.StatusFailed:
		details = i.message
	case analysis.StatusSkipped:
		details = i.message
	case analysis.StatusSuccess:
		if i.duration > 0 {
			details = formatDuration(i.duration)
		}
	}
	return fmt.Sprintf("%s %s", statusStr, details)
}

// formatDuration formats duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		if d == 0 {
			return ""
		}
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// --- list update debouncing ---

// UpdateListMsg signals that the list component should refresh its items.
type UpdateListMsg struct{}

const listUpdateDebounceDuration = 50 * time.Millisecond

// debounceListUpdate coalesces rapid status changes into one list refresh.
// MUST be called with listLock held.
func (m *Model) debounceListUpdate() tea.Cmd {
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	m.debounceTimer = time.NewTimer(listUpdateDebounceDuration)
	return func() tea.Msg {
		<-m.debounceTimer.C
		return UpdateListMsg{}
	}
}

// --- styles ---

const (
	ColorHeaderFg = lipgloss.Color("252")
	ColorHeaderBg = lipgloss.Color("62")

	ColorFooterFg = lipgloss.Color("252")
	ColorFooterBg = lipgloss.Color("56")

	ColorNormalFg     = lipgloss.Color("250")
	ColorNormalDescFg = lipgloss.Color("244")

	ColorSelectedFg     = lipgloss.Color("255")
	ColorSelectedBg     = lipgloss.Color("56")
	ColorSelectedDescFg = lipgloss.Color("248")

	ColorStatusSuccess    = lipgloss.Color("40")
	ColorStatusFailed     = lipgloss.Color("196")
	ColorStatusSkipped    = lipgloss.Color("214")
	ColorStatusPending    = lipgloss.Color("244")
	ColorStatusProcessing = lipgloss.Color("205")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHeaderFg).
			Background(ColorHeaderBg).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorFooterFg).
			Background(ColorFooterBg).
			Padding(0, 1)

	StatusStyleSuccess    = lipgloss.NewStyle().Foreground(ColorStatusSuccess)
	StatusStyleFailed     = lipgloss.NewStyle().Foreground(ColorStatusFailed)
	StatusStyleSkipped    = lipgloss.NewStyle().Foreground(ColorStatusSkipped)
	StatusStylePending    = lipgloss.NewStyle().Foreground(ColorStatusPending)
	StatusStyleProcessing = lipgloss.NewStyle().Foreground(ColorStatusProcessing)
)
