package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/scrobtools/scrob/internal/tasks"
)

// tailLines bounds the rolling log of recent progress messages.
const tailLines = 6

// RunFunc executes one pipeline operation, streaming updates into progress
// and returning a one-line summary for the result view.
type RunFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (string, error)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	RunningView ViewState = iota
	ResultView
)

// Model represents the TUI application state for one pipeline run.
type Model struct {
	ctx      context.Context
	view     ViewState
	title    string
	run      RunFunc
	progress chan tasks.ProgressUpdate
	result   chan runDoneMsg

	current tasks.ProgressUpdate
	tail    []string
	summary string
	err     error

	spinner spinner.Model
	help    help.Model
	keys    keyMap
}

type progressUpdateMsg tasks.ProgressUpdate

type runDoneMsg struct {
	summary string
	err     error
}

// NewModel creates a TUI model that runs fn under the given title.
func NewModel(ctx context.Context, title string, fn RunFunc) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.title

	return &Model{
		ctx:      ctx,
		view:     RunningView,
		title:    title,
		run:      fn,
		progress: make(chan tasks.ProgressUpdate, 50),
		result:   make(chan runDoneMsg, 1),
		spinner:  sp,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init starts the pipeline run and the progress listener.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start(), m.waitForEvent())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case progressUpdateMsg:
		m.current = tasks.ProgressUpdate(msg)
		m.tail = append(m.tail, m.current.Message)
		if len(m.tail) > tailLines {
			m.tail = m.tail[len(m.tail)-tailLines:]
		}
		return m, m.waitForEvent()

	case runDoneMsg:
		m.summary = msg.summary
		m.err = msg.err
		m.view = ResultView
		return m, nil

	case spinner.TickMsg:
		if m.view != RunningView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case RunningView:
		return m.renderRunning()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

// start launches the pipeline in the background. The progress channel is
// closed when the run returns so the listener can drain it before reporting
// completion.
func (m *Model) start() tea.Cmd {
	return func() tea.Msg {
		go func() {
			summary, err := m.run(m.ctx, m.progress)
			close(m.progress)
			m.result <- runDoneMsg{summary: summary, err: err}
		}()
		return nil
	}
}

// waitForEvent blocks on the next progress update or the final result.
func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		update, ok := <-m.progress
		if !ok {
			return <-m.result
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderRunning() string {
	title := styles.title.Render(m.title)
	status := fmt.Sprintf("%s %s", m.spinner.View(), phaseLabel(m.current))

	var tail string
	if len(m.tail) > 0 {
		tail = "\n" + styles.help.Render(strings.Join(m.tail, "\n"))
	}

	helpView := m.help.ShortHelpView(m.keys.ShortHelp())
	return fmt.Sprintf("%s\n%s%s\n\n%s", title, status, tail, helpView)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView(m.keys.ShortHelp())

	if m.err != nil {
		header := styles.err.Render(fmt.Sprintf("✗ %s failed: %v", m.title, m.err))
		// Partial progress survives an abort, flag it rather than hide it.
		summary := m.summary
		if summary != "" {
			summary = styles.warn.Render(summary)
		}
		return fmt.Sprintf("%s\n%s\n\n%s", header, summary, helpView)
	}

	header := styles.ok.Render(fmt.Sprintf("✓ %s complete", m.title))
	return fmt.Sprintf("%s\n%s\n\n%s", header, m.summary, helpView)
}

// phaseLabel maps the current progress update to a status line.
func phaseLabel(update tasks.ProgressUpdate) string {
	switch update.Phase {
	case tasks.FetchPages:
		if update.Total > 0 {
			return fmt.Sprintf("Fetching history (page %d/%d)", update.Step, update.Total)
		}
		return fmt.Sprintf("Fetching history (page %d)", update.Step)
	case tasks.SaveBatch:
		return "Saving scrobbles..."
	case tasks.ScanFiles:
		return "Scanning export files..."
	case tasks.ImportFile:
		return fmt.Sprintf("Importing files (%d/%d)", update.Step, update.Total)
	case tasks.DiscoverEntities:
		return "Discovering entities..."
	case tasks.EnrichEntity:
		return fmt.Sprintf("Enriching (%d/%d)", update.Step, update.Total)
	default:
		return "Working..."
	}
}
