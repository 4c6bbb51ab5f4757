package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/musicfp/internal/pipeline"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	RunningView ViewState = iota
	ResultView
)

const barWidth = 40

// RunFunc runs the pipeline, reporting progress on the channel.
type RunFunc func(ctx context.Context, progress chan<- pipeline.ProgressUpdate) (*pipeline.RunResult, error)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	cancel       context.CancelFunc
	run          RunFunc
	view         ViewState
	width        int
	height       int
	spinner      spinner.Model
	progressChan chan pipeline.ProgressUpdate
	outcome      *runOutcome
	progress     pipeline.ProgressUpdate
	chunks       int
	batches      int
	stored       int
	workers      []string
	events       []list.Item
	eventList    list.Model
	cancelling   bool
	result       *pipeline.RunResult
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a monitor for run. Cancelling ctx or pressing q stops the run.
func NewModel(ctx context.Context, run RunFunc) *Model {
	ctx, cancel := context.WithCancel(ctx)
	return &Model{
		ctx:     ctx,
		cancel:  cancel,
		run:     run,
		view:    RunningView,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.title.UnsetMarginBottom())),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Result returns the run outcome once the monitor has quit.
func (m *Model) Result() (*pipeline.RunResult, error) {
	return m.result, m.err
}

// Init starts the run and the spinner.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startRun())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.view == ResultView {
			m.eventList.SetSize(msg.Width-4, m.listHeight())
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case RunningView:
			return m.handleRunningKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != RunningView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.apply(msg.data.(pipeline.ProgressUpdate))
			return m, m.waitForProgress()
		case MsgRunComplete:
			outcome := msg.data.(runOutcome)
			m.result = outcome.result
			m.err = outcome.err
			m.progressChan = nil
			m.showResult()
			return m, nil
		}
	}

	if m.view == ResultView {
		var cmd tea.Cmd
		m.eventList, cmd = m.eventList.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply folds a progress update into the counters shown while running.
func (m *Model) apply(update pipeline.ProgressUpdate) {
	m.progress = update
	switch update.Phase {
	case pipeline.Seed:
		m.chunks = update.Total
	case pipeline.Persist, pipeline.Drain:
		m.batches++
		if out, ok := update.Data.(pipeline.PersistOutcome); ok {
			m.stored += out.Inserted
		}
		m.events = append(m.events, eventItem{update: update})
	case pipeline.WorkerStopped:
		m.workers = append(m.workers, update.Message)
		m.events = append(m.events, eventItem{update: update})
	case pipeline.Shutdown:
		m.cancelling = true
	}
}

func (m *Model) showResult() {
	m.view = ResultView
	m.eventList = list.New(m.events, list.NewDefaultDelegate(), 0, 0)
	m.eventList.Title = "Batches"
	m.eventList.SetShowHelp(false)
	m.eventList.SetSize(m.width-4, m.listHeight())
}

func (m *Model) listHeight() int {
	return max(m.height-14, 5)
}

func (m *Model) handleRunningKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.cancel) && !m.cancelling {
		m.cancelling = true
		m.cancel()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.quit) {
		m.cancel()
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.eventList, cmd = m.eventList.Update(msg)
	return m, cmd
}

func (m *Model) startRun() tea.Cmd {
	m.progressChan = make(chan pipeline.ProgressUpdate, 64)
	m.outcome = &runOutcome{}

	progress, outcome := m.progressChan, m.outcome
	go func() {
		outcome.result, outcome.err = m.run(m.ctx, progress)
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, outcome := m.progressChan, m.outcome
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			return runCompleteMsg(*outcome)
		}
		return progressUpdateMsg(update)
	}
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

func (m *Model) renderRunning() string {
	title := styles.title.Render("Extracting fingerprints")

	status := fmt.Sprintf("%s %s", m.spinner.View(), m.progress.Message)
	if m.progress.Message == "" {
		status = fmt.Sprintf("%s Querying catalog...", m.spinner.View())
	}
	if m.cancelling {
		status = styles.warn.Render("Cancelling, waiting for workers to stop...")
	}

	lines := []string{
		title,
		status,
		"",
		fmt.Sprintf("%s %d/%d chunks", styles.bar(m.batches, m.chunks, barWidth), m.batches, m.chunks),
		fmt.Sprintf("%d fingerprints stored", m.stored),
	}
	for _, w := range m.workers {
		lines = append(lines, styles.help.Render("  "+w))
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.cancel})
	return strings.Join(lines, "\n") + "\n\n" + helpView
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Extraction failed: %v\n\nPress q to quit", m.err))
	}
	if m.result == nil {
		return styles.err.Render("No result available\n\nPress q to quit")
	}

	r := m.result
	title := styles.ok.Render(fmt.Sprintf("✓ %d fingerprints stored", r.Persisted))
	if r.Cancelled {
		title = styles.warn.Render(fmt.Sprintf("Cancelled after storing %d fingerprints", r.Persisted))
	}

	info := fmt.Sprintf(
		"\nFiles: %d in %d chunks, %d workers\nAlready cached: %d  Missing tags: %d  Missing files: %d  Failed: %d",
		r.Files, r.Chunks, r.Workers, r.Duplicates, r.Invalid, r.Missing, r.Failed,
	)
	if r.DeadWorkers > 0 {
		info += "\n" + styles.err.Render(fmt.Sprintf("%d workers died; their files stay pending", r.DeadWorkers))
	}

	helpKeys := []key.Binding{m.keys.up, m.keys.down, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	if len(m.events) == 0 {
		return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
	}
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, info, m.eventList.View(), helpView)
}
