package tui

import (
	"context"
	"time"

	pbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/gantryhq/gantry/internal/orchestrator"
	"github.com/gantryhq/gantry/internal/progress"
	"github.com/gantryhq/gantry/internal/tui/styles"
)

// Messages

// tickMsg drives snapshot polling.
type tickMsg time.Time

// planMsg carries the layered plan once resolution succeeds.
type planMsg struct {
	runID  string
	layers [][]string
}

// finishedMsg carries the run outcome the moment it is known.
type finishedMsg struct {
	outcome string
}

// doneMsg signals that Run returned and the program should exit.
type doneMsg struct{}

// tick schedules the next snapshot poll.
func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model renders one run as a live dashboard. All run data comes from
// aggregator snapshots; bus events only carry the plan and the outcome.
type Model struct {
	orch   *orchestrator.Orchestrator
	agg    *progress.Aggregator
	cancel context.CancelFunc

	runID     string
	layers    [][]string
	snap      progress.Snapshot
	outcome   string
	start     time.Time
	elapsed   time.Duration
	width     int
	canceling bool
	done      bool

	spin spinner.Model
	bar  pbar.Model
}

// newModel assembles the dashboard model. cancel requests cooperative
// cancellation of the run when the user quits.
func newModel(orch *orchestrator.Orchestrator, agg *progress.Aggregator, cancel context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = styles.Active

	bar := pbar.New(pbar.WithGradient(string(styles.PrimaryColor), string(styles.BlueColor)))
	bar.Width = 40

	return Model{
		orch:   orch,
		agg:    agg,
		cancel: cancel,
		start:  time.Now(),
		spin:   sp,
		bar:    bar,
	}
}

// Init starts the poll and spinner tickers.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.spin.Tick)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			// First press requests cancellation; the run drains and a
			// doneMsg quits the program.
			if !m.canceling && m.cancel != nil {
				m.canceling = true
				m.cancel()
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = barWidth(msg.Width)
		return m, nil

	case planMsg:
		m.runID = msg.runID
		m.layers = msg.layers
		return m, nil

	case finishedMsg:
		m.outcome = msg.outcome
		return m, nil

	case doneMsg:
		m.done = true
		m.snap = m.agg.Snapshot()
		return m, tea.Quit

	case tickMsg:
		m.snap = m.agg.Snapshot()
		m.elapsed = time.Since(m.start)
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// barWidth fits the progress bar to the terminal, within sane bounds.
func barWidth(term int) int {
	w := term - 24
	if w < 10 {
		return 10
	}
	if w > 48 {
		return 48
	}
	return w
}
