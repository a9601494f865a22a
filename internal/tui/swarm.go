// Package tui renders the live swarm dashboard.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/clawmate/clawmate/pkg/models"
)

// TaskRow is one dashboard line.
type TaskRow struct {
	ID       string
	Label    string
	State    models.AgentState
	Duration time.Duration
	Error    string
}

// SnapshotFunc returns the current task rows in submission order.
type SnapshotFunc func() []TaskRow

type tickMsg time.Time

// SwarmModel drives the swarm dashboard: a polling loop that redraws
// task states until every task is terminal or the user quits.
type SwarmModel struct {
	title    string
	snapshot SnapshotFunc
	rows     []TaskRow
	spin     spinner.Model
	start    time.Time
	done     bool
	aborted  bool

	titleStyle   lipgloss.Style
	runningStyle lipgloss.Style
	okStyle      lipgloss.Style
	failedStyle  lipgloss.Style
	idleStyle    lipgloss.Style
	footerStyle  lipgloss.Style
}

// NewSwarmModel builds the dashboard model.
func NewSwarmModel(title string, snapshot SnapshotFunc) SwarmModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))

	return SwarmModel{
		title:    title,
		snapshot: snapshot,
		rows:     snapshot(),
		spin:     sp,
		start:    time.Now(),

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")),
		runningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")), // Green
		okStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")), // Dark green
		failedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")), // Red
		idleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")), // Gray
		footerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Aborted reports whether the user quit before the swarm finished.
func (m SwarmModel) Aborted() bool {
	return m.aborted
}

// Init starts the spinner and the poll loop.
func (m SwarmModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles key presses, spinner frames, and poll ticks.
func (m SwarmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.done {
				m.aborted = true
			}
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tickMsg:
		m.rows = m.snapshot()
		if allTerminal(m.rows) {
			m.done = true
			return m, tea.Quit
		}
		return m, tick()
	}
	return m, nil
}

func allTerminal(rows []TaskRow) bool {
	for _, row := range rows {
		if !row.State.Terminal() {
			return false
		}
	}
	return len(rows) > 0
}

// View renders the dashboard.
func (m SwarmModel) View() string {
	var b strings.Builder

	b.WriteString(m.titleStyle.Render(m.title))
	b.WriteString(fmt.Sprintf("  %s\n\n", m.footerStyle.Render(time.Since(m.start).Round(time.Second).String())))

	for _, row := range m.rows {
		b.WriteString(m.renderRow(row))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.footerStyle.Render("all tasks finished"))
	} else {
		b.WriteString(m.footerStyle.Render("q to quit"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m SwarmModel) renderRow(row TaskRow) string {
	var icon, state string
	switch row.State {
	case models.AgentRunning:
		icon = m.spin.View()
		state = m.runningStyle.Render(string(row.State))
	case models.AgentCompleted:
		icon = m.okStyle.Render("✓")
		state = m.okStyle.Render(string(row.State))
	case models.AgentFailed, models.AgentCancelled:
		icon = m.failedStyle.Render("✗")
		state = m.failedStyle.Render(string(row.State))
	default:
		icon = m.idleStyle.Render("•")
		state = m.idleStyle.Render(string(row.State))
	}

	label := row.Label
	if len(label) > 48 {
		label = label[:45] + "..."
	}

	line := fmt.Sprintf("%s %-10s %-48s", icon, state, label)
	if row.State.Terminal() && row.Duration > 0 {
		line += m.footerStyle.Render(row.Duration.Round(time.Millisecond).String())
	}
	if row.Error != "" {
		errText := row.Error
		if idx := strings.IndexByte(errText, '\n'); idx >= 0 {
			errText = errText[:idx]
		}
		line += "\n    " + m.failedStyle.Render(errText)
	}
	return line
}

// RunSwarmDashboard runs the dashboard until completion or user quit.
// It returns whether the user aborted early.
func RunSwarmDashboard(title string, snapshot SnapshotFunc) (bool, error) {
	program := tea.NewProgram(NewSwarmModel(title, snapshot))
	final, err := program.Run()
	if err != nil {
		return false, err
	}
	model, ok := final.(SwarmModel)
	if !ok {
		return false, nil
	}
	return model.Aborted(), nil
}
