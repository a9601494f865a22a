package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/clawmate/clawmate/pkg/models"
)

func staticSnapshot(rows []TaskRow) SnapshotFunc {
	return func() []TaskRow { return rows }
}

func TestViewRendersStates(t *testing.T) {
	rows := []TaskRow{
		{ID: "a", Label: "echo one", State: models.AgentRunning},
		{ID: "b", Label: "echo two", State: models.AgentCompleted, Duration: 120 * time.Millisecond},
		{ID: "c", Label: "broken", State: models.AgentFailed, Error: "exit code 1"},
		{ID: "d", Label: "queued", State: models.AgentIdle},
	}
	m := NewSwarmModel("swarm", staticSnapshot(rows))

	view := m.View()
	for _, want := range []string{"swarm", "echo one", "running", "completed", "failed", "exit code 1", "idle", "q to quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestViewTruncatesLongLabels(t *testing.T) {
	long := strings.Repeat("x", 100)
	m := NewSwarmModel("swarm", staticSnapshot([]TaskRow{{ID: "a", Label: long, State: models.AgentRunning}}))

	if strings.Contains(m.View(), long) {
		t.Error("long label should be truncated")
	}
	if !strings.Contains(m.View(), "...") {
		t.Error("truncated label should carry an ellipsis")
	}
}

func TestUpdateQuitsWhenAllTerminal(t *testing.T) {
	rows := []TaskRow{
		{ID: "a", State: models.AgentCompleted},
		{ID: "b", State: models.AgentFailed},
	}
	m := NewSwarmModel("swarm", staticSnapshot(rows))

	updated, cmd := m.Update(tickMsg(time.Now()))
	model := updated.(SwarmModel)
	if !model.done {
		t.Error("model should be done when every row is terminal")
	}
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if model.Aborted() {
		t.Error("natural completion is not an abort")
	}
}

func TestUpdateKeepsPollingWhileActive(t *testing.T) {
	rows := []TaskRow{{ID: "a", State: models.AgentRunning}}
	m := NewSwarmModel("swarm", staticSnapshot(rows))

	updated, cmd := m.Update(tickMsg(time.Now()))
	if updated.(SwarmModel).done {
		t.Error("model should not be done with a running row")
	}
	if cmd == nil {
		t.Error("expected a follow-up tick command")
	}
}

func TestUpdateQuitKey(t *testing.T) {
	m := NewSwarmModel("swarm", staticSnapshot([]TaskRow{{ID: "a", State: models.AgentRunning}}))

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if !updated.(SwarmModel).Aborted() {
		t.Error("quitting mid-run should mark the model aborted")
	}
}

func TestAllTerminalEmpty(t *testing.T) {
	if allTerminal(nil) {
		t.Error("empty row set should not count as finished")
	}
}
