package models

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     AgentState
		to       AgentState
		expected bool
	}{
		// Valid transitions from idle
		{"idle to running", AgentIdle, AgentRunning, true},
		{"idle to cancelled", AgentIdle, AgentCancelled, true},

		// Invalid transitions from idle
		{"idle to completed", AgentIdle, AgentCompleted, false},
		{"idle to failed", AgentIdle, AgentFailed, false},

		// Valid transitions from running
		{"running to completed", AgentRunning, AgentCompleted, true},
		{"running to failed", AgentRunning, AgentFailed, true},
		{"running to cancelled", AgentRunning, AgentCancelled, true},

		// Invalid transitions from running
		{"running to idle", AgentRunning, AgentIdle, false},

		// Terminal states (no valid transitions)
		{"completed to running", AgentCompleted, AgentRunning, false},
		{"completed to failed", AgentCompleted, AgentFailed, false},
		{"failed to running", AgentFailed, AgentRunning, false},
		{"cancelled to running", AgentCancelled, AgentRunning, false},
		{"cancelled to idle", AgentCancelled, AgentIdle, false},

		// Unknown state
		{"unknown to running", AgentState("unknown"), AgentRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAgentStateTerminal(t *testing.T) {
	tests := []struct {
		state    AgentState
		terminal bool
	}{
		{AgentIdle, false},
		{AgentRunning, false},
		{AgentCompleted, true},
		{AgentFailed, true},
		{AgentCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.Terminal(); got != tt.terminal {
				t.Errorf("%q.Terminal() = %v, want %v", tt.state, got, tt.terminal)
			}
		})
	}
}

func TestAgentStateValid(t *testing.T) {
	for _, s := range []AgentState{AgentIdle, AgentRunning, AgentCompleted, AgentFailed, AgentCancelled} {
		if !s.Valid() {
			t.Errorf("%q.Valid() = false, want true", s)
		}
	}
	if AgentState("bogus").Valid() {
		t.Error(`AgentState("bogus").Valid() = true, want false`)
	}
}

func TestTaskIsCommand(t *testing.T) {
	cmd := &Task{ID: "t1", Command: "echo hi"}
	if !cmd.IsCommand() {
		t.Error("task with Command should be a command task")
	}

	chat := &Task{ID: "t2", Prompt: "hello"}
	if chat.IsCommand() {
		t.Error("task with only Prompt should not be a command task")
	}
}

func TestExecutionRequestCommandLine(t *testing.T) {
	req := &ExecutionRequest{Command: "ls", Args: []string{"-la", "/tmp"}}
	if got, want := req.CommandLine(), "ls -la /tmp"; got != want {
		t.Errorf("CommandLine() = %q, want %q", got, want)
	}

	bare := &ExecutionRequest{Command: "pwd"}
	if got := bare.CommandLine(); got != "pwd" {
		t.Errorf("CommandLine() = %q, want %q", got, "pwd")
	}
}
