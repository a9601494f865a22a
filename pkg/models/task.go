package models

import "time"

// AgentState represents the current lifecycle state of an agent handle.
type AgentState string

const (
	// AgentIdle indicates the task is registered but not yet dispatched.
	AgentIdle AgentState = "idle"
	// AgentRunning indicates the task body is actively executing.
	AgentRunning AgentState = "running"
	// AgentCompleted indicates the task finished successfully.
	AgentCompleted AgentState = "completed"
	// AgentFailed indicates the task finished with an error.
	AgentFailed AgentState = "failed"
	// AgentCancelled indicates the task was cancelled before completion.
	AgentCancelled AgentState = "cancelled"
)

// Valid returns true if the state is a known value.
func (s AgentState) Valid() bool {
	switch s {
	case AgentIdle, AgentRunning, AgentCompleted, AgentFailed, AgentCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the state admits no further transitions.
func (s AgentState) Terminal() bool {
	switch s {
	case AgentCompleted, AgentFailed, AgentCancelled:
		return true
	default:
		return false
	}
}

// validTransitions defines the allowed state transitions.
// Key is the current state, value is the set of valid target states.
var validTransitions = map[AgentState]map[AgentState]bool{
	AgentIdle: {
		AgentRunning:   true,
		AgentCancelled: true,
	},
	AgentRunning: {
		AgentCompleted: true,
		AgentFailed:    true,
		AgentCancelled: true,
	},
	// Terminal states cannot transition to anything else.
	AgentCompleted: {},
	AgentFailed:    {},
	AgentCancelled: {},
}

// CanTransition checks if a state transition is valid.
func CanTransition(from, to AgentState) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Task is a caller-submitted unit of work: either a model prompt or a
// shell command. Tasks are immutable after submission.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Prompt is the model prompt, for chat tasks.
	Prompt string `json:"prompt,omitempty"`
	// Command is the shell command, for execution tasks. When set, the
	// task is routed to the executor (or sandbox) instead of the model.
	Command string `json:"command,omitempty"`
	// Args is the ordered argument list appended to Command.
	Args []string `json:"args,omitempty"`
	// Model overrides the configured default model, if non-empty.
	Model string `json:"model,omitempty"`
	// Timeout bounds the task's execution. Zero means the configured default.
	Timeout time.Duration `json:"timeout,omitempty"`
	// Sandbox requests execution inside the container backend.
	Sandbox bool `json:"sandbox"`
	// Elevated marks the task as requiring elevated privileges.
	Elevated bool `json:"elevated"`
}

// IsCommand returns true when the task represents a shell command.
func (t *Task) IsCommand() bool {
	return t.Command != ""
}

// TaskResult is the terminal outcome of one task. Exactly one result is
// recorded per task id, written once when the handle reaches a terminal
// state and never mutated afterward.
type TaskResult struct {
	// TaskID identifies the task this result belongs to.
	TaskID string `json:"task_id"`
	// Success indicates whether the task completed successfully.
	Success bool `json:"success"`
	// Output is the captured output text.
	Output string `json:"output"`
	// Error contains the failure message, if any.
	Error string `json:"error,omitempty"`
	// Duration is measured from dispatch to the terminal transition.
	Duration time.Duration `json:"duration"`
}
