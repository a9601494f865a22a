package models

import "time"

// ExecutionRequest describes one OS-level command execution.
type ExecutionRequest struct {
	// Command is the shell command string to run.
	Command string `json:"command"`
	// Args is the ordered argument list appended to the command string.
	Args []string `json:"args,omitempty"`
	// Cwd is the working directory. Empty means the process default.
	Cwd string `json:"cwd,omitempty"`
	// Env holds environment overrides merged onto the inherited environment.
	Env map[string]string `json:"env,omitempty"`
	// Timeout bounds the execution. Zero means the executor's default.
	Timeout time.Duration `json:"timeout,omitempty"`
	// PTY requests execution under a terminal-allocating wrapper.
	PTY bool `json:"pty"`
	// Elevated marks the request as requiring elevated privileges.
	Elevated bool `json:"elevated"`
	// Sandbox requests execution inside the container backend.
	Sandbox bool `json:"sandbox"`
}

// CommandLine returns the full command string including arguments.
func (r *ExecutionRequest) CommandLine() string {
	line := r.Command
	for _, arg := range r.Args {
		line += " " + arg
	}
	return line
}

// ExecutionResult is the outcome of one execution attempt. ExitCode -1 is
// the sentinel for "could not determine / never ran to normal completion".
type ExecutionResult struct {
	// Command is the command string that was executed.
	Command string `json:"command"`
	// ExitCode is the process exit code, or -1.
	ExitCode int `json:"exit_code"`
	// Stdout is the captured standard output.
	Stdout string `json:"stdout"`
	// Stderr is the captured standard error.
	Stderr string `json:"stderr"`
	// Duration is the elapsed wall-clock time of the attempt.
	Duration time.Duration `json:"duration"`
	// PID is the OS process id, when a process was started.
	PID int `json:"pid,omitempty"`
}

// StreamOrigin identifies which pipe a streamed chunk came from.
type StreamOrigin string

const (
	// OriginStdout marks a chunk read from standard output.
	OriginStdout StreamOrigin = "stdout"
	// OriginStderr marks a chunk read from standard error.
	OriginStderr StreamOrigin = "stderr"
	// OriginError marks a terminal error chunk emitted when streaming
	// cannot continue normally.
	OriginError StreamOrigin = "error"
)

// OutputChunk is one unit of streamed process output: a completed line
// from exactly one of the two pipes. Chunks are never merged across streams.
type OutputChunk struct {
	// Origin is the pipe the chunk was read from.
	Origin StreamOrigin `json:"origin"`
	// Text is the line content, including its trailing newline.
	Text string `json:"text"`
}

// Err returns true when the chunk reports a streaming error.
func (c OutputChunk) Err() bool {
	return c.Origin == OriginError
}
