package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/clawmate/clawmate/pkg/models"
)

// DefaultTimeout bounds executions whose request carries no timeout.
const DefaultTimeout = 5 * time.Minute

// Executor spawns, times, cancels, and captures output of single OS
// processes. It is safe for concurrent use.
type Executor struct {
	builder        *Builder
	defaultTimeout time.Duration
}

// Config contains configuration options for the Executor.
type Config struct {
	// DefaultTimeout is applied when a request has no timeout.
	// Zero means DefaultTimeout.
	DefaultTimeout time.Duration
	// Builder overrides the platform command builder. Nil means NewBuilder().
	Builder *Builder
}

// New creates an Executor with the given configuration.
func New(cfg Config) *Executor {
	b := cfg.Builder
	if b == nil {
		b = NewBuilder()
	}
	timeout := cfg.DefaultTimeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Executor{builder: b, defaultTimeout: timeout}
}

// Builder returns the executor's command builder.
func (e *Executor) Builder() *Builder {
	return e.builder
}

// Execute runs the request to completion and returns its result. It never
// returns an error: spawn failures, timeouts, and cancellation all produce
// an ExecutionResult with exit code -1 and a descriptive message in Stderr.
// On timeout or cancellation the process is killed and reaped before the
// call returns; no runnable process is ever left behind.
func (e *Executor) Execute(ctx context.Context, req models.ExecutionRequest) models.ExecutionResult {
	start := time.Now()
	result := models.ExecutionResult{
		Command:  req.CommandLine(),
		ExitCode: -1,
	}

	argv := e.builder.Build(req)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = req.Cwd
	cmd.Env = mergeEnv(req.Env)
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		result.Stderr = fmt.Sprintf("spawn failed: %v", err)
		result.Duration = time.Since(start)
		return result
	}
	result.PID = cmd.Process.Pid

	timeout := req.Timeout
	if timeout == 0 {
		timeout = e.defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		result.Duration = time.Since(start)
		result.Stdout = decode(stdout.Bytes())
		result.Stderr = decode(stderr.Bytes())
		result.ExitCode = exitCode(cmd, err)
		return result

	case <-timer.C:
		// Kill and then wait so the OS has confirmed the reap before
		// this call returns.
		killProcessTree(cmd)
		<-done
		result.Duration = time.Since(start)
		result.Stderr = fmt.Sprintf("command timed out after %v", timeout)
		return result

	case <-ctx.Done():
		killProcessTree(cmd)
		<-done
		result.Duration = time.Since(start)
		result.Stderr = fmt.Sprintf("command cancelled: %v", ctx.Err())
		return result
	}
}

// mergeEnv layers the request overrides onto the inherited environment.
// Later entries win, so overrides shadow inherited values.
func mergeEnv(overrides map[string]string) []string {
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// decode converts captured bytes to text, substituting invalid sequences.
func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// exitCode extracts the process exit code from a Wait result.
func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
