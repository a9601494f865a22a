// Package executor runs shell commands as OS processes with timeout,
// cancellation, and streaming output support.
package executor

import (
	"os"
	"runtime"

	"github.com/clawmate/clawmate/pkg/models"
)

// Builder translates an ExecutionRequest into a concrete invocation
// vector for the host platform. It holds no mutable state and is safe
// for concurrent use.
type Builder struct {
	goos  string
	shell string
}

// NewBuilder creates a Builder for the current platform.
func NewBuilder() *Builder {
	return NewBuilderFor(runtime.GOOS, loginShell(runtime.GOOS))
}

// NewBuilderFor creates a Builder for an explicit platform and shell.
// Used by tests to exercise foreign-platform invocation vectors.
func NewBuilderFor(goos, shell string) *Builder {
	return &Builder{goos: goos, shell: shell}
}

// loginShell returns the shell used to run command strings.
func loginShell(goos string) string {
	if goos == "windows" {
		return "powershell.exe"
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

// Shell returns the shell the builder dispatches command strings through.
func (b *Builder) Shell() string {
	return b.shell
}

// Build returns the argv vector for the request. On Windows the command
// string is passed to PowerShell whether or not a PTY was requested; the
// two paths converge because no native ConPTY handling is wired up. On
// POSIX hosts a PTY request wraps the command with script(1), otherwise
// the command runs through the login shell's -c switch.
func (b *Builder) Build(req models.ExecutionRequest) []string {
	line := req.CommandLine()
	if b.goos == "windows" {
		return []string{b.shell, "-NoProfile", "-Command", line}
	}
	if req.PTY {
		return []string{"script", "-qec", line, "/dev/null"}
	}
	return []string{b.shell, "-c", line}
}
