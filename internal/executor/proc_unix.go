//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the child in its own process group so a kill
// can reach everything the shell forks, not just the shell itself.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessTree kills the child's whole process group. A shell that
// has forked leaves grandchildren holding the output pipes open; killing
// only the shell would leave them running and block the reap.
func killProcessTree(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if pid <= 0 {
		return
	}
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid > 0 {
		// Negative PGID signals the full group.
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		return
	}
	_ = cmd.Process.Kill()
}
