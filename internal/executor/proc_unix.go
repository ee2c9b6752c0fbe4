//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// setupCommand starts the job in its own process group so signals sent to
// the daemon's group do not reach it.
func setupCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

// signalName returns the terminating signal of a killed process, or "".
func signalName(err *exec.ExitError) string {
	if ws, ok := err.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ws.Signal().String()
	}
	return ""
}
