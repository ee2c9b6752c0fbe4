//go:build windows

package executor

import "os/exec"

func setupCommand(cmd *exec.Cmd) {}

func signalName(err *exec.ExitError) string { return "" }
