package model

import (
	"fmt"
	"strconv"
)

// OutcomeKind distinguishes how a launched job ended.
type OutcomeKind int

const (
	// OutcomeSucceeded means the command exited with code 0.
	OutcomeSucceeded OutcomeKind = iota
	// OutcomeExited means the command ran and exited nonzero or was killed.
	OutcomeExited
	// OutcomeLaunchFailed means the command could not be started at all.
	OutcomeLaunchFailed
)

// Outcome is the result of one job process.
type Outcome struct {
	Kind     OutcomeKind
	ExitCode int
	// Signal names the terminating signal when the process was killed.
	Signal string
	Err    error
}

// Succeeded returns the outcome of a zero exit.
func Succeeded() Outcome {
	return Outcome{Kind: OutcomeSucceeded}
}

// Exited returns the outcome of a nonzero exit.
func Exited(code int) Outcome {
	return Outcome{Kind: OutcomeExited, ExitCode: code}
}

// Killed returns the outcome of a process terminated by a signal.
func Killed(signal string) Outcome {
	return Outcome{Kind: OutcomeExited, ExitCode: -1, Signal: signal}
}

// LaunchFailed returns the outcome of a process that never started.
func LaunchFailed(err error) Outcome {
	return Outcome{Kind: OutcomeLaunchFailed, ExitCode: -1, Err: err}
}

// Status maps the outcome to the ledger status it produces.
func (o Outcome) Status() Status {
	if o.Kind == OutcomeSucceeded {
		return StatusDone
	}
	return StatusFailed
}

// Comment describes the outcome for the ledger.
func (o Outcome) Comment() string {
	switch o.Kind {
	case OutcomeSucceeded:
		return "exit status: 0"
	case OutcomeLaunchFailed:
		return fmt.Sprintf("launch failed: %v", o.Err)
	}
	if o.Signal != "" {
		return "killed by signal: " + o.Signal
	}
	return "exit status: " + strconv.Itoa(o.ExitCode)
}
