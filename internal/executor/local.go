package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/me/daymake/pkg/model"
)

// DefaultShell runs job commands when no shell is configured.
const DefaultShell = "/bin/sh"

// LocalExecutor runs jobs as local shell processes whose combined stdout and
// stderr go to a per-job, per-run-date log file.
type LocalExecutor struct {
	logger *slog.Logger
	logDir string
	shell  string
}

// NewLocalExecutor creates a LocalExecutor writing logs under logDir.
// If logDir is empty, os.TempDir() is used; if shell is empty, DefaultShell.
func NewLocalExecutor(logDir, shell string, logger *slog.Logger) *LocalExecutor {
	if logDir == "" {
		logDir = os.TempDir()
	}
	if shell == "" {
		shell = DefaultShell
	}
	return &LocalExecutor{
		logDir: logDir,
		shell:  shell,
		logger: logger.With("component", "local-executor"),
	}
}

// Start launches `shell -c job.Command` and returns immediately.
func (e *LocalExecutor) Start(job *model.Job, runDate string) *Handle {
	logPath := LogPath(e.logDir, job.ID, runDate)
	result := make(chan model.Outcome, 1)
	h := NewHandle(job.ID, runDate, logPath, result)

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		result <- model.LaunchFailed(fmt.Errorf("open log %s: %w", logPath, err))
		return h
	}

	cmd := exec.Command(e.shell, "-c", job.Command)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(),
		"DAYMAKE_JOB_ID="+job.ID,
		"DAYMAKE_RUN_DATE="+runDate,
		"DAYMAKE_LOG_FILE="+logPath,
	)
	setupCommand(cmd)

	if err := cmd.Start(); err != nil {
		logFile.Close()
		result <- model.LaunchFailed(err)
		return h
	}
	h.PID = cmd.Process.Pid

	e.logger.Debug("process started",
		"job_id", job.ID,
		"run_date", runDate,
		"pid", h.PID,
		"log", logPath,
	)

	go func() {
		waitErr := cmd.Wait()
		logFile.Close()
		result <- outcomeOf(waitErr)
	}()

	return h
}

// outcomeOf converts the error returned by exec.Cmd.Wait into an Outcome.
func outcomeOf(err error) model.Outcome {
	if err == nil {
		return model.Succeeded()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if sig := signalName(exitErr); sig != "" {
			return model.Killed(sig)
		}
		return model.Exited(exitErr.ExitCode())
	}
	return model.Outcome{Kind: model.OutcomeExited, ExitCode: -1, Err: err}
}
