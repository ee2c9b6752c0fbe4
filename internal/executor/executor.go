package executor

import (
	"time"

	"github.com/me/daymake/pkg/model"
)

// Executor starts job processes. Start never blocks on the process and always
// returns a handle whose result channel eventually delivers exactly one Outcome,
// including when the process could not be started.
type Executor interface {
	Start(job *model.Job, runDate string) *Handle
}

// Handle tracks one launched job process.
type Handle struct {
	JobID     string
	RunDate   string
	LogPath   string
	PID       int
	StartedAt time.Time

	result  <-chan model.Outcome
	outcome *model.Outcome
}

// NewHandle returns a handle reading its outcome from result. Each launch must
// use its own channel.
func NewHandle(jobID, runDate, logPath string, result <-chan model.Outcome) *Handle {
	return &Handle{
		JobID:     jobID,
		RunDate:   runDate,
		LogPath:   logPath,
		StartedAt: time.Now(),
		result:    result,
	}
}

// Poll reports the outcome without blocking. Once received, the outcome is
// kept on the handle and returned by every later call.
func (h *Handle) Poll() (model.Outcome, bool) {
	if h.outcome != nil {
		return *h.outcome, true
	}
	select {
	case o := <-h.result:
		h.outcome = &o
		return o, true
	default:
		return model.Outcome{}, false
	}
}
