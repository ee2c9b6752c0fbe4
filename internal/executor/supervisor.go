package executor

import (
	"log/slog"
	"sort"

	"github.com/me/daymake/pkg/model"
)

// Supervisor owns the table of launched, not yet released job processes.
// It is not safe for concurrent use; the scheduler loop is its only caller.
type Supervisor struct {
	exec    Executor
	handles map[string]*Handle
	logger  *slog.Logger
}

// NewSupervisor creates a Supervisor launching through exec.
func NewSupervisor(exec Executor, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		exec:    exec,
		handles: make(map[string]*Handle),
		logger:  logger.With("component", "supervisor"),
	}
}

// Launch starts the job and tracks its handle. The caller must not launch a
// job id that is still tracked.
func (s *Supervisor) Launch(job *model.Job, runDate string) *Handle {
	h := s.exec.Start(job, runDate)
	s.handles[job.ID] = h
	s.logger.Info("job launched",
		"job_id", job.ID,
		"run_date", runDate,
		"command", job.Command,
		"pid", h.PID,
		"log", h.LogPath,
	)
	return h
}

// Poll checks every tracked handle without blocking and returns the finished
// ones ordered by job id. Finished handles stay tracked until Release.
func (s *Supervisor) Poll() []*Handle {
	var finished []*Handle
	for _, h := range s.handles {
		if _, done := h.Poll(); done {
			finished = append(finished, h)
		}
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].JobID < finished[j].JobID })
	return finished
}

// Release stops tracking the given job ids.
func (s *Supervisor) Release(jobIDs ...string) {
	for _, id := range jobIDs {
		delete(s.handles, id)
	}
}

// Tracking reports whether a handle for jobID is tracked.
func (s *Supervisor) Tracking(jobID string) bool {
	_, ok := s.handles[jobID]
	return ok
}

// Running returns the number of tracked handles.
func (s *Supervisor) Running() int {
	return len(s.handles)
}

// JobIDs returns the tracked job ids in order.
func (s *Supervisor) JobIDs() []string {
	ids := make([]string, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
