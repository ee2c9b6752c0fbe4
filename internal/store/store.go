package store

import (
	"context"

	"github.com/me/daymake/pkg/model"
)

// Store defines the persistence layer: the job catalog snapshot and the
// append-only status ledger.
type Store interface {
	// Job catalog
	ReplaceJobs(ctx context.Context, jobs []*model.Job) error
	ListJobs(ctx context.Context) ([]*model.Job, error)
	GetJob(ctx context.Context, id string) (*model.Job, error)
	JobIDs(ctx context.Context) ([]string, error)
	CountJobs(ctx context.Context) (int, error)

	// Status ledger
	AppendEvents(ctx context.Context, events ...*model.StatusEvent) error
	CurrentStatus(ctx context.Context, jobID, runDate string) (*model.StatusEvent, error)
	CurrentStatuses(ctx context.Context, runDate string) (map[string]*model.StatusEvent, error)
	IDsWithStatus(ctx context.Context, runDate string, status model.Status) ([]string, error)
	ListEvents(ctx context.Context, jobID, runDate string) ([]*model.StatusEvent, error)
	ListRunDateEvents(ctx context.Context, runDate string) ([]*model.StatusEvent, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// StatusOf returns the current status of a job for a run date, or
// model.StatusMissing when the ledger has no event for it.
func StatusOf(ctx context.Context, st Store, jobID, runDate string) (model.Status, error) {
	ev, err := st.CurrentStatus(ctx, jobID, runDate)
	if err != nil {
		return "", err
	}
	if ev == nil {
		return model.StatusMissing, nil
	}
	return ev.Status, nil
}
