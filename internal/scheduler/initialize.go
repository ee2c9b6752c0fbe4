package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/me/daymake/internal/catalog"
	"github.com/me/daymake/pkg/model"
)

// Initialize reconciles the ledger for the run date with the catalog
// snapshot held by the store:
// processes still marked running from a previous session become unknown,
// catalog jobs without a live status become waiting, and live ids that left
// the catalog become deleted. All events are committed together; a second
// call appends nothing.
func (l *Loop) Initialize(ctx context.Context) error {
	current, err := l.statuses(ctx)
	if err != nil {
		return fmt.Errorf("read statuses: %w", err)
	}
	ids, err := l.store.JobIDs(ctx)
	if err != nil {
		return fmt.Errorf("read catalog ids: %w", err)
	}

	var live, running []string
	for id, status := range current {
		if status == model.StatusDeleted {
			continue
		}
		live = append(live, id)
		if status == model.StatusRunning {
			running = append(running, id)
		}
	}

	orphaned := lo.Intersect(running, ids)
	added, removed := lo.Difference(ids, live)
	sort.Strings(orphaned)
	sort.Strings(removed)

	var changes []change
	for _, id := range orphaned {
		changes = append(changes, l.change(id, model.StatusRunning, model.StatusUnknown, "was running when the daemon stopped"))
	}
	for _, id := range added {
		changes = append(changes, l.change(id, current[id], model.StatusWaiting, "new job added"))
	}
	for _, id := range removed {
		changes = append(changes, l.change(id, current[id], model.StatusDeleted, "job removed from catalog"))
	}

	if err := l.commit(ctx, changes); err != nil {
		return err
	}
	l.logger.Info("run date initialized",
		"orphaned", len(orphaned),
		"added", len(added),
		"removed", len(removed),
	)
	return nil
}

// ValidateDependencies marks invalid every waiting job that names a
// dependency absent from the catalog. Jobs in other statuses are untouched.
func (l *Loop) ValidateDependencies(ctx context.Context) error {
	current, err := l.statuses(ctx)
	if err != nil {
		return fmt.Errorf("read statuses: %w", err)
	}

	jobs := lo.Map(l.ids, func(id string, _ int) *model.Job { return l.jobs[id] })
	unresolved := catalog.Unresolved(catalog.Graph(jobs))

	var changes []change
	for _, id := range l.ids {
		missing, ok := unresolved[id]
		if !ok || current[id] != model.StatusWaiting {
			continue
		}
		changes = append(changes, l.change(id, model.StatusWaiting, model.StatusInvalid,
			"unknown dependency: "+strings.Join(missing, ", ")))
	}
	return l.commit(ctx, changes)
}

// Summary is a point-in-time view of the run date.
type Summary struct {
	RunDate string
	// Counts maps each status, including missing, to the number of catalog
	// jobs currently in it.
	Counts map[model.Status]int
	Stuck  []string
}

// Summary reads the current statuses of the catalog jobs. It only touches the
// store and immutable state, so it is safe to call from any goroutine.
func (l *Loop) Summary(ctx context.Context) (Summary, error) {
	current, err := l.statuses(ctx)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{RunDate: l.config.RunDate, Counts: make(map[model.Status]int)}
	for _, id := range l.ids {
		status, ok := current[id]
		if !ok {
			status = model.StatusMissing
		}
		s.Counts[status]++
	}
	s.Stuck = Evaluate(l.now(), l.config.Location, l.config.RunDate, l.jobs, current).Stuck
	return s, nil
}
