package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/me/daymake/internal/executor"
	"github.com/me/daymake/internal/store"
	"github.com/me/daymake/pkg/model"
)

// Catalog replaces the persisted job snapshot from a Source.
type Catalog struct {
	source Source
	store  store.Store
	logger *slog.Logger
}

// New creates a Catalog.
func New(src Source, st store.Store, logger *slog.Logger) *Catalog {
	return &Catalog{
		source: src,
		store:  st,
		logger: logger.With("component", "catalog"),
	}
}

// Reload loads every definition and swaps the stored catalog for it. The
// stored catalog is never patched incrementally.
func (c *Catalog) Reload(ctx context.Context) ([]*model.Job, error) {
	before, err := c.store.CountJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	jobs, err := c.source.Load(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(jobs))
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		if seen[j.ID] {
			return nil, fmt.Errorf("duplicate job id %q", j.ID)
		}
		seen[j.ID] = true
		ids = append(ids, j.ID)
	}

	// Jobs sharing a log name overwrite each other's log when both run.
	collisions := executor.LogCollisions(ids)
	names := make([]string, 0, len(collisions))
	for name := range collisions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.logger.Warn("job ids share a log file name", "log_name", name, "jobs", collisions[name])
	}

	if err := c.store.ReplaceJobs(ctx, jobs); err != nil {
		return nil, fmt.Errorf("replace jobs: %w", err)
	}
	c.logger.Info("catalog reloaded", "previous_jobs", before, "jobs", len(jobs))
	return jobs, nil
}

// Graph maps each job id to the ids it depends on.
func Graph(jobs []*model.Job) map[string][]string {
	g := make(map[string][]string, len(jobs))
	for _, j := range jobs {
		g[j.ID] = j.DependsOn
	}
	return g
}

// Unresolved returns, for every job naming dependencies that are not job ids
// in the graph, those missing ids in declared order.
func Unresolved(g map[string][]string) map[string][]string {
	missing := make(map[string][]string)
	for id, deps := range g {
		for _, dep := range deps {
			if _, ok := g[dep]; !ok {
				missing[id] = append(missing[id], dep)
			}
		}
	}
	return missing
}
