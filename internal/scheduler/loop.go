package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/me/daymake/internal/executor"
	"github.com/me/daymake/internal/metrics"
	"github.com/me/daymake/internal/store"
	"github.com/me/daymake/pkg/model"
)

// Config holds scheduler configuration.
type Config struct {
	RunDate      string
	PollInterval time.Duration
	Location     *time.Location
	// Session tags every event appended by this loop. Generated when empty.
	Session string
}

// DefaultConfig returns sensible defaults for runDate.
func DefaultConfig(runDate string) Config {
	return Config{
		RunDate:      runDate,
		PollInterval: 5 * time.Second,
		Location:     time.UTC,
	}
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock overrides the wall clock used by the time gate.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
	}
}

// WithMetrics sets the collectors updated by the loop.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) {
		l.metrics = m
	}
}

// Loop implements the Scheduler interface with a polling loop over one run date.
type Loop struct {
	store      store.Store
	jobs       map[string]*model.Job
	ids        []string
	supervisor *executor.Supervisor
	metrics    *metrics.Metrics
	config     Config
	now        func() time.Time
	logger     *slog.Logger

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	// running mirrors supervisor.Running() for readers outside the loop goroutine.
	running atomic.Int64
	// stuck holds jobs already reported as stuck. Loop goroutine only.
	stuck map[string]bool
}

// NewLoop creates a scheduler loop over the given catalog snapshot.
func NewLoop(st store.Store, jobs []*model.Job, sup *executor.Supervisor, cfg Config, logger *slog.Logger, opts ...Option) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig(cfg.RunDate).PollInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Session == "" {
		cfg.Session = uuid.New().String()
	}

	l := &Loop{
		store:      st,
		jobs:       make(map[string]*model.Job, len(jobs)),
		supervisor: sup,
		config:     cfg,
		now:        time.Now,
		logger:     logger.With("component", "scheduler", "run_date", cfg.RunDate),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		stuck:      make(map[string]bool),
	}
	for _, j := range jobs {
		l.jobs[j.ID] = j
		l.ids = append(l.ids, j.ID)
	}
	sort.Strings(l.ids)
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = metrics.Discard()
	}
	return l
}

// RunDate returns the run date this loop schedules.
func (l *Loop) RunDate() string { return l.config.RunDate }

// Session returns the id stamped on events appended by this loop.
func (l *Loop) Session() string { return l.config.Session }

// RunningCount returns the number of launched, not yet reaped processes.
// Safe for concurrent use.
func (l *Loop) RunningCount() int { return int(l.running.Load()) }

// Start begins the scheduling loop. The first tick runs immediately. Blocks
// until ctx is cancelled or Stop is called; a failed tick stops the loop and
// its error is returned.
func (l *Loop) Start(ctx context.Context) error {
	defer close(l.doneCh)
	defer l.reportAbandoned()

	l.logger.Info("scheduler started",
		"poll_interval", l.config.PollInterval,
		"session", l.config.Session,
		"jobs", len(l.ids),
	)
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := l.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				l.logger.Info("scheduler stopping (context cancelled)")
				return nil
			}
			l.logger.Error("tick error", "error", err)
			return err
		}
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopping (context cancelled)")
			return nil
		case <-l.stopCh:
			l.logger.Info("scheduler stopping (stop called)")
			return nil
		case <-ticker.C:
		}
	}
}

// Stop gracefully shuts down the scheduler and waits for the current tick to finish.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
	return nil
}

// reportAbandoned logs the children left running at shutdown. They are not
// signalled; the next start for this run date marks them unknown.
func (l *Loop) reportAbandoned() {
	for _, id := range l.supervisor.JobIDs() {
		l.logger.Warn("job abandoned while running", "job_id", id)
	}
}

// Tick runs a single scheduling iteration. Each phase commits its events
// before the next one starts.
func (l *Loop) Tick(ctx context.Context) error {
	started := time.Now()
	defer func() {
		l.running.Store(int64(l.supervisor.Running()))
		l.metrics.SetRunning(l.supervisor.Running())
		l.metrics.ObserveTick(time.Since(started))
	}()

	// Phase 1: Reap finished processes.
	if err := l.reap(ctx); err != nil {
		return fmt.Errorf("phase 1 (reap): %w", err)
	}

	// Phase 2: Promote waiting jobs whose gates are open.
	if err := l.evaluate(ctx); err != nil {
		return fmt.Errorf("phase 2 (evaluate): %w", err)
	}

	// Phase 3: Launch ready jobs.
	if err := l.launch(ctx); err != nil {
		return fmt.Errorf("phase 3 (launch): %w", err)
	}

	return nil
}

// reap records the outcome of every finished process. Handles are released
// only once their events are committed.
func (l *Loop) reap(ctx context.Context) error {
	finished := l.supervisor.Poll()
	if len(finished) == 0 {
		return nil
	}

	current, err := l.statuses(ctx)
	if err != nil {
		return err
	}

	changes := make([]change, 0, len(finished))
	ids := make([]string, 0, len(finished))
	for _, h := range finished {
		out, _ := h.Poll()
		changes = append(changes, l.change(h.JobID, current[h.JobID], out.Status(), out.Comment()))
		ids = append(ids, h.JobID)
	}
	if err := l.commit(ctx, changes); err != nil {
		return err
	}
	l.supervisor.Release(ids...)
	return nil
}

// evaluate appends ready for every waiting job whose time and dependency
// gates are both open in one snapshot.
func (l *Loop) evaluate(ctx context.Context) error {
	current, err := l.statuses(ctx)
	if err != nil {
		return err
	}

	r := Evaluate(l.now(), l.config.Location, l.config.RunDate, l.jobs, current)
	l.metrics.SetWaiting(r.Waiting, len(r.Stuck))
	for _, id := range r.Stuck {
		if !l.stuck[id] {
			l.stuck[id] = true
			l.logger.Warn("job stuck: a dependency can no longer be done",
				"job_id", id,
				"depends_on", l.jobs[id].DependsOn,
			)
		}
	}

	if len(r.Ready) == 0 {
		return nil
	}
	changes := make([]change, 0, len(r.Ready))
	for _, id := range r.Ready {
		changes = append(changes, l.change(id, model.StatusWaiting, model.StatusReady, ""))
	}
	return l.commit(ctx, changes)
}

// launch starts every ready job that has no tracked process.
func (l *Loop) launch(ctx context.Context) error {
	ready, err := l.store.IDsWithStatus(ctx, l.config.RunDate, model.StatusReady)
	if err != nil {
		return err
	}

	var changes []change
	for _, id := range ready {
		if l.supervisor.Tracking(id) {
			continue
		}
		job, ok := l.jobs[id]
		if !ok {
			l.logger.Warn("ready job not in catalog", "job_id", id)
			continue
		}
		h := l.supervisor.Launch(job, l.config.RunDate)
		changes = append(changes, l.change(id, model.StatusReady, model.StatusRunning, h.LogPath))
	}
	return l.commit(ctx, changes)
}

// statuses reads one snapshot of current statuses for the run date.
func (l *Loop) statuses(ctx context.Context) (map[string]model.Status, error) {
	events, err := l.store.CurrentStatuses(ctx, l.config.RunDate)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Status, len(events))
	for id, ev := range events {
		out[id] = ev.Status
	}
	return out, nil
}

// change is a pending event together with the status it replaces.
type change struct {
	from  model.Status
	event *model.StatusEvent
}

func (l *Loop) change(jobID string, from, to model.Status, comment string) change {
	if from == "" {
		from = model.StatusMissing
	}
	ev := model.NewStatusEvent(jobID, l.config.RunDate, to, comment)
	ev.Session = l.config.Session
	return change{from: from, event: ev}
}

// commit checks every change against the state machine, appends all events
// in one transaction and narrates them.
func (l *Loop) commit(ctx context.Context, changes []change) error {
	if len(changes) == 0 {
		return nil
	}
	events := make([]*model.StatusEvent, len(changes))
	for i, c := range changes {
		if !c.from.CanTransitionTo(c.event.Status) {
			return &model.InvalidTransitionError{
				JobID:   c.event.JobID,
				RunDate: c.event.RunDate,
				From:    c.from,
				To:      c.event.Status,
			}
		}
		events[i] = c.event
	}

	if err := l.store.AppendEvents(ctx, events...); err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	l.metrics.ObserveEvents(events)

	for _, c := range changes {
		l.logger.Info("status changed",
			"job_id", c.event.JobID,
			"from", c.from,
			"to", c.event.Status,
			"comment", c.event.Comment,
		)
	}
	return nil
}
