// Package report periodically logs a summary of the run date.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/me/daymake/internal/scheduler"
	"github.com/me/daymake/pkg/model"
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Summarizer produces the summary to report.
type Summarizer interface {
	Summary(ctx context.Context) (scheduler.Summary, error)
}

// Reporter logs a Summary on a cron schedule.
type Reporter struct {
	cron   *cron.Cron
	src    Summarizer
	logger *slog.Logger
}

// New creates a Reporter firing on schedule, a five-field cron expression or
// a descriptor such as "@every 10m", interpreted in loc.
func New(src Summarizer, schedule string, loc *time.Location, logger *slog.Logger) (*Reporter, error) {
	if _, err := cronParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("report schedule %q: %w", schedule, err)
	}
	if loc == nil {
		loc = time.UTC
	}

	r := &Reporter{
		src:    src,
		logger: logger.With("component", "reporter"),
	}
	cl := cronLogger{r.logger}
	r.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := r.cron.AddFunc(schedule, func() { r.Report(context.Background()) }); err != nil {
		return nil, fmt.Errorf("report schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Run fires the schedule until ctx is cancelled and waits for a running
// report to finish.
func (r *Reporter) Run(ctx context.Context) error {
	r.cron.Start()
	<-ctx.Done()
	<-r.cron.Stop().Done()
	return nil
}

// Report logs one summary.
func (r *Reporter) Report(ctx context.Context) {
	sum, err := r.src.Summary(ctx)
	if err != nil {
		r.logger.Error("status summary", "error", err)
		return
	}

	attrs := []any{"run_date", sum.RunDate}
	for _, s := range append([]model.Status{model.StatusMissing}, model.AllStatuses...) {
		if n := sum.Counts[s]; n > 0 {
			attrs = append(attrs, s.String(), n)
		}
	}
	r.logger.Info("status summary", attrs...)

	if len(sum.Stuck) > 0 {
		r.logger.Warn("stuck jobs", "run_date", sum.RunDate, "jobs", sum.Stuck)
	}
}

// cronLogger routes cron's own messages into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
