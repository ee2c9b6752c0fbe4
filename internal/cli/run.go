package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/me/daymake/internal/catalog"
	"github.com/me/daymake/internal/config"
	"github.com/me/daymake/internal/executor"
	"github.com/me/daymake/internal/logging"
	"github.com/me/daymake/internal/metrics"
	"github.com/me/daymake/internal/report"
	"github.com/me/daymake/internal/scheduler"
	"github.com/me/daymake/internal/server"
	"github.com/me/daymake/internal/store"
)

// runDateLayout is the form of run date arguments.
const runDateLayout = "2006-01-02"

func newRunCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "run [RUNDATE]",
		Short: "Schedule the catalog for a run date (default: today)",
		Long: "Run the scheduler for RUNDATE (YYYY-MM-DD, default today in the configured\n" +
			"time zone) until interrupted. Jobs still running at shutdown keep running and\n" +
			"are marked unknown the next time the same run date is started.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			runDate := time.Now().In(loc).Format(runDateLayout)
			if len(args) == 1 {
				runDate = args[0]
				if _, err := time.Parse(runDateLayout, runDate); err != nil {
					return fmt.Errorf("run date %q: want YYYY-MM-DD", runDate)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, cfg, runDate)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Diagnostics listen address, e.g. 127.0.0.1:9090")
	return cmd
}

// runDaemon wires the store, catalog, scheduler, diagnostics server and
// reporter, and blocks until ctx is cancelled or one of them fails.
func runDaemon(ctx context.Context, cfg config.Config, runDate string) error {
	if fi, err := os.Stat(cfg.JobsDir); err != nil {
		return fmt.Errorf("jobs dir: %w", err)
	} else if !fi.IsDir() {
		return fmt.Errorf("jobs dir %s: not a directory", cfg.JobsDir)
	}
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("create db dir: %w", err)
		}
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	log, closer, err := logging.NewDaemonLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cfg.DaemonLog)
	if err != nil {
		return err
	}
	defer closer.Close()

	st, err := store.NewSQLiteStore(cfg.DBPath, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	jobs, err := catalog.New(catalog.NewDirSource(cfg.JobsDir, log), st, log).Reload(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sup := executor.NewSupervisor(executor.NewLocalExecutor(cfg.LogDir, cfg.Shell, log), log)
	loop := scheduler.NewLoop(st, jobs, sup, scheduler.Config{
		RunDate:      runDate,
		PollInterval: cfg.PollInterval,
		Location:     loc,
		Session:      uuid.New().String(),
	}, log, scheduler.WithMetrics(metrics.New(reg)))

	if err := loop.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize run date: %w", err)
	}
	if err := loop.ValidateDependencies(ctx); err != nil {
		return fmt.Errorf("validate dependencies: %w", err)
	}

	// Everything that can fail is built before the first goroutine starts.
	var rep *report.Reporter
	if cfg.ReportSchedule != "" {
		if rep, err = report.New(loop, cfg.ReportSchedule, loc, log); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Start(gctx)
	})
	if cfg.ListenAddr != "" {
		srv := server.New(st, loop, log, server.WithGatherer(reg), server.WithVersion(Version))
		g.Go(func() error {
			return srv.Serve(gctx, cfg.ListenAddr)
		})
	}
	if rep != nil {
		g.Go(func() error {
			return rep.Run(gctx)
		})
	}

	err = g.Wait()
	log.Info("daymake stopped", "run_date", runDate)
	return err
}
