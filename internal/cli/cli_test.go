package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/daymake/internal/config"
	"github.com/me/daymake/internal/scheduler"
	"github.com/me/daymake/internal/server"
	"github.com/me/daymake/internal/store"
	"github.com/me/daymake/pkg/model"
)

// workspace is a temporary daymake home with a config file pointing into it.
type workspace struct {
	root    string
	jobsDir string
	logDir  string
	dbPath  string
	config  string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	root := t.TempDir()
	w := &workspace{
		root:    root,
		jobsDir: filepath.Join(root, "jobs"),
		logDir:  filepath.Join(root, "logs"),
		dbPath:  filepath.Join(root, "state", "daymake.db"),
		config:  filepath.Join(root, "config.yaml"),
	}
	require.NoError(t, os.MkdirAll(w.jobsDir, 0o755))

	conf := fmt.Sprintf(`jobs_dir: %s
log_dir: %s
db_path: %s
poll_interval: 50ms
timezone: UTC
report_schedule: ""
log_level: error
`, w.jobsDir, w.logDir, w.dbPath)
	require.NoError(t, os.WriteFile(w.config, []byte(conf), 0o644))
	return w
}

func (w *workspace) job(t *testing.T, name, body string) {
	t.Helper()
	path := filepath.Join(w.jobsDir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// execute runs the root command with args and returns its output.
func execute(ctx context.Context, args ...string) (string, error) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(context.Background(), "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "daymake dev"))
}

func TestCheck_AllResolved(t *testing.T) {
	w := newWorkspace(t)
	w.job(t, "extract", "command: echo extract\n")
	w.job(t, "load", "command: echo load\ndepends_on: [extract]\n")

	out, err := execute(context.Background(), "--config", w.config, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "2 jobs, all dependencies resolved")
}

func TestCheck_Unresolved(t *testing.T) {
	w := newWorkspace(t)
	w.job(t, "extract", "command: echo extract\n")
	w.job(t, "etl/load", "command: echo load\ndepends_on: extract, ghost, phantom\n")

	out, err := execute(context.Background(), "--config", w.config, "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 jobs")
	assert.Contains(t, out, "etl/load")
	assert.Contains(t, out, "ghost, phantom")
}

func TestRun_RejectsMalformedRunDate(t *testing.T) {
	w := newWorkspace(t)
	_, err := execute(context.Background(), "--config", w.config, "run", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")
}

func TestRun_MissingJobsDir(t *testing.T) {
	w := newWorkspace(t)
	_, err := execute(context.Background(), "--config", w.config, "--jobs-dir", filepath.Join(w.root, "nope"), "run", "2024-01-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jobs dir")
}

func TestRun_EndToEnd(t *testing.T) {
	w := newWorkspace(t)
	w.job(t, "hello", "description: greet\ncommand: echo hello\nstart_after: \"00:00\"\n")
	w.job(t, "after", "command: echo after\ndepends_on: hello\n")
	w.job(t, "broken", "command: echo never\ndepends_on: ghost\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		_, err := execute(ctx, "--config", w.config, "run", "2000-01-01")
		errCh <- err
	}()

	statusOf := func(id string) model.Status {
		logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		st, err := store.NewSQLiteStore(w.dbPath, logger)
		if err != nil {
			return model.StatusMissing
		}
		defer st.Close()
		s, err := store.StatusOf(context.Background(), st, id, "2000-01-01")
		if err != nil {
			return model.StatusMissing
		}
		return s
	}

	require.Eventually(t, func() bool {
		return statusOf("after") == model.StatusDone
	}, 15*time.Second, 100*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, model.StatusDone, statusOf("hello"))
	assert.Equal(t, model.StatusInvalid, statusOf("broken"))

	logData, err := os.ReadFile(filepath.Join(w.logDir, "2000-01-01_hello.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(logData))
}

func TestRun_BadReportScheduleFromEnv(t *testing.T) {
	w := newWorkspace(t)
	w.job(t, "hello", "command: echo hello\n")
	t.Setenv("DAYMAKE_REPORT_SCHEDULE", "not a cron spec")

	_, err := execute(context.Background(), "--config", w.config, "run", "2000-01-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report_schedule")

	assert.NoFileExists(t, w.dbPath)
	assert.NoFileExists(t, filepath.Join(w.logDir, "2000-01-01_hello.log"))
}

func TestRunDaemon_BadReportScheduleStartsNothing(t *testing.T) {
	w := newWorkspace(t)
	w.job(t, "hello", "command: echo hello\n")

	c := config.Default()
	c.JobsDir = w.jobsDir
	c.LogDir = w.logDir
	c.DBPath = w.dbPath
	c.DaemonLog = filepath.Join(w.root, "daymake.log")
	c.Timezone = "UTC"
	c.PollInterval = 10 * time.Millisecond
	c.ListenAddr = ""
	c.LogLevel = "error"
	c.ReportSchedule = "61 * * * *"

	err := runDaemon(context.Background(), c, "2000-01-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report schedule")

	// Nothing may have been launched before the error was returned.
	time.Sleep(100 * time.Millisecond)
	assert.NoFileExists(t, filepath.Join(w.logDir, "2000-01-01_hello.log"))

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	st, err := store.NewSQLiteStore(w.dbPath, logger)
	require.NoError(t, err)
	defer st.Close()
	s, err := store.StatusOf(context.Background(), st, "hello", "2000-01-01")
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, s)
}

type fakeStatus struct{}

func (fakeStatus) RunDate() string   { return "2024-01-01" }
func (fakeStatus) Session() string   { return "s" }
func (fakeStatus) RunningCount() int { return 0 }
func (fakeStatus) Summary(context.Context) (scheduler.Summary, error) {
	return scheduler.Summary{
		RunDate: "2024-01-01",
		Counts:  map[model.Status]int{model.StatusDone: 2, model.StatusWaiting: 1},
		Stuck:   []string{"etl/load"},
	}, nil
}

func startTestServer(t *testing.T) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := store.NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.ReplaceJobs(ctx, []*model.Job{
		{ID: "etl/load", Description: "load warehouse", Command: "make load", StartAfter: "05:00", Days: "d", DependsOn: []string{"etl/extract"}},
		{ID: "etl/daily load?v=1#x", Command: "make daily", StartAfter: "00:00", Days: "d"},
	}))
	require.NoError(t, st.AppendEvents(ctx,
		model.NewStatusEvent("etl/load", "2024-01-01", model.StatusWaiting, "new job added")))

	srv := server.New(st, fakeStatus{}, logger, server.WithGatherer(prometheus.NewRegistry()))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestStatus_Summary(t *testing.T) {
	w := newWorkspace(t)
	url := startTestServer(t)

	out, err := execute(context.Background(), "--config", w.config, "status", "--server", url)
	require.NoError(t, err)
	assert.Contains(t, out, "Run date: 2024-01-01")
	assert.Contains(t, out, "waiting  1")
	assert.Contains(t, out, "done     2")
	assert.Contains(t, out, "Stuck:    etl/load")
}

func TestStatus_Job(t *testing.T) {
	w := newWorkspace(t)
	url := startTestServer(t)

	out, err := execute(context.Background(), "--config", w.config, "status", "--server", url, "etl/load")
	require.NoError(t, err)
	assert.Contains(t, out, "Job:         etl/load")
	assert.Contains(t, out, "Depends on:  etl/extract")
	assert.Contains(t, out, "Status:      waiting")
	assert.Contains(t, out, "Comment:     new job added")
	assert.Contains(t, out, "History:")
	assert.Regexp(t, `waiting +new job added`, out)
}

func TestStatus_JobIDNeedingEscape(t *testing.T) {
	w := newWorkspace(t)
	url := startTestServer(t)

	out, err := execute(context.Background(), "--config", w.config, "status", "--server", url, "etl/daily load?v=1#x")
	require.NoError(t, err)
	assert.Contains(t, out, "Job:         etl/daily load?v=1#x")
	assert.Contains(t, out, "Status:      missing")
}

func TestEscapeJobID(t *testing.T) {
	assert.Equal(t, "etl/load", escapeJobID("etl/load"))
	assert.Equal(t, "etl/daily%20load%3Fv=1%23x", escapeJobID("etl/daily load?v=1#x"))
	assert.Equal(t, "100%25", escapeJobID("100%"))
}

func TestStatus_UnknownJob(t *testing.T) {
	w := newWorkspace(t)
	url := startTestServer(t)

	_, err := execute(context.Background(), "--config", w.config, "status", "--server", url, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStatus_NoAddress(t *testing.T) {
	w := newWorkspace(t)
	_, err := execute(context.Background(), "--config", w.config, "status")
	require.Error(t, err)
}
