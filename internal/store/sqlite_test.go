package store

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/daymake/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "daymake.db"), logger)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleJobs() []*model.Job {
	return []*model.Job{
		{ID: "extract", Description: "pull data", Command: "echo extract", StartAfter: "05:00", Days: "d"},
		{ID: "load", Command: "echo load", StartAfter: "00:00", Days: "d", DependsOn: []string{"extract", "missing"}},
	}
}

// --- Migration tests ---

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestMemoryDatabase(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	st, err := NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	require.NoError(t, st.AppendEvents(ctx, model.NewStatusEvent("a", "2024-01-01", model.StatusWaiting, "")))
	status, err := StatusOf(ctx, st, "a", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, status)
}

// --- Job catalog tests ---

func TestReplaceJobs(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceJobs(ctx, sampleJobs()))

	n, err := st.CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := st.GetJob(ctx, "load")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"extract", "missing"}, got.DependsOn)
	assert.Equal(t, "00:00", got.StartAfter)

	// A second load replaces the whole catalog.
	require.NoError(t, st.ReplaceJobs(ctx, []*model.Job{{ID: "report", Command: "true", StartAfter: "00:00", Days: "d"}}))

	ids, err := st.JobIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"report"}, ids)

	gone, err := st.GetJob(ctx, "load")
	require.NoError(t, err)
	assert.Nil(t, gone)

	report, err := st.GetJob(ctx, "report")
	require.NoError(t, err)
	assert.Empty(t, report.DependsOn)
}

func TestListJobs(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	require.NoError(t, st.ReplaceJobs(ctx, sampleJobs()))

	jobs, err := st.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "extract", jobs[0].ID)
	assert.Equal(t, "pull data", jobs[0].Description)
	assert.Equal(t, "load", jobs[1].ID)
}

// --- Status ledger tests ---

func TestAppendEvents_AssignsSeqAndTime(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	a := model.NewStatusEvent("a", "2024-01-01", model.StatusWaiting, "new job added")
	b := model.NewStatusEvent("b", "2024-01-01", model.StatusWaiting, "new job added")
	require.NoError(t, st.AppendEvents(ctx, a, b))

	assert.Greater(t, a.Seq, int64(0))
	assert.Greater(t, b.Seq, a.Seq)
	assert.False(t, a.Time.IsZero())
}

func TestAppendEvents_RejectsMissing(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	ok := model.NewStatusEvent("a", "2024-01-01", model.StatusWaiting, "")
	bad := model.NewStatusEvent("a", "2024-01-01", model.StatusMissing, "")
	require.Error(t, st.AppendEvents(ctx, ok, bad))

	// Nothing from the rejected batch was written.
	events, err := st.ListEvents(ctx, "a", "2024-01-01")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCurrentStatus_LatestSeqWins(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	// Identical timestamps: the sequence number decides.
	ts := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	for _, s := range []model.Status{model.StatusWaiting, model.StatusReady, model.StatusRunning} {
		ev := model.NewStatusEvent("a", "2024-01-01", s, "")
		ev.Time = ts
		require.NoError(t, st.AppendEvents(ctx, ev))
	}

	cur, err := st.CurrentStatus(ctx, "a", "2024-01-01")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, model.StatusRunning, cur.Status)
	assert.Equal(t, ts, cur.Time)
}

func TestCurrentStatus_Missing(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	require.NoError(t, st.AppendEvents(ctx, model.NewStatusEvent("a", "2024-01-01", model.StatusDone, "")))

	cur, err := st.CurrentStatus(ctx, "a", "2024-01-02")
	require.NoError(t, err)
	assert.Nil(t, cur)

	status, err := StatusOf(ctx, st, "a", "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, model.StatusMissing, status)
}

func TestCurrentStatuses_PartitionedByRunDate(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	require.NoError(t, st.AppendEvents(ctx,
		model.NewStatusEvent("a", "2024-01-01", model.StatusWaiting, ""),
		model.NewStatusEvent("a", "2024-01-01", model.StatusDone, ""),
		model.NewStatusEvent("b", "2024-01-01", model.StatusFailed, ""),
		model.NewStatusEvent("a", "2024-01-02", model.StatusWaiting, ""),
	))

	cur, err := st.CurrentStatuses(ctx, "2024-01-01")
	require.NoError(t, err)
	require.Len(t, cur, 2)
	assert.Equal(t, model.StatusDone, cur["a"].Status)
	assert.Equal(t, model.StatusFailed, cur["b"].Status)

	next, err := st.CurrentStatuses(ctx, "2024-01-02")
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, model.StatusWaiting, next["a"].Status)
}

func TestIDsWithStatus(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	require.NoError(t, st.AppendEvents(ctx,
		model.NewStatusEvent("b", "2024-01-01", model.StatusWaiting, ""),
		model.NewStatusEvent("a", "2024-01-01", model.StatusWaiting, ""),
		model.NewStatusEvent("c", "2024-01-01", model.StatusWaiting, ""),
		model.NewStatusEvent("c", "2024-01-01", model.StatusReady, ""),
	))

	waiting, err := st.IDsWithStatus(ctx, "2024-01-01", model.StatusWaiting)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, waiting)

	ready, err := st.IDsWithStatus(ctx, "2024-01-01", model.StatusReady)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ready)
}

func TestListEvents_AppendOnlyHistory(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	first := model.NewStatusEvent("a", "2024-01-01", model.StatusWaiting, "new job added")
	first.Session = "s1"
	require.NoError(t, st.AppendEvents(ctx, first))

	before, err := st.ListEvents(ctx, "a", "2024-01-01")
	require.NoError(t, err)
	require.Len(t, before, 1)

	require.NoError(t, st.AppendEvents(ctx, model.NewStatusEvent("a", "2024-01-01", model.StatusReady, "")))

	after, err := st.ListEvents(ctx, "a", "2024-01-01")
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, "s1", after[0].Session)
	assert.Equal(t, "new job added", after[0].Comment)
	assert.Equal(t, model.StatusReady, after[1].Status)
}

func TestListRunDateEvents(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	require.NoError(t, st.AppendEvents(ctx,
		model.NewStatusEvent("b", "2024-01-01", model.StatusWaiting, "new job added"),
		model.NewStatusEvent("a", "2024-01-01", model.StatusWaiting, "new job added"),
		model.NewStatusEvent("a", "2024-01-02", model.StatusWaiting, "new job added"),
	))
	require.NoError(t, st.AppendEvents(ctx, model.NewStatusEvent("b", "2024-01-01", model.StatusReady, "")))

	events, err := st.ListRunDateEvents(ctx, "2024-01-01")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"b", "a", "b"}, []string{events[0].JobID, events[1].JobID, events[2].JobID})
	assert.Less(t, events[0].Seq, events[1].Seq)
	assert.Less(t, events[1].Seq, events[2].Seq)
	assert.Equal(t, model.StatusReady, events[2].Status)

	none, err := st.ListRunDateEvents(ctx, "1999-12-31")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestScanEvent_CorruptTime(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	_, err := st.db.ExecContext(ctx,
		`INSERT INTO status_events (job_id, run_date, time, status, comment, session)
		 VALUES ('a', '2024-01-01', 'yesterday-ish', 'waiting', '', '')`)
	require.NoError(t, err)

	_, err = st.CurrentStatus(ctx, "a", "2024-01-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse time of event")

	_, err = st.ListEvents(ctx, "a", "2024-01-01")
	assert.Error(t, err)
}
