package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/daymake/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// One connection: appends are serialized and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    time.Now,
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables, indexes and views.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Job catalog ---

// ReplaceJobs deletes every job and inserts the given ones in a single transaction.
func (s *SQLiteStore) ReplaceJobs(ctx context.Context, jobs []*model.Job) error {
	s.logger.Debug("sql", "op", "replace", "table", "jobs", "count", len(jobs))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("delete jobs: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO jobs (id, description, command, start_after, days, depends_on)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, job := range jobs {
		deps := job.DependsOn
		if deps == nil {
			deps = []string{}
		}
		depsJSON, err := json.Marshal(deps)
		if err != nil {
			return fmt.Errorf("marshal depends_on: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			job.ID, job.Description, job.Command, job.StartAfter, job.Days, string(depsJSON),
		); err != nil {
			return fmt.Errorf("insert job %s: %w", job.ID, err)
		}
	}

	return tx.Commit()
}

// ListJobs returns every job ordered by id.
func (s *SQLiteStore) ListJobs(ctx context.Context) ([]*model.Job, error) {
	s.logger.Debug("sql", "op", "list", "table", "jobs")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description, command, start_after, days, depends_on FROM jobs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetJob returns the job with the given id, or (nil, nil) if it does not exist.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, description, command, start_after, days, depends_on FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// JobIDs returns the ids of every job in the catalog.
func (s *SQLiteStore) JobIDs(ctx context.Context) ([]string, error) {
	s.logger.Debug("sql", "op", "list_ids", "table", "jobs")
	return s.queryStrings(ctx, `SELECT id FROM jobs ORDER BY id`)
}

// CountJobs returns the number of jobs in the catalog.
func (s *SQLiteStore) CountJobs(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n)
	return n, err
}

// --- Status ledger ---

// AppendEvents appends events in one transaction. On success each event has
// its Seq set, and Time set if it was zero.
func (s *SQLiteStore) AppendEvents(ctx context.Context, events ...*model.StatusEvent) error {
	if len(events) == 0 {
		return nil
	}
	s.logger.Debug("sql", "op", "append", "table", "status_events", "count", len(events))

	for _, ev := range events {
		if !ev.Status.IsStored() {
			return fmt.Errorf("append %s/%s: status %q cannot be stored", ev.JobID, ev.RunDate, ev.Status)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO status_events (job_id, run_date, time, status, comment, session)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	seqs := make([]int64, len(events))
	times := make([]time.Time, len(events))
	for i, ev := range events {
		ts := ev.Time
		if ts.IsZero() {
			ts = s.now().UTC()
		}
		res, err := stmt.ExecContext(ctx,
			ev.JobID, ev.RunDate, ts.Format(time.RFC3339Nano), string(ev.Status), ev.Comment, ev.Session)
		if err != nil {
			return fmt.Errorf("insert event %s/%s: %w", ev.JobID, ev.RunDate, err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		seqs[i] = seq
		times[i] = ts
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for i, ev := range events {
		ev.Seq = seqs[i]
		ev.Time = times[i]
	}
	return nil
}

// CurrentStatus returns the latest event for (jobID, runDate), or (nil, nil)
// when the ledger has none.
func (s *SQLiteStore) CurrentStatus(ctx context.Context, jobID, runDate string) (*model.StatusEvent, error) {
	s.logger.Debug("sql", "op", "select", "table", "current_status", "job_id", jobID, "run_date", runDate)

	row := s.db.QueryRowContext(ctx,
		`SELECT seq, job_id, run_date, time, status, comment, session
		 FROM current_status WHERE job_id = ? AND run_date = ?`, jobID, runDate)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// CurrentStatuses returns the latest event of every job that has one for runDate.
func (s *SQLiteStore) CurrentStatuses(ctx context.Context, runDate string) (map[string]*model.StatusEvent, error) {
	s.logger.Debug("sql", "op", "list", "table", "current_status", "run_date", runDate)

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, job_id, run_date, time, status, comment, session
		 FROM current_status WHERE run_date = ?`, runDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	current := make(map[string]*model.StatusEvent)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		current[ev.JobID] = ev
	}
	return current, rows.Err()
}

// IDsWithStatus returns the ids whose current status for runDate is status.
func (s *SQLiteStore) IDsWithStatus(ctx context.Context, runDate string, status model.Status) ([]string, error) {
	s.logger.Debug("sql", "op", "list_ids", "table", "current_status", "run_date", runDate, "status", status)
	return s.queryStrings(ctx,
		`SELECT job_id FROM current_status WHERE run_date = ? AND status = ? ORDER BY job_id`,
		runDate, string(status))
}

// ListEvents returns the full history of (jobID, runDate) in append order.
func (s *SQLiteStore) ListEvents(ctx context.Context, jobID, runDate string) ([]*model.StatusEvent, error) {
	s.logger.Debug("sql", "op", "list", "table", "status_events", "job_id", jobID, "run_date", runDate)
	return s.queryEvents(ctx,
		`SELECT seq, job_id, run_date, time, status, comment, session
		 FROM status_events WHERE job_id = ? AND run_date = ? ORDER BY seq`, jobID, runDate)
}

// ListRunDateEvents returns every event of runDate, all jobs, in append order.
func (s *SQLiteStore) ListRunDateEvents(ctx context.Context, runDate string) ([]*model.StatusEvent, error) {
	s.logger.Debug("sql", "op", "list", "table", "status_events", "run_date", runDate)
	return s.queryEvents(ctx,
		`SELECT seq, job_id, run_date, time, status, comment, session
		 FROM status_events WHERE run_date = ? ORDER BY seq`, runDate)
}

// --- helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*model.Job, error) {
	var job model.Job
	var depsJSON string
	if err := row.Scan(&job.ID, &job.Description, &job.Command, &job.StartAfter, &job.Days, &depsJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(depsJSON), &job.DependsOn); err != nil {
		return nil, fmt.Errorf("unmarshal depends_on of %s: %w", job.ID, err)
	}
	return &job, nil
}

func scanEvent(row scanner) (*model.StatusEvent, error) {
	var ev model.StatusEvent
	var ts, status string
	if err := row.Scan(&ev.Seq, &ev.JobID, &ev.RunDate, &ts, &status, &ev.Comment, &ev.Session); err != nil {
		return nil, err
	}
	ev.Status = model.Status(status)
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse time of event %d: %w", ev.Seq, err)
	}
	ev.Time = t
	return &ev, nil
}

func (s *SQLiteStore) queryEvents(ctx context.Context, query string, args ...any) ([]*model.StatusEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*model.StatusEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
