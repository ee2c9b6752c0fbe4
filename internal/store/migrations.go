package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all daymake tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id          TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		command     TEXT NOT NULL,
		start_after TEXT NOT NULL DEFAULT '00:00',
		days        TEXT NOT NULL DEFAULT 'd',
		depends_on  TEXT NOT NULL DEFAULT '[]'
	)`,

	// seq is AUTOINCREMENT so sequence numbers are never reused.
	`CREATE TABLE IF NOT EXISTS status_events (
		seq      INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id   TEXT NOT NULL,
		run_date TEXT NOT NULL,
		time     TEXT NOT NULL,
		status   TEXT NOT NULL,
		comment  TEXT NOT NULL DEFAULT '',
		session  TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS idx_status_events_key ON status_events(job_id, run_date, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_status_events_run_date ON status_events(run_date)`,

	// Latest event per (job_id, run_date).
	`CREATE VIEW IF NOT EXISTS current_status AS
		SELECT e.seq, e.job_id, e.run_date, e.time, e.status, e.comment, e.session
		FROM status_events e
		JOIN (
			SELECT job_id, run_date, MAX(seq) AS seq
			FROM status_events
			GROUP BY job_id, run_date
		) latest ON latest.seq = e.seq`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
