// Package store provides SQLite-backed persistence for the Blueprint Engine.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	problem         TEXT NOT NULL,
	provider        TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'running',
	phase           TEXT NOT NULL DEFAULT 'generation',
	iteration       INTEGER NOT NULL DEFAULT 0,
	state_version   INTEGER NOT NULL DEFAULT 1,
	summary_json    TEXT NOT NULL DEFAULT '',
	created_at_unix INTEGER NOT NULL DEFAULT 0,
	updated_at_unix INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS run_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	seq_no       INTEGER NOT NULL,
	phase        TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	payload_json TEXT NOT NULL DEFAULT '{}',
	created_at   INTEGER NOT NULL,
	UNIQUE(run_id, seq_no)
);
CREATE INDEX IF NOT EXISTS idx_events_run_seq ON run_events(run_id, seq_no);

CREATE TABLE IF NOT EXISTS feedback_items (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	domain     TEXT NOT NULL,
	severity   TEXT NOT NULL,
	detail     TEXT NOT NULL,
	source     TEXT NOT NULL,
	phase      TEXT NOT NULL DEFAULT '',
	iteration  INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_run ON feedback_items(run_id);

CREATE TABLE IF NOT EXISTS phase_snapshots (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	phase         TEXT NOT NULL,
	iteration     INTEGER NOT NULL DEFAULT 0,
	snapshot_json TEXT NOT NULL DEFAULT '{}',
	checksum      TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_run_phase ON phase_snapshots(run_id, phase);

CREATE TABLE IF NOT EXISTS cost_deltas (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	caller        TEXT NOT NULL DEFAULT '',
	phase         TEXT NOT NULL DEFAULT '',
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	amount_usd    REAL NOT NULL DEFAULT 0.0,
	created_at    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cost_deltas_run ON cost_deltas(run_id);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
