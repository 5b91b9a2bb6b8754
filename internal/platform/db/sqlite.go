package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// openSQL is a package-level var to allow test injection.
var openSQL = sql.Open

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS intake_session (
	id           TEXT PRIMARY KEY,
	program      TEXT    NOT NULL,
	form_version TEXT    NOT NULL,
	patient_id   TEXT    NOT NULL,
	status       TEXT    NOT NULL DEFAULT 'active',
	state        TEXT    NOT NULL,
	version_id   INTEGER NOT NULL DEFAULT 1,
	created_at   TEXT    NOT NULL,
	updated_at   TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intake_session_patient ON intake_session (patient_id, created_at);

CREATE TABLE IF NOT EXISTS review_submission (
	id              TEXT PRIMARY KEY,
	session_id      TEXT    NOT NULL UNIQUE REFERENCES intake_session(id),
	program         TEXT    NOT NULL,
	form_version    TEXT    NOT NULL,
	patient_id      TEXT    NOT NULL,
	answers         TEXT    NOT NULL,
	calculations    TEXT    NOT NULL,
	flags           TEXT    NOT NULL,
	flag_events     TEXT    NOT NULL DEFAULT '[]',
	requires_review INTEGER NOT NULL DEFAULT 0,
	priority        TEXT    NOT NULL DEFAULT 'routine',
	status          TEXT    NOT NULL DEFAULT 'queued',
	reviewer_id     TEXT,
	note            TEXT,
	created_at      TEXT    NOT NULL,
	updated_at      TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_review_submission_queue ON review_submission (status, priority, created_at);
`

// OpenSQLite opens (creating if needed) the single-file store used when
// STORE_DRIVER=sqlite and ensures its schema. SQLite allows one writer, so
// the handle is limited to a single connection.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := openSQL("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return db, nil
}

// Timestamps are stored as fixed-width RFC 3339 text so that ORDER BY on
// the column sorts chronologically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t for a SQLite TEXT column.
func FormatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// ParseTime reads a timestamp written by FormatTime.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
