package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver
)

// DB wraps the local planner store used by the CLI
type DB struct {
	*sql.DB
}

// Open opens the SQLite database at path, creating it when missing.
// ":memory:" gives a private in-memory store. WAL mode and foreign keys are
// enabled and migrations run on every open.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA foreign_keys = ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db}, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS confirmed_plans (
		id             TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL,
		monthly_income TEXT NOT NULL,
		confirmed_at   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_confirmed_plans_confirmed_at
		ON confirmed_plans (confirmed_at DESC)`,
	`CREATE TABLE IF NOT EXISTS confirmed_plan_buckets (
		id                   TEXT NOT NULL,
		plan_id              TEXT NOT NULL REFERENCES confirmed_plans (id) ON DELETE CASCADE,
		position             INTEGER NOT NULL,
		name                 TEXT NOT NULL,
		bucket_type          TEXT NOT NULL,
		allocated_amount     TEXT NOT NULL,
		recommended_amount   TEXT NOT NULL,
		change_from_original TEXT NOT NULL DEFAULT '0',
		is_modifiable        INTEGER NOT NULL,
		linked_categories    TEXT NOT NULL DEFAULT '[]',
		linked_account_ids   TEXT NOT NULL DEFAULT '[]',
		target_amount        TEXT,
		months_to_target     INTEGER,
		PRIMARY KEY (plan_id, id),
		UNIQUE (plan_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS account_balances (
		id         TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		balance    TEXT NOT NULL,
		as_of      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_account_balances_account_as_of
		ON account_balances (account_id, as_of DESC)`,
}

func migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// timeLayout is fixed width so TEXT ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
