package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
// connectionString should be in the format: "host=localhost port=5432 user=postgres password=postgres dbname=wealthflow sslmode=disable"
func NewDB(ctx context.Context, connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS confirmed_plans (
	id             UUID PRIMARY KEY,
	session_id     UUID NOT NULL,
	monthly_income NUMERIC(14, 2) NOT NULL,
	confirmed_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_confirmed_plans_confirmed_at
	ON confirmed_plans (confirmed_at DESC);

CREATE TABLE IF NOT EXISTS confirmed_plan_buckets (
	id                   UUID NOT NULL,
	plan_id              UUID NOT NULL REFERENCES confirmed_plans (id) ON DELETE CASCADE,
	position             INTEGER NOT NULL,
	name                 TEXT NOT NULL,
	bucket_type          TEXT NOT NULL,
	allocated_amount     NUMERIC(14, 2) NOT NULL,
	recommended_amount   NUMERIC(14, 2) NOT NULL,
	change_from_original NUMERIC(14, 2) NOT NULL DEFAULT 0,
	is_modifiable        BOOLEAN NOT NULL,
	linked_categories    TEXT[] NOT NULL DEFAULT '{}',
	linked_account_ids   TEXT[] NOT NULL DEFAULT '{}',
	target_amount        NUMERIC(14, 2),
	months_to_target     INTEGER,
	PRIMARY KEY (plan_id, id),
	UNIQUE (plan_id, position)
);

CREATE TABLE IF NOT EXISTS account_balances (
	id         UUID PRIMARY KEY,
	account_id TEXT NOT NULL,
	balance    NUMERIC(14, 2) NOT NULL,
	as_of      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_account_balances_account_as_of
	ON account_balances (account_id, as_of DESC);
`

// EnsureSchema creates the planner tables when they do not exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
