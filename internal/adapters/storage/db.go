package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// sqliteSchema is applied on every startup; statements are idempotent.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS alpha_signups (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE COLLATE NOCASE,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	organization TEXT NOT NULL,
	role TEXT NOT NULL,
	agreed_to_terms INTEGER NOT NULL DEFAULT 0,
	signed_up_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alpha_signups_signed_up_at ON alpha_signups (signed_up_at);
`

// postgresSchema mirrors sqliteSchema. Uniqueness is on lower(email) so that
// rows written by other tools with mixed case still collide.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS alpha_signups (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	organization TEXT NOT NULL,
	role TEXT NOT NULL,
	agreed_to_terms BOOLEAN NOT NULL DEFAULT FALSE,
	signed_up_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS alpha_signups_email_lower_key ON alpha_signups (lower(email));
CREATE INDEX IF NOT EXISTS alpha_signups_signed_up_at_idx ON alpha_signups (signed_up_at);
`

// SQLiteDSN builds a DSN for path with WAL, a busy timeout and immediate
// write transactions. Immediate transactions take the write lock at BEGIN,
// which is what makes count-then-insert inside one transaction serializable.
// PRE: path is a file path or ":memory:"
// POST: returns a DSN accepted by modernc.org/sqlite
func SQLiteDSN(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_txlock=immediate"
}

// OpenSQLite opens the SQLite database at path and applies the schema.
// PRE: path is writable
// POST: returns a pinged connection pool with the schema in place
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(8)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite unreachable: %w", err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitDB creates the SQLite tables.
// PRE: db is a valid SQLite connection
// POST: alpha_signups and its index exist
func InitDB(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// OpenPostgres opens a Postgres pool for dsn and applies the schema.
// PRE: dsn is a lib/pq connection string or URL
// POST: returns a pinged connection pool with the schema in place
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}
	if err := InitPostgres(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitPostgres creates the Postgres tables.
// PRE: db is a valid Postgres connection
// POST: alpha_signups and its unique index exist
func InitPostgres(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create postgres schema: %w", err)
	}
	return nil
}
