// Package store provides SQLite-backed persistence for problems, conversion
// attempts and classifications.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS problems (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL DEFAULT '',
	file_path     TEXT NOT NULL,
	configuration TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL,
	reason        TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_problems_file ON problems(file_path, configuration);
CREATE INDEX IF NOT EXISTS idx_problems_created ON problems(created_at);

CREATE TABLE IF NOT EXISTS conversion_attempts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	seq_no     INTEGER NOT NULL,
	strategy   TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	UNIQUE(run_id, seq_no)
);
CREATE INDEX IF NOT EXISTS idx_attempts_run_seq ON conversion_attempts(run_id, seq_no);

CREATE TABLE IF NOT EXISTS classifications (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL DEFAULT '',
	file_path     TEXT NOT NULL,
	configuration TEXT NOT NULL DEFAULT '',
	pile          TEXT NOT NULL,
	thickness     REAL NOT NULL DEFAULT 0.0,
	coverage      REAL NOT NULL DEFAULT 0.0,
	reason        TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_classifications_file ON classifications(file_path, configuration, id);
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
