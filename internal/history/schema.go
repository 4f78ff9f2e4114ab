// Package history provides a SQLite-backed log of reference rewrite
// operations. Every write the engine performs is appended here; no-op
// rewrites are never recorded.
package history

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS operations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	image_path TEXT NOT NULL,
	image_hash TEXT NOT NULL DEFAULT '',
	note_path  TEXT NOT NULL DEFAULT '',
	line       INTEGER NOT NULL DEFAULT 0,
	old_line   TEXT NOT NULL DEFAULT '',
	new_line   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_operations_image_path ON operations(image_path);
CREATE INDEX IF NOT EXISTS idx_operations_image_hash ON operations(image_hash);
`

// DB wraps a sql.DB with operation-log operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
