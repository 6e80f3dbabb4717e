package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the node-local SQLite database.
type DB struct {
	*sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS attachments (
    name         TEXT PRIMARY KEY,
    content_type TEXT NOT NULL DEFAULT '',
    size         INTEGER NOT NULL DEFAULT 0,
    revision     TEXT NOT NULL DEFAULT '',
    fetched_at   TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS deck_snapshot (
    doc_id    TEXT PRIMARY KEY,
    revision  TEXT NOT NULL,
    body      TEXT NOT NULL,
    saved_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
`

// Open opens (or creates) the SQLite database and runs migrations.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if _, err := db.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}
