package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application. Timestamps are stored
// as INTEGER unix nanoseconds; text timestamps do not sort reliably and the
// ordering invariants lean on MAX(ts) comparisons.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id         TEXT    PRIMARY KEY,
		session_id TEXT    NOT NULL,
		seq        INTEGER NOT NULL,
		role       TEXT    NOT NULL,
		type       TEXT    NOT NULL,
		content    TEXT    NOT NULL,
		metadata   TEXT    NOT NULL DEFAULT '{}',
		ts         INTEGER NOT NULL,
		UNIQUE (session_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_session_seq ON messages(session_id, seq)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_session_type ON messages(session_id, type, seq)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		session_id    TEXT    PRIMARY KEY,
		created_at    INTEGER NOT NULL,
		last_activity INTEGER NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions(last_activity)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.TODO()

	// Ensure schema_version table exists first.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}
