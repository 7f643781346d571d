// Package syncstate is the local embedded SQL store for Sync-State
// Records: a local pointer telling the engine what commit each
// (branch, collection) has been synchronized to, kept outside the
// versioned data so branch switches never conflict on sync metadata.
package syncstate

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// schema creates both tables this system keeps in the local SQL file:
// sync-state (this package) and deletion-tracking (internal/deletions).
// They share one file because both are local state kept outside the
// versioned engine.
const schema = `
CREATE TABLE IF NOT EXISTS sync_state (
	repo_path       TEXT NOT NULL,
	branch          TEXT NOT NULL,
	collection_name TEXT NOT NULL,
	last_sync_commit TEXT NOT NULL DEFAULT '',
	last_sync_at    DATETIME,
	document_count  INTEGER NOT NULL DEFAULT 0,
	chunk_count     INTEGER NOT NULL DEFAULT 0,
	sync_status     TEXT NOT NULL DEFAULT 'synced',
	error_message   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (repo_path, branch, collection_name)
);

CREATE TABLE IF NOT EXISTS deletion_records (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	repository_path        TEXT NOT NULL,
	collection_name         TEXT NOT NULL,
	doc_id                  TEXT NOT NULL DEFAULT '',
	operation_type          TEXT NOT NULL,
	original_content_hash   TEXT NOT NULL DEFAULT '',
	original_name           TEXT NOT NULL DEFAULT '',
	new_name_or_metadata    TEXT NOT NULL DEFAULT '',
	is_committed            INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sync_state_repo ON sync_state(repo_path);
CREATE INDEX IF NOT EXISTS idx_sync_state_branch ON sync_state(repo_path, branch);
CREATE INDEX IF NOT EXISTS idx_deletion_pending ON deletion_records(repository_path, collection_name, is_committed);
`

// Open opens (creating if necessary) the local SQL file backing the
// sync-state and deletion-tracker tables and ensures both exist. Grounded on a
// internal/events/persistence.go NewEventStore (WAL pragmas, pooled
// *sql.DB, schema-on-open), simplified to a synchronous store since these
// are small transactional tables rather than a high-throughput
// event log.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sync-state database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite: single writer, serialize via Go's pool too

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sync-state schema: %w", err)
	}
	return db, nil
}
