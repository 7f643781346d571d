package types

import (
	"errors"
	"fmt"
	"time"
)

// SyncStatus is the status field of a Sync-State Record.
type SyncStatus string

const (
	SyncStatusSynced     SyncStatus = "synced"
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusFailed     SyncStatus = "failed"
)

// Valid reports whether s is a recognized sync status.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusSynced, SyncStatusInProgress, SyncStatusFailed:
		return true
	}
	return false
}

// SyncStateRecord tracks, per (repository, branch, collection), the last
// commit the vector store has been synchronized to. Stored outside the
// versioned engine to avoid merge conflicts on sync metadata.
type SyncStateRecord struct {
	RepoPath       string     `json:"repo_path"`
	Branch         string     `json:"branch"`
	CollectionName string     `json:"collection_name"`
	LastSyncCommit string     `json:"last_sync_commit"`
	LastSyncAt     time.Time  `json:"last_sync_at"`
	DocumentCount  int        `json:"document_count"`
	ChunkCount     int        `json:"chunk_count"`
	SyncStatus     SyncStatus `json:"sync_status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// Key identifies the record's (repo, branch, collection) triple.
func (r *SyncStateRecord) Key() SyncStateKey {
	return SyncStateKey{RepoPath: r.RepoPath, Branch: r.Branch, CollectionName: r.CollectionName}
}

// SyncStateKey is the (repo_path, branch, collection_name) primary key
// of a Sync-State Record.
type SyncStateKey struct {
	RepoPath       string
	Branch         string
	CollectionName string
}

// Validate checks required fields on a sync-state record.
func (r *SyncStateRecord) Validate() error {
	if r.RepoPath == "" {
		return errors.New("repo_path cannot be empty")
	}
	if r.Branch == "" {
		return errors.New("branch cannot be empty")
	}
	if r.CollectionName == "" {
		return errors.New("collection_name cannot be empty")
	}
	if !r.SyncStatus.Valid() {
		return fmt.Errorf("invalid sync_status: %s", r.SyncStatus)
	}
	return nil
}

// SyncDirection distinguishes the two delta-detection directions used by
// the sync log inside the versioning engine.
type SyncDirection string

const (
	DirectionVersionedToVector SyncDirection = "v_to_c"
	DirectionVectorToVersioned SyncDirection = "c_to_v"
)

// SyncAction enumerates the kinds of action recorded in the sync log.
type SyncAction string

const (
	SyncActionAdded    SyncAction = "added"
	SyncActionModified SyncAction = "modified"
	SyncActionDeleted  SyncAction = "deleted"
)

// SyncLogEntry is one row of the sync log kept inside the versioning
// engine alongside documents; it is the baseline the versioned-side detector uses to determine
// what the vector side has already seen.
type SyncLogEntry struct {
	DocID          string        `json:"doc_id"`
	CollectionName string        `json:"collection_name"`
	ContentHash    string        `json:"content_hash"`
	ChunkIDs       []string      `json:"chunk_ids"`
	SyncDirection  SyncDirection `json:"sync_direction"`
	SyncAction     SyncAction    `json:"sync_action"`
	SyncedAt       time.Time     `json:"synced_at"`
}
