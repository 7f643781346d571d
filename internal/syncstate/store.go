package syncstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dvsync/pkg/types"
)

// Store is the sync-state store: get, upsert, update_commit_hash,
// delete, list_by_repo, list_by_branch, clear_branch and
// reconstruct_for_branch, all idempotent.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-opened database handle (see Open).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the record for (repo, branch, collection), or nil if
// none exists yet.
func (s *Store) Get(ctx context.Context, repo, branch, collection string) (*types.SyncStateRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT repo_path, branch, collection_name, last_sync_commit, last_sync_at,
		       document_count, chunk_count, sync_status, error_message
		FROM sync_state WHERE repo_path = ? AND branch = ? AND collection_name = ?`,
		repo, branch, collection)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	return rec, nil
}

// Upsert writes rec, replacing any existing record for the same key.
func (s *Store) Upsert(ctx context.Context, rec *types.SyncStateRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("upsert sync state: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (repo_path, branch, collection_name, last_sync_commit,
			last_sync_at, document_count, chunk_count, sync_status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_path, branch, collection_name) DO UPDATE SET
			last_sync_commit = excluded.last_sync_commit,
			last_sync_at = excluded.last_sync_at,
			document_count = excluded.document_count,
			chunk_count = excluded.chunk_count,
			sync_status = excluded.sync_status,
			error_message = excluded.error_message`,
		rec.RepoPath, rec.Branch, rec.CollectionName, rec.LastSyncCommit,
		rec.LastSyncAt, rec.DocumentCount, rec.ChunkCount, string(rec.SyncStatus), rec.ErrorMessage)
	if err != nil {
		return fmt.Errorf("upsert sync state: %w", err)
	}
	return nil
}

// UpdateCommitHash updates only last_sync_commit and last_sync_at for
// an existing record, leaving counts and status untouched.
func (s *Store) UpdateCommitHash(ctx context.Context, key types.SyncStateKey, commitHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_state SET last_sync_commit = ?, last_sync_at = ?
		WHERE repo_path = ? AND branch = ? AND collection_name = ?`,
		commitHash, time.Now(), key.RepoPath, key.Branch, key.CollectionName)
	if err != nil {
		return fmt.Errorf("update commit hash: %w", err)
	}
	return nil
}

// Delete removes the record for key, if any.
func (s *Store) Delete(ctx context.Context, key types.SyncStateKey) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_state WHERE repo_path = ? AND branch = ? AND collection_name = ?`,
		key.RepoPath, key.Branch, key.CollectionName)
	if err != nil {
		return fmt.Errorf("delete sync state: %w", err)
	}
	return nil
}

// ListByRepo returns every record for repo, across all branches and
// collections.
func (s *Store) ListByRepo(ctx context.Context, repo string) ([]types.SyncStateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT repo_path, branch, collection_name, last_sync_commit, last_sync_at,
		       document_count, chunk_count, sync_status, error_message
		FROM sync_state WHERE repo_path = ?`, repo)
	if err != nil {
		return nil, fmt.Errorf("list sync state by repo: %w", err)
	}
	return scanRecords(rows)
}

// ListByBranch returns every collection's record for (repo, branch).
func (s *Store) ListByBranch(ctx context.Context, repo, branch string) ([]types.SyncStateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT repo_path, branch, collection_name, last_sync_commit, last_sync_at,
		       document_count, chunk_count, sync_status, error_message
		FROM sync_state WHERE repo_path = ? AND branch = ?`, repo, branch)
	if err != nil {
		return nil, fmt.Errorf("list sync state by branch: %w", err)
	}
	return scanRecords(rows)
}

// ClearBranch deletes every record for (repo, branch). This must never
// be called implicitly by a pipeline targeting a
// different branch.
func (s *Store) ClearBranch(ctx context.Context, repo, branch string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_state WHERE repo_path = ? AND branch = ?`, repo, branch)
	if err != nil {
		return fmt.Errorf("clear branch sync state: %w", err)
	}
	return nil
}

// ReconstructForBranch returns the existing record for (repo, branch,
// collection), or — if none exists — builds and persists a fresh one
// pointed at headCommit(), so a branch visited for the first time
// still gets a well-formed sync-state record instead of a nil lookup
// on every subsequent call.
func (s *Store) ReconstructForBranch(ctx context.Context, repo, branch, collection string, headCommit func() (string, error)) (*types.SyncStateRecord, error) {
	existing, err := s.Get(ctx, repo, branch, collection)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	commit, err := headCommit()
	if err != nil {
		return nil, fmt.Errorf("reconstruct sync state: resolve head commit: %w", err)
	}

	rec := &types.SyncStateRecord{
		RepoPath:       repo,
		Branch:         branch,
		CollectionName: collection,
		LastSyncCommit: commit,
		LastSyncAt:     time.Now(),
		SyncStatus:     types.SyncStatusSynced,
	}
	if err := s.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("reconstruct sync state: %w", err)
	}
	return rec, nil
}

func scanRecord(row *sql.Row) (*types.SyncStateRecord, error) {
	var rec types.SyncStateRecord
	var status string
	var lastSyncAt sql.NullTime
	err := row.Scan(&rec.RepoPath, &rec.Branch, &rec.CollectionName, &rec.LastSyncCommit,
		&lastSyncAt, &rec.DocumentCount, &rec.ChunkCount, &status, &rec.ErrorMessage)
	if err != nil {
		return nil, err
	}
	rec.SyncStatus = types.SyncStatus(status)
	if lastSyncAt.Valid {
		rec.LastSyncAt = lastSyncAt.Time
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]types.SyncStateRecord, error) {
	defer rows.Close()
	var out []types.SyncStateRecord
	for rows.Next() {
		var rec types.SyncStateRecord
		var status string
		var lastSyncAt sql.NullTime
		if err := rows.Scan(&rec.RepoPath, &rec.Branch, &rec.CollectionName, &rec.LastSyncCommit,
			&lastSyncAt, &rec.DocumentCount, &rec.ChunkCount, &status, &rec.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan sync state row: %w", err)
		}
		rec.SyncStatus = types.SyncStatus(status)
		if lastSyncAt.Valid {
			rec.LastSyncAt = lastSyncAt.Time
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync state rows: %w", err)
	}
	return out, nil
}
