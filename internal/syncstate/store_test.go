package syncstate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dvsync/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestStore_GetMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, err := s.Get(ctx, "repo1", "main", "col1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStore_UpsertThenGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := &types.SyncStateRecord{
		RepoPath:       "repo1",
		Branch:         "main",
		CollectionName: "col1",
		LastSyncCommit: "abc123",
		DocumentCount:  3,
		ChunkCount:     9,
		SyncStatus:     types.SyncStatusSynced,
	}
	require.NoError(t, s.Upsert(ctx, rec))

	got, err := s.Get(ctx, "repo1", "main", "col1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc123", got.LastSyncCommit)
	assert.Equal(t, 3, got.DocumentCount)

	rec.LastSyncCommit = "def456"
	rec.DocumentCount = 4
	require.NoError(t, s.Upsert(ctx, rec))

	got, err = s.Get(ctx, "repo1", "main", "col1")
	require.NoError(t, err)
	assert.Equal(t, "def456", got.LastSyncCommit)
	assert.Equal(t, 4, got.DocumentCount)
}

func TestStore_UpdateCommitHash(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := &types.SyncStateRecord{RepoPath: "repo1", Branch: "main", CollectionName: "col1", SyncStatus: types.SyncStatusSynced}
	require.NoError(t, s.Upsert(ctx, rec))
	require.NoError(t, s.UpdateCommitHash(ctx, rec.Key(), "newcommit"))

	got, err := s.Get(ctx, "repo1", "main", "col1")
	require.NoError(t, err)
	assert.Equal(t, "newcommit", got.LastSyncCommit)
}

func TestStore_BranchIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, &types.SyncStateRecord{
		RepoPath: "repo1", Branch: "a", CollectionName: "col1",
		LastSyncCommit: "a1", SyncStatus: types.SyncStatusSynced,
	}))
	require.NoError(t, s.Upsert(ctx, &types.SyncStateRecord{
		RepoPath: "repo1", Branch: "b", CollectionName: "col1",
		LastSyncCommit: "b1", SyncStatus: types.SyncStatusSynced,
	}))

	require.NoError(t, s.ClearBranch(ctx, "repo1", "b"))

	got, err := s.Get(ctx, "repo1", "a", "col1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a1", got.LastSyncCommit)

	gone, err := s.Get(ctx, "repo1", "b", "col1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestStore_ReconstructForBranch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	calls := 0
	headCommit := func() (string, error) {
		calls++
		return "head-commit", nil
	}

	rec, err := s.ReconstructForBranch(ctx, "repo1", "feature", "col1", headCommit)
	require.NoError(t, err)
	assert.Equal(t, "head-commit", rec.LastSyncCommit)
	assert.Equal(t, 1, calls)

	// Second call finds the persisted record and must not call headCommit again.
	rec2, err := s.ReconstructForBranch(ctx, "repo1", "feature", "col1", headCommit)
	require.NoError(t, err)
	assert.Equal(t, "head-commit", rec2.LastSyncCommit)
	assert.Equal(t, 1, calls)
}

func TestStore_ListByRepoAndBranch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, &types.SyncStateRecord{RepoPath: "repo1", Branch: "main", CollectionName: "col1", SyncStatus: types.SyncStatusSynced}))
	require.NoError(t, s.Upsert(ctx, &types.SyncStateRecord{RepoPath: "repo1", Branch: "main", CollectionName: "col2", SyncStatus: types.SyncStatusSynced}))
	require.NoError(t, s.Upsert(ctx, &types.SyncStateRecord{RepoPath: "repo1", Branch: "dev", CollectionName: "col1", SyncStatus: types.SyncStatusSynced}))

	all, err := s.ListByRepo(ctx, "repo1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	main, err := s.ListByBranch(ctx, "repo1", "main")
	require.NoError(t, err)
	assert.Len(t, main, 2)
}
