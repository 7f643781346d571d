package deletions

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dvsync/internal/syncstate"
	"dvsync/pkg/types"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	db, err := syncstate.Open(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTracker(db)
}

func TestTracker_DocumentDeletionLifecycle(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	require.NoError(t, tr.RecordDocumentDeletion(ctx, "repo1", "col1", "d1", "hash1"))

	pending, err := tr.GetPendingDocumentDeletions(ctx, "repo1", "col1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "d1", pending[0].DocID)
	assert.False(t, pending[0].IsCommitted)

	require.NoError(t, tr.MarkCommitted(ctx, "repo1", "d1", types.OperationDocumentDelete))

	pending, err = tr.GetPendingDocumentDeletions(ctx, "repo1", "col1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, tr.CleanupCommitted(ctx, "repo1"))
}

func TestTracker_CollectionOperationLifecycle(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	require.NoError(t, tr.RecordCollectionOperation(ctx, "repo1", "col1", types.OperationRename, "col1", "col2"))

	pending, err := tr.GetPendingCollectionOperations(ctx, "repo1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, types.OperationRename, pending[0].OperationType)
	assert.Equal(t, "col2", pending[0].NewNameOrMetadata)

	require.NoError(t, tr.MarkCommitted(ctx, "repo1", "col1", types.OperationRename))

	pending, err = tr.GetPendingCollectionOperations(ctx, "repo1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTracker_RecordCollectionOperation_RejectsDocumentDeleteType(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	err := tr.RecordCollectionOperation(ctx, "repo1", "col1", types.OperationDocumentDelete, "", "")
	assert.Error(t, err)
}
