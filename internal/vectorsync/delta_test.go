package vectorsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dvsync/internal/chunking"
	"dvsync/internal/deletions"
	"dvsync/internal/syncstate"
	"dvsync/internal/vectorstore"
	"dvsync/internal/versioning"
	"dvsync/pkg/types"
)

func newTestDetector(t *testing.T) (*Detector, *vectorstore.MockStore, *versioning.MemoryTableStore, *deletions.Tracker) {
	t.Helper()
	store := vectorstore.NewMockStore()
	require.NoError(t, store.CreateCollection(context.Background(), "col1", nil))
	tables := versioning.NewMemoryTableStore()

	db, err := syncstate.Open(t.TempDir() + "/state.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	tracker := deletions.NewTracker(db)

	chunker := chunking.NewChunker(chunking.DefaultConfig())
	return NewDetector(store, tables, tracker, chunker), store, tables, tracker
}

func addDocumentChunks(t *testing.T, store *vectorstore.MockStore, chunker *chunking.Chunker, doc types.Document, localChange bool) {
	t.Helper()
	chunks, err := chunker.Chunk(doc)
	require.NoError(t, err)

	ids := make([]string, len(chunks))
	contents := make([]string, len(chunks))
	metas := make([]map[string]interface{}, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
		contents[i] = c.Content
		metas[i] = map[string]interface{}{"total_chunks": c.TotalChunks, "chunk_index": c.ChunkIndex}
	}
	require.NoError(t, store.Add(context.Background(), doc.CollectionName, contents, ids, metas, false, localChange))
}

func TestDetector_FallbackScan_NewDocument(t *testing.T) {
	d, store, _, _ := newTestDetector(t)
	chunker := chunking.NewChunker(chunking.DefaultConfig())

	doc := types.NewDocument("d1", "col1", "hello world")
	addDocumentChunks(t, store, chunker, *doc, false)

	changes, err := d.DetectLocalChanges(context.Background(), "/repo", "col1")
	require.NoError(t, err)
	require.Len(t, changes.New, 1)
	require.Equal(t, "d1", changes.New[0].DocID)
	require.Empty(t, changes.Modified)
	require.Empty(t, changes.Deleted)
}

func TestDetector_FlaggedScan_ModifiedDocument(t *testing.T) {
	d, store, tables, _ := newTestDetector(t)
	chunker := chunking.NewChunker(chunking.DefaultConfig())

	original := types.NewDocument("d1", "col1", "original content")
	require.NoError(t, tables.UpsertDocument(context.Background(), original))

	edited := types.NewDocument("d1", "col1", "edited content")
	addDocumentChunks(t, store, chunker, *edited, true)

	changes, err := d.DetectLocalChanges(context.Background(), "/repo", "col1")
	require.NoError(t, err)
	require.Empty(t, changes.New)
	require.Len(t, changes.Modified, 1)
	require.Equal(t, "edited content", changes.Modified[0].Content)
}

func TestDetector_Deletion(t *testing.T) {
	d, _, tables, _ := newTestDetector(t)

	versionedOnly := types.NewDocument("d2", "col1", "still in the versioning engine only")
	require.NoError(t, tables.UpsertDocument(context.Background(), versionedOnly))

	changes, err := d.DetectLocalChanges(context.Background(), "/repo", "col1")
	require.NoError(t, err)
	require.Len(t, changes.Deleted, 1)
	require.Equal(t, "d2", changes.Deleted[0].DocID)
}

func TestDetector_NoChanges_ReturnsEmpty(t *testing.T) {
	d, store, tables, _ := newTestDetector(t)
	chunker := chunking.NewChunker(chunking.DefaultConfig())

	doc := types.NewDocument("d1", "col1", "stable content")
	addDocumentChunks(t, store, chunker, *doc, false)
	require.NoError(t, tables.UpsertDocument(context.Background(), doc))

	changes, err := d.DetectLocalChanges(context.Background(), "/repo", "col1")
	require.NoError(t, err)
	require.False(t, changes.HasChanges())
}

func TestDetector_MultiCollection_RunsAllCollections(t *testing.T) {
	d, store, _, _ := newTestDetector(t)
	chunker := chunking.NewChunker(chunking.DefaultConfig())

	doc := types.NewDocument("d1", "col1", "content")
	addDocumentChunks(t, store, chunker, *doc, false)

	results := d.DetectMultiCollection(context.Background(), "/repo", []string{"col1", "missing-collection"}, 2, 5*time.Second)
	require.Len(t, results, 2)
	require.Equal(t, "col1", results[0].Collection)
	require.True(t, results[0].Changes.HasChanges())
	require.Equal(t, "missing-collection", results[1].Collection)
	require.NoError(t, results[1].Err)
	require.False(t, results[1].Changes.HasChanges())
}
