package staging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"dvsync/internal/versioning"
	"dvsync/pkg/types"
)

func TestStager_ApplyChanges_InsertUpdateDelete(t *testing.T) {
	tables := versioning.NewMemoryTableStore()
	s := NewStager(tables, nil)
	ctx := context.Background()

	changes := types.LocalChanges{
		New: []types.Document{*types.NewDocument("d1", "col1", "hello")},
	}
	require.NoError(t, s.ApplyChanges(ctx, changes))

	got, err := tables.GetDocument(ctx, "d1", "col1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "hello", got.Content)

	changes = types.LocalChanges{
		Modified: []types.Document{*types.NewDocument("d1", "col1", "hello again")},
	}
	require.NoError(t, s.ApplyChanges(ctx, changes))
	got, err = tables.GetDocument(ctx, "d1", "col1")
	require.NoError(t, err)
	require.Equal(t, "hello again", got.Content)

	changes = types.LocalChanges{
		Deleted: []types.DeletedDocument{{DocID: "d1", CollectionName: "col1"}},
	}
	require.NoError(t, s.ApplyChanges(ctx, changes))
	got, err = tables.GetDocument(ctx, "d1", "col1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStager_CollectionDeletionCascadesBeforeRemoval(t *testing.T) {
	tables := versioning.NewMemoryTableStore()
	s := NewStager(tables, nil)
	ctx := context.Background()

	require.NoError(t, tables.UpsertCollection(ctx, &types.Collection{CollectionName: "col1", ChunkSize: 512, ChunkOverlap: 50}))
	require.NoError(t, tables.UpsertDocument(ctx, types.NewDocument("d1", "col1", "content")))

	ops := []CollectionOp{
		{Type: types.CollectionOpDeletion, Collection: types.Collection{CollectionName: "col1"}},
	}
	require.NoError(t, s.ApplyCollectionOps(ctx, ops))

	doc, err := tables.GetDocument(ctx, "d1", "col1")
	require.NoError(t, err)
	require.Nil(t, doc)

	col, err := tables.GetCollection(ctx, "col1")
	require.NoError(t, err)
	require.Nil(t, col)
}

func TestStager_SkipsDuplicateOpAgainstDeletedCollection(t *testing.T) {
	tables := versioning.NewMemoryTableStore()
	s := NewStager(tables, nil)
	ctx := context.Background()

	require.NoError(t, tables.UpsertCollection(ctx, &types.Collection{CollectionName: "col1", ChunkSize: 512, ChunkOverlap: 50}))

	ops := []CollectionOp{
		{Type: types.CollectionOpDeletion, Collection: types.Collection{CollectionName: "col1"}},
		{Type: types.CollectionOpMetadataUpdate, Collection: types.Collection{CollectionName: "col1", ChunkSize: 512, ChunkOverlap: 50, Description: "should be skipped"}},
	}
	require.NoError(t, s.ApplyCollectionOps(ctx, ops))

	col, err := tables.GetCollection(ctx, "col1")
	require.NoError(t, err)
	require.Nil(t, col)
}

func TestStager_RenameCollection(t *testing.T) {
	tables := versioning.NewMemoryTableStore()
	s := NewStager(tables, nil)
	ctx := context.Background()

	require.NoError(t, tables.UpsertCollection(ctx, &types.Collection{CollectionName: "old", ChunkSize: 512, ChunkOverlap: 50}))
	require.NoError(t, tables.UpsertDocument(ctx, types.NewDocument("d1", "old", "content")))

	ops := []CollectionOp{
		{Type: types.CollectionOpRename, Collection: types.Collection{CollectionName: "old"}, NewName: "new"},
	}
	require.NoError(t, s.ApplyCollectionOps(ctx, ops))

	doc, err := tables.GetDocument(ctx, "d1", "new")
	require.NoError(t, err)
	require.NotNil(t, doc)

	col, err := tables.GetCollection(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, col)
}
