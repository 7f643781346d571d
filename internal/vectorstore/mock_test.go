package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_CollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()

	require.NoError(t, store.CreateCollection(ctx, "col1", map[string]interface{}{"x": 1}))

	got, err := store.GetCollection(ctx, "col1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "col1", got.Name)

	count, err := store.CollectionCount(ctx, "col1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, store.DeleteCollection(ctx, "col1"))
	got, err = store.GetCollection(ctx, "col1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMockStore_AddGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	require.NoError(t, store.CreateCollection(ctx, "col1", nil))

	err := store.Add(ctx, "col1",
		[]string{"hello"}, []string{"d1_chunk_0"},
		[]map[string]interface{}{{"source_id": "d1"}},
		false, false)
	require.NoError(t, err)

	result, err := store.Get(ctx, "col1", nil, nil, 0)
	require.NoError(t, err)
	require.Len(t, result.IDs, 1)
	assert.Equal(t, "hello", result.Documents[0])
	assert.Equal(t, false, result.Metadatas[0]["is_local_change"])

	require.NoError(t, store.Delete(ctx, "col1", []string{"d1_chunk_0"}))
	result, err = store.Get(ctx, "col1", nil, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, result.IDs)
}

func TestMockStore_Add_DuplicateRejectedUnlessAllowed(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	require.NoError(t, store.CreateCollection(ctx, "col1", nil))
	require.NoError(t, store.Add(ctx, "col1", []string{"a"}, []string{"id1"}, []map[string]interface{}{{}}, false, false))

	err := store.Add(ctx, "col1", []string{"b"}, []string{"id1"}, []map[string]interface{}{{}}, false, false)
	assert.Error(t, err)

	err = store.Add(ctx, "col1", []string{"b"}, []string{"id1"}, []map[string]interface{}{{}}, true, false)
	assert.NoError(t, err)
}

func TestMockStore_Update_MarksLocalChange(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	require.NoError(t, store.CreateCollection(ctx, "col1", nil))
	require.NoError(t, store.Add(ctx, "col1", []string{"a"}, []string{"id1"}, []map[string]interface{}{{}}, false, false))

	require.NoError(t, store.Update(ctx, "col1", []string{"id1"}, []string{"b"}, nil, true))

	result, err := store.Get(ctx, "col1", []string{"id1"}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "b", result.Documents[0])
	assert.Equal(t, true, result.Metadatas[0]["is_local_change"])
}

func TestMockStore_Get_WhereFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	require.NoError(t, store.CreateCollection(ctx, "col1", nil))
	require.NoError(t, store.Add(ctx, "col1",
		[]string{"a", "b"}, []string{"id1", "id2"},
		[]map[string]interface{}{{"source_id": "d1"}, {"source_id": "d2"}},
		false, false))

	result, err := store.Get(ctx, "col1", nil, map[string]interface{}{"source_id": "d2"}, 0)
	require.NoError(t, err)
	require.Len(t, result.IDs, 1)
	assert.Equal(t, "id2", result.IDs[0])
}
