package chunking

import (
	"strings"
	"testing"

	"dvsync/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_RoundTrip(t *testing.T) {
	c := NewChunker(DefaultConfig())
	doc := types.NewDocument("d1", "col1", strings.Repeat("hello world ", 100))

	chunks, err := c.Chunk(*doc)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	reassembled, err := c.Reassemble(chunks)
	require.NoError(t, err)
	assert.Equal(t, doc.Content, reassembled.Content)
	assert.Equal(t, doc.ContentHash, reassembled.ContentHash)
}

func TestChunker_RoundTrip_ShortContent(t *testing.T) {
	c := NewChunker(DefaultConfig())
	doc := types.NewDocument("d1", "col1", "hello world")

	chunks, err := c.Chunk(*doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].TotalChunks)

	reassembled, err := c.Reassemble(chunks)
	require.NoError(t, err)
	assert.Equal(t, "hello world", reassembled.Content)
}

func TestChunker_Deterministic(t *testing.T) {
	c := NewChunker(&Config{ChunkSize: 16, ChunkOverlap: 4})
	doc := *types.NewDocument("d1", "col1", strings.Repeat("abcdefgh", 10))

	first, err := c.Chunk(doc)
	require.NoError(t, err)
	second, err := c.Chunk(doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChunker_ChunkIDs_ParseBack(t *testing.T) {
	c := NewChunker(&Config{ChunkSize: 16, ChunkOverlap: 4})
	doc := *types.NewDocument("doc-1", "col1", strings.Repeat("x", 100))

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	for _, chunk := range chunks {
		base, idx, err := types.SplitChunkID(chunk.ChunkID)
		require.NoError(t, err)
		assert.Equal(t, "doc-1", base)
		assert.Equal(t, chunk.ChunkIndex, idx)
	}
}

func TestChunker_Reassemble_MissingChunk(t *testing.T) {
	c := NewChunker(DefaultConfig())
	doc := *types.NewDocument("d1", "col1", strings.Repeat("y", 2000))

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	_, err = c.Reassemble(chunks[1:])
	assert.Error(t, err)
}

func TestChunker_Reassemble_DuplicateIndex(t *testing.T) {
	c := NewChunker(DefaultConfig())
	doc := *types.NewDocument("d1", "col1", "hello world")

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	dup := append(chunks, chunks[0])

	_, err = c.Reassemble(dup)
	assert.Error(t, err)
}

func TestChunker_Reassemble_InconsistentTotal(t *testing.T) {
	c := NewChunker(DefaultConfig())
	a := *types.NewDocument("d1", "col1", "hello world")

	chunks, err := c.Chunk(a)
	require.NoError(t, err)
	bad := chunks[0]
	bad.TotalChunks = 99
	bad.ChunkIndex = 1

	_, err = c.Reassemble([]types.Chunk{chunks[0], bad})
	assert.Error(t, err)
}

func TestChunker_EstimateUpperBound(t *testing.T) {
	c := NewChunker(&Config{ChunkSize: 512, ChunkOverlap: 50})
	assert.Equal(t, 10, c.EstimateUpperBound(0))
	assert.Greater(t, c.EstimateUpperBound(100000), 10)
}

func TestChunker_ChunkIDs(t *testing.T) {
	c := NewChunker(DefaultConfig())
	ids := c.ChunkIDs("doc-1", 3)
	assert.Equal(t, []string{"doc-1_chunk_0", "doc-1_chunk_1", "doc-1_chunk_2"}, ids)
}
