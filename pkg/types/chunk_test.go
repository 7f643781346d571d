package types

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkIDFor_And_SplitChunkID_RoundTrip(t *testing.T) {
	id := ChunkIDFor("doc-42", 3)
	assert.Equal(t, "doc-42_chunk_3", id)

	docID, idx, err := SplitChunkID(id)
	require.NoError(t, err)
	assert.Equal(t, "doc-42", docID)
	assert.Equal(t, 3, idx)
}

func TestSplitChunkID_DocIDContainingSeparator(t *testing.T) {
	// split on the LAST occurrence of "_chunk_"
	id := ChunkIDFor("weird_chunk_doc", 7)
	docID, idx, err := SplitChunkID(id)
	require.NoError(t, err)
	assert.Equal(t, "weird_chunk_doc", docID)
	assert.Equal(t, 7, idx)
}

func TestSplitChunkID_Malformed(t *testing.T) {
	_, _, err := SplitChunkID("no-separator-here")
	assert.Error(t, err)

	_, _, err = SplitChunkID("doc_chunk_notanumber")
	assert.Error(t, err)
}

func TestChunk_Validate(t *testing.T) {
	c := &Chunk{
		ChunkID:     ChunkIDFor("d1", 0),
		SourceID:    "d1",
		ChunkIndex:  0,
		TotalChunks: 2,
	}
	require.NoError(t, c.Validate())

	c.ChunkIndex = 2
	assert.Error(t, c.Validate())
}

func TestChunkIDFor_AllIndices(t *testing.T) {
	for i := 0; i < 5; i++ {
		id := ChunkIDFor("docA", i)
		assert.Equal(t, fmt.Sprintf("docA_chunk_%d", i), id)
	}
}
