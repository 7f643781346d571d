package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// chunkSeparator is the literal inserted between a document id and its
// chunk index. The base document id is recovered by splitting on the
// LAST occurrence of this separator, since doc_id itself
// may legally contain it.
const chunkSeparator = "_chunk_"

// Chunk is one physical, ordered slice of a Document as stored in the
// vector store.
type Chunk struct {
	ChunkID        string                 `json:"chunk_id"`
	SourceID       string                 `json:"source_id"`
	CollectionName string                 `json:"collection_name"`
	Content        string                 `json:"content"`
	ContentHash    string                 `json:"content_hash"`
	ChunkIndex     int                    `json:"chunk_index"`
	TotalChunks    int                    `json:"total_chunks"`
	IsLocalChange  bool                   `json:"is_local_change"`
	DoltCommit     string                 `json:"dolt_commit,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// ChunkIDFor formats the deterministic chunk identifier "{doc_id}_chunk_{i}".
func ChunkIDFor(docID string, index int) string {
	return fmt.Sprintf("%s%s%d", docID, chunkSeparator, index)
}

// SplitChunkID recovers the base document id and chunk index from a
// chunk id, splitting on the last occurrence of the separator as
// required for correct reassembly.
func SplitChunkID(chunkID string) (docID string, index int, err error) {
	i := strings.LastIndex(chunkID, chunkSeparator)
	if i < 0 {
		return "", 0, fmt.Errorf("chunk id %q does not contain separator %q", chunkID, chunkSeparator)
	}
	docID = chunkID[:i]
	idxStr := chunkID[i+len(chunkSeparator):]
	idx, convErr := strconv.Atoi(idxStr)
	if convErr != nil {
		return "", 0, fmt.Errorf("chunk id %q has non-numeric index %q: %w", chunkID, idxStr, convErr)
	}
	if docID == "" {
		return "", 0, fmt.Errorf("chunk id %q has empty base document id", chunkID)
	}
	return docID, idx, nil
}

// Validate checks structural consistency of a single chunk.
func (c *Chunk) Validate() error {
	if c.ChunkID == "" {
		return errors.New("chunk_id cannot be empty")
	}
	if c.SourceID == "" {
		return errors.New("source_id cannot be empty")
	}
	if c.ChunkIndex < 0 {
		return errors.New("chunk_index cannot be negative")
	}
	if c.TotalChunks <= 0 {
		return errors.New("total_chunks must be positive")
	}
	if c.ChunkIndex >= c.TotalChunks {
		return fmt.Errorf("chunk_index %d out of range for total_chunks %d", c.ChunkIndex, c.TotalChunks)
	}
	wantID := ChunkIDFor(c.SourceID, c.ChunkIndex)
	if c.ChunkID != wantID {
		return fmt.Errorf("chunk_id %q does not match expected %q", c.ChunkID, wantID)
	}
	return nil
}
