// Package chunking splits documents into deterministically-identified,
// overlap-aware chunks for the vector store, and reassembles them back
// into documents.
package chunking

import (
	"fmt"

	syncerrors "dvsync/internal/errors"
	"dvsync/pkg/types"
)

// Default chunk size and overlap, in runes, used when a Config does not
// override them.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
)

// Config holds the chunking parameters. The same (content, ChunkSize,
// ChunkOverlap) always yields byte-identical chunks.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultConfig returns the standard chunk size and overlap.
func DefaultConfig() *Config {
	return &Config{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

// Chunker splits documents into chunks and reassembles chunks into
// documents.
type Chunker struct {
	config *Config
}

// NewChunker creates a Chunker. A nil config falls back to DefaultConfig.
func NewChunker(cfg *Config) *Chunker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	return &Chunker{config: cfg}
}

// Chunk splits doc.Content into pieces of at most ChunkSize runes with
// ChunkOverlap runes of overlap between consecutive chunks. Splitting is
// deterministic: the same content and config always produce
// byte-identical chunks.
func (c *Chunker) Chunk(doc types.Document) ([]types.Chunk, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("chunk: invalid document: %w", err)
	}

	runes := []rune(doc.Content)
	stride := c.config.ChunkSize - c.config.ChunkOverlap

	var spans [][2]int
	if len(runes) == 0 {
		spans = [][2]int{{0, 0}}
	} else {
		for start := 0; start < len(runes); start += stride {
			end := start + c.config.ChunkSize
			if end > len(runes) {
				end = len(runes)
			}
			spans = append(spans, [2]int{start, end})
			if end == len(runes) {
				break
			}
		}
	}

	total := len(spans)
	chunks := make([]types.Chunk, 0, total)
	for i, span := range spans {
		content := string(runes[span[0]:span[1]])
		meta := make(map[string]interface{}, len(doc.Metadata))
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		chunks = append(chunks, types.Chunk{
			ChunkID:        types.ChunkIDFor(doc.DocID, i),
			SourceID:       doc.DocID,
			CollectionName: doc.CollectionName,
			Content:        content,
			ContentHash:    doc.ContentHash,
			ChunkIndex:     i,
			TotalChunks:    total,
			Metadata:       meta,
		})
	}
	return chunks, nil
}

// Reassemble orders chunks by ChunkIndex, strips the trailing overlap of
// each non-terminal chunk, concatenates, and recomputes the content hash,
// verifying it against the chunks' stored ContentHash when one is set.
// It fails with a ReassemblyError if TotalChunks is inconsistent across
// chunks, any ChunkIndex is missing or duplicated, or the hashes differ.
func (c *Chunker) Reassemble(chunks []types.Chunk) (types.Document, error) {
	if len(chunks) == 0 {
		return types.Document{}, syncerrors.NewReassemblyError("", "no chunks supplied")
	}

	docID := chunks[0].SourceID
	collection := chunks[0].CollectionName
	total := chunks[0].TotalChunks

	byIndex := make(map[int]types.Chunk, len(chunks))
	for _, chunk := range chunks {
		if chunk.TotalChunks != total {
			return types.Document{}, syncerrors.NewReassemblyError(docID,
				fmt.Sprintf("inconsistent total_chunks: %d vs %d", chunk.TotalChunks, total))
		}
		if _, dup := byIndex[chunk.ChunkIndex]; dup {
			return types.Document{}, syncerrors.NewReassemblyError(docID,
				fmt.Sprintf("duplicate chunk_index %d", chunk.ChunkIndex))
		}
		byIndex[chunk.ChunkIndex] = chunk
	}
	if len(byIndex) != total {
		return types.Document{}, syncerrors.NewReassemblyError(docID,
			fmt.Sprintf("missing chunk_index: have %d of %d chunks", len(byIndex), total))
	}

	var content string
	for i := 0; i < total; i++ {
		chunk, ok := byIndex[i]
		if !ok {
			return types.Document{}, syncerrors.NewReassemblyError(docID,
				fmt.Sprintf("missing chunk_index %d of %d", i, total))
		}
		piece := chunk.Content
		isLast := i == total-1
		if !isLast {
			piece = trimOverlapSuffix(piece, c.config.ChunkOverlap)
		}
		content += piece
	}

	hash := types.HashContent(content)
	if stored := byIndex[0].ContentHash; stored != "" && stored != hash {
		return types.Document{}, syncerrors.NewReassemblyError(docID,
			fmt.Sprintf("content_hash mismatch: stored %s, reassembled %s", stored, hash))
	}

	doc := types.Document{
		DocID:          docID,
		CollectionName: collection,
		Content:        content,
		ContentHash:    hash,
		Metadata:       byIndex[0].Metadata,
	}
	return doc, nil
}

// trimOverlapSuffix removes the last overlap runes of a non-terminal
// chunk, the inverse of the overlap-aware splitter.
func trimOverlapSuffix(content string, overlap int) string {
	runes := []rune(content)
	if overlap <= 0 || overlap >= len(runes) {
		return content
	}
	return string(runes[:len(runes)-overlap])
}

// ChunkIDs produces candidate chunk ids doc_id_chunk_0 .. doc_id_chunk_{n-1}
// for bulk-deleting chunks when the true total is not yet known.
func (c *Chunker) ChunkIDs(docID string, upperBoundN int) []string {
	ids := make([]string, upperBoundN)
	for i := 0; i < upperBoundN; i++ {
		ids[i] = types.ChunkIDFor(docID, i)
	}
	return ids
}

// EstimateUpperBound computes a safe over-estimate of the number of
// chunks a document of the given content length could produce:
// max(10, ceil(len(content)/(ChunkSize-ChunkOverlap)) + 2).
func (c *Chunker) EstimateUpperBound(contentLen int) int {
	stride := c.config.ChunkSize - c.config.ChunkOverlap
	if stride <= 0 {
		stride = 1
	}
	estimate := (contentLen+stride-1)/stride + 2
	if estimate < 10 {
		estimate = 10
	}
	return estimate
}
