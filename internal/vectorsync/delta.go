// Package vectorsync detects local changes in the vector store relative
// to the versioning engine: the vector-to-versioned direction of the
// bidirectional sync engine.
package vectorsync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"dvsync/internal/chunking"
	"dvsync/internal/deletions"
	"dvsync/internal/logging"
	"dvsync/internal/vectorstore"
	"dvsync/internal/versioning"
	"dvsync/pkg/types"
)

// Detector implements the vector-side LocalChanges detection algorithm.
type Detector struct {
	store     vectorstore.Store
	tables    versioning.TableStore
	tracker   *deletions.Tracker
	chunker   *chunking.Chunker
	logger    *logging.EnhancedLogger
	batchSize int
}

// NewDetector builds a local-changes detector.
func NewDetector(store vectorstore.Store, tables versioning.TableStore, tracker *deletions.Tracker, chunker *chunking.Chunker) *Detector {
	return &Detector{
		store:     store,
		tables:    tables,
		tracker:   tracker,
		chunker:   chunker,
		logger:    logging.GetComponentLogger("vectorsync.delta"),
		batchSize: 500,
	}
}

// groupChunksBySource reassembles a flat chunk id/content/metadata
// triple into documents keyed by base document id.
func (d *Detector) groupChunksBySource(collection string, res *vectorstore.GetResult) (map[string]types.Document, error) {
	bySource := make(map[string][]types.Chunk)
	for i, chunkID := range res.IDs {
		docID, idx, err := types.SplitChunkID(chunkID)
		if err != nil {
			d.logger.Warn("skipping chunk with unparseable id", "chunk_id", chunkID, "error", err.Error())
			continue
		}
		meta := map[string]interface{}{}
		if i < len(res.Metadatas) && res.Metadatas[i] != nil {
			meta = res.Metadatas[i]
		}
		total, _ := meta["total_chunks"].(int)
		if total == 0 {
			if f, ok := meta["total_chunks"].(float64); ok {
				total = int(f)
			}
		}
		bySource[docID] = append(bySource[docID], types.Chunk{
			ChunkID:        chunkID,
			SourceID:       docID,
			CollectionName: collection,
			Content:        res.Documents[i],
			ChunkIndex:     idx,
			TotalChunks:    total,
			Metadata:       meta,
		})
	}

	docs := make(map[string]types.Document, len(bySource))
	for docID, chunks := range bySource {
		normalizeTotal(chunks)
		doc, err := d.chunker.Reassemble(chunks)
		if err != nil {
			d.logger.Warn("reassembly failed for candidate document", "doc_id", docID, "error", err.Error())
			continue
		}
		docs[docID] = doc
	}
	return docs, nil
}

// normalizeTotal fills in TotalChunks from the observed chunk count
// when the stored metadata omitted it (e.g. pre-existing data written
// before this field was tracked).
func normalizeTotal(chunks []types.Chunk) {
	max := 0
	for _, c := range chunks {
		if c.TotalChunks > max {
			max = c.TotalChunks
		}
	}
	if max == 0 {
		max = len(chunks)
	}
	for i := range chunks {
		if chunks[i].TotalChunks == 0 {
			chunks[i].TotalChunks = max
		}
	}
}

// DetectLocalChanges runs the flagged-scan, hash-mismatch, and
// deletion-detection steps for a single collection.
func (d *Detector) DetectLocalChanges(ctx context.Context, repoPath, collection string) (types.LocalChanges, error) {
	// Step 1: flagged scan.
	flaggedRes, err := d.store.Get(ctx, collection, nil, map[string]interface{}{"is_local_change": true}, 0)
	if err != nil {
		return types.LocalChanges{}, fmt.Errorf("flagged scan: %w", err)
	}
	candidates, err := d.groupChunksBySource(collection, flaggedRes)
	if err != nil {
		return types.LocalChanges{}, err
	}
	fallbackIDs := make(map[string]bool)
	if len(candidates) == 0 {
		// Step 2: fallback scan.
		allRes, err := d.store.Get(ctx, collection, nil, nil, 0)
		if err != nil {
			return types.LocalChanges{}, fmt.Errorf("fallback scan: %w", err)
		}
		allDocs, err := d.groupChunksBySource(collection, allRes)
		if err != nil {
			return types.LocalChanges{}, err
		}
		versionedIDs, err := d.versionedDocIDs(ctx, collection)
		if err != nil {
			return types.LocalChanges{}, err
		}
		for id, doc := range allDocs {
			if !versionedIDs[id] {
				candidates[id] = doc
				fallbackIDs[id] = true
			}
		}
	}

	// Step 3: classification + step 4: hash comparison.
	var result types.LocalChanges
	modified := make(map[string]bool)
	added := make(map[string]bool)

	for docID, doc := range candidates {
		versioned, err := d.tables.GetDocument(ctx, docID, collection)
		if err != nil {
			return types.LocalChanges{}, fmt.Errorf("get versioned document %s: %w", docID, err)
		}
		if versioned == nil {
			added[docID] = true
			continue
		}
		// Tie-break: flagged+fallback can't co-occur (fallback only
		// runs when flagged is empty), flagged+hash-mismatch collapses
		// to a single modified entry via the added/modified id sets.
		if fallbackIDs[docID] {
			added[docID] = true
			continue
		}
		if versioned.ContentHash != doc.ContentHash {
			modified[docID] = true
		}
	}

	for id := range added {
		result.New = append(result.New, candidates[id])
	}
	for id := range modified {
		if added[id] {
			continue
		}
		result.Modified = append(result.Modified, candidates[id])
	}
	sortDocuments(result.New)
	sortDocuments(result.Modified)

	// Step 5: deletions.
	deletionSet := make(map[string]types.DeletedDocument)
	if d.tracker != nil {
		pending, err := d.tracker.GetPendingDocumentDeletions(ctx, repoPath, collection)
		if err != nil {
			return types.LocalChanges{}, fmt.Errorf("pending document deletions: %w", err)
		}
		for _, rec := range pending {
			deletionSet[rec.DocID] = types.DeletedDocument{
				DocID:               rec.DocID,
				CollectionName:      collection,
				OriginalContentHash: rec.OriginalContentHash,
			}
		}
	}

	vectorIDs, err := d.vectorDocIDs(ctx, collection)
	if err != nil {
		return types.LocalChanges{}, err
	}
	versionedDocs, err := d.tables.ListDocuments(ctx, collection)
	if err != nil {
		return types.LocalChanges{}, fmt.Errorf("list versioned documents: %w", err)
	}
	for _, vdoc := range versionedDocs {
		if !vectorIDs[vdoc.DocID] {
			if _, already := deletionSet[vdoc.DocID]; !already {
				deletionSet[vdoc.DocID] = types.DeletedDocument{
					DocID:               vdoc.DocID,
					CollectionName:      collection,
					OriginalContentHash: vdoc.ContentHash,
				}
			}
		}
	}
	for _, del := range deletionSet {
		result.Deleted = append(result.Deleted, del)
	}
	sort.Slice(result.Deleted, func(i, j int) bool { return result.Deleted[i].DocID < result.Deleted[j].DocID })

	// Empty flagged scan plus no hash mismatches and no deletions
	// collapses to LocalChanges.empty.
	if !result.HasChanges() {
		return types.EmptyLocalChanges(), nil
	}
	return result, nil
}

func sortDocuments(docs []types.Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].DocID < docs[j].DocID })
}

func (d *Detector) versionedDocIDs(ctx context.Context, collection string) (map[string]bool, error) {
	docs, err := d.tables.ListDocuments(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list versioned documents: %w", err)
	}
	out := make(map[string]bool, len(docs))
	for _, doc := range docs {
		out[doc.DocID] = true
	}
	return out, nil
}

func (d *Detector) vectorDocIDs(ctx context.Context, collection string) (map[string]bool, error) {
	res, err := d.store.Get(ctx, collection, nil, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("list vector chunks: %w", err)
	}
	out := make(map[string]bool)
	for _, chunkID := range res.IDs {
		docID, _, err := types.SplitChunkID(chunkID)
		if err != nil {
			continue
		}
		out[docID] = true
	}
	return out, nil
}

// CollectionResult pairs a collection name with its detected changes
// or the error that isolated it from the rest of the batch.
type CollectionResult struct {
	Collection string
	Changes    types.LocalChanges
	Err        error
}

// DetectMultiCollection runs DetectLocalChanges concurrently across
// collections, bounded by a semaphore of concurrency permits and an
// overall deadline. A failing collection contributes empty changes and
// a logged warning; it does not abort the others.
func (d *Detector) DetectMultiCollection(ctx context.Context, repoPath string, collections []string, concurrency int, deadline time.Duration) []CollectionResult {
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	sem := semaphore.NewWeighted(int64(concurrency))
	results := make([]CollectionResult, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, collection := range collections {
		i, collection := i, collection
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i] = CollectionResult{Collection: collection, Changes: types.EmptyLocalChanges(), Err: err}
				d.logger.Warn("detection isolated: could not acquire concurrency slot", "collection", collection, "error", err.Error())
				return nil
			}
			defer sem.Release(1)

			changes, err := d.DetectLocalChanges(gctx, repoPath, collection)
			if err != nil {
				d.logger.Warn("detection isolated: collection failed", "collection", collection, "error", err.Error())
				results[i] = CollectionResult{Collection: collection, Changes: types.EmptyLocalChanges(), Err: err}
				return nil
			}
			results[i] = CollectionResult{Collection: collection, Changes: changes}
			return nil
		})
	}
	// errgroup.Wait only ever returns nil here: every goroutine isolates
	// its own failure into its result slot instead of propagating it.
	_ = g.Wait()
	return results
}
