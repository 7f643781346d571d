// Package syncmanager is the orchestrator: it exposes the
// sync engine's pipelines (initialize, status, commit, pull, checkout,
// merge, reset, full sync, incremental sync) over the lower-level
// components, serializing mutating pipelines per repository.
package syncmanager

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dvsync/internal/chunking"
	"dvsync/internal/deletions"
	synerrors "dvsync/internal/errors"
	"dvsync/internal/logging"
	"dvsync/internal/staging"
	"dvsync/internal/syncstate"
	"dvsync/internal/vectorstore"
	"dvsync/internal/vectorsync"
	"dvsync/internal/versioning"
	"dvsync/pkg/types"
)

// Config holds the small set of per-repository knobs the manager needs
// beyond its collaborators.
type Config struct {
	RepoPath              string
	DefaultBranch         string
	DetectionConcurrency  int
	DetectionDeadlineSecs int
	AutoStageFromVector   bool
	AutoCommitOnDirty     bool
}

// Manager is the orchestrator for one repository: it owns the
// mutex that serializes every mutating pipeline, so a commit and a
// checkout against the same repository can never interleave.
type Manager struct {
	cfg Config

	store     vectorstore.Store
	client    versioning.Client
	tables    versioning.TableStore
	detector  *vectorsync.Detector
	deltas    *versioning.DeltaDetector
	stager    *staging.Stager
	syncState *syncstate.Store
	tracker   *deletions.Tracker
	chunker   *chunking.Chunker
	logger    *logging.EnhancedLogger

	mu sync.Mutex
}

// New builds a Manager from its collaborators.
func New(cfg Config, store vectorstore.Store, client versioning.Client, tables versioning.TableStore,
	syncState *syncstate.Store, tracker *deletions.Tracker, chunker *chunking.Chunker) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     store,
		client:    client,
		tables:    tables,
		detector:  vectorsync.NewDetector(store, tables, tracker, chunker),
		deltas:    versioning.NewDeltaDetector(tables, client),
		stager:    staging.NewStager(tables, client),
		syncState: syncState,
		tracker:   tracker,
		chunker:   chunker,
		logger:    logging.GetComponentLogger("syncmanager"),
	}
}

func (m *Manager) detectionConcurrency() int {
	if m.cfg.DetectionConcurrency < 1 {
		return 4
	}
	return m.cfg.DetectionConcurrency
}

func (m *Manager) detectionDeadline() int {
	if m.cfg.DetectionDeadlineSecs < 1 {
		return 45
	}
	return m.cfg.DetectionDeadlineSecs
}

// Initialize: a collection with no versioned history gets its
// first documents/collections rows and an initial commit.
func (m *Manager) Initialize(ctx context.Context, collection, message string) (result *types.SyncResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { result = recoverToFailed(result, recover()) }()

	existing, err := m.tables.GetCollection(ctx, collection)
	if err != nil {
		return types.Failed(err)
	}
	if existing != nil {
		return &types.SyncResult{Status: types.StatusNoChanges, Direction: types.DirectionNone}
	}

	res, err := m.store.Get(ctx, collection, nil, nil, 0)
	if err != nil {
		return types.Failed(synerrors.NewBackendUnavailable("vector store", err))
	}
	docs, err := m.reassembleAll(collection, res)
	if err != nil {
		return types.Failed(err)
	}

	if err := m.stager.InsertInitialDocuments(ctx, docs); err != nil {
		return types.Failed(err)
	}
	col := &types.Collection{
		CollectionName: collection,
		ChunkSize:      chunking.DefaultChunkSize,
		ChunkOverlap:   chunking.DefaultChunkOverlap,
		DocumentCount:  len(docs),
	}
	if err := m.tables.UpsertCollection(ctx, col); err != nil {
		return types.Failed(err)
	}

	if err := m.client.AddAll(ctx); err != nil {
		return types.Failed(err)
	}
	commitResult, err := m.client.Commit(ctx, message)
	if err != nil {
		return types.Failed(err)
	}

	if err := m.syncState.Upsert(ctx, &types.SyncStateRecord{
		RepoPath: m.cfg.RepoPath, Branch: m.currentBranchOrDefault(ctx), CollectionName: collection,
		LastSyncCommit: commitResult.Hash, DocumentCount: len(docs), SyncStatus: types.SyncStatusSynced,
	}); err != nil {
		return types.Failed(err)
	}

	return &types.SyncResult{
		Status: types.StatusCompleted, Direction: types.DirectionVectorToSQL,
		Added: len(docs), CommitHash: commitResult.Hash,
	}
}

func (m *Manager) reassembleAll(collection string, res *vectorstore.GetResult) ([]types.Document, error) {
	byDoc := make(map[string][]types.Chunk)
	for i, chunkID := range res.IDs {
		docID, idx, err := types.SplitChunkID(chunkID)
		if err != nil {
			m.logger.Warn("skipping chunk with unparseable id", "chunk_id", chunkID, "error", err.Error())
			continue
		}
		meta := map[string]interface{}{}
		if i < len(res.Metadatas) && res.Metadatas[i] != nil {
			meta = res.Metadatas[i]
		}
		byDoc[docID] = append(byDoc[docID], types.Chunk{
			ChunkID: chunkID, SourceID: docID, CollectionName: collection,
			Content: res.Documents[i], ChunkIndex: idx, Metadata: meta,
		})
	}

	var docs []types.Document
	for docID, chunks := range byDoc {
		maxTotal := len(chunks)
		for i := range chunks {
			chunks[i].TotalChunks = maxTotal
		}
		doc, err := m.chunker.Reassemble(chunks)
		if err != nil {
			m.logger.Warn("reassembly failed, excluding from batch", "doc_id", docID, "error", err.Error())
			continue
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].DocID < docs[j].DocID })
	return docs, nil
}

// Status: current branch, HEAD, first discovered collection's
// local changes, and whether the engine reports pending changes.
type StatusReport struct {
	Branch            string
	HeadCommit        string
	FirstCollection   string
	LocalChanges      types.LocalChanges
	HasPendingChanges bool
}

func (m *Manager) Status(ctx context.Context) (*StatusReport, error) {
	branch, err := m.client.CurrentBranch(ctx)
	if err != nil {
		return nil, synerrors.NewBackendUnavailable("versioning engine", err)
	}
	head, err := m.client.HeadCommit(ctx)
	if err != nil {
		return nil, err
	}
	status, err := m.client.Status(ctx)
	if err != nil {
		return nil, err
	}

	collections, err := m.deltas.AvailableCollections(ctx)
	if err != nil {
		return nil, err
	}
	report := &StatusReport{
		Branch:            branch,
		HeadCommit:        head,
		HasPendingChanges: status != nil && !status.Clean(),
	}
	if len(collections) == 0 {
		return report, nil
	}
	report.FirstCollection = collections[0]
	changes, err := m.detector.DetectLocalChanges(ctx, m.cfg.RepoPath, collections[0])
	if err != nil {
		return nil, err
	}
	report.LocalChanges = changes
	return report, nil
}

// Commit: optionally auto-stage every changed collection from the
// vector store, stage pending collection-level operations from the deletion tracker, add
// all tables, and commit.
func (m *Manager) Commit(ctx context.Context, message string, replayAfterCommit bool) (result *types.SyncResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { result = recoverToFailed(result, recover()) }()

	var added, modified, deleted int
	stagedFromVector := false

	collections, err := m.deltas.AvailableCollections(ctx)
	if err != nil {
		return types.Failed(err)
	}

	if m.cfg.AutoStageFromVector {
		detected := m.detector.DetectMultiCollection(ctx, m.cfg.RepoPath, collections,
			m.detectionConcurrency(), time.Duration(m.detectionDeadline())*time.Second)
		for _, cr := range detected {
			if cr.Err != nil {
				m.logger.Warn("skipping collection with failed detection", "collection", cr.Collection, "error", cr.Err.Error())
				continue
			}
			changes := cr.Changes
			if !changes.HasChanges() {
				continue
			}
			stagedFromVector = true
			if err := m.stager.ApplyChanges(ctx, changes); err != nil {
				return types.Failed(err)
			}
			added += len(changes.New)
			modified += len(changes.Modified)
			deleted += len(changes.Deleted)
			if err := m.recordSyncLog(ctx, cr.Collection, changes); err != nil {
				return types.Failed(err)
			}
		}
	}

	if m.tracker != nil {
		if err := m.stagePendingCollectionOps(ctx); err != nil {
			return types.Failed(err)
		}
	}

	if err := m.client.AddAll(ctx); err != nil {
		return types.Failed(err)
	}
	commitResult, err := m.client.Commit(ctx, message)
	if err != nil {
		return types.Failed(err)
	}

	if m.tracker != nil {
		if err := m.markDeletionsCommitted(ctx, collections); err != nil {
			return types.Failed(err)
		}
	}

	if m.cfg.AutoStageFromVector {
		for _, collection := range collections {
			after, err := m.detector.DetectLocalChanges(ctx, m.cfg.RepoPath, collection)
			if err != nil {
				m.logger.Warn("post-commit verification failed", "collection", collection, "error", err.Error())
				continue
			}
			if after.HasChanges() {
				m.logger.Warn("post-commit verification found residual changes", "collection", collection)
			}
		}
	}

	if replayAfterCommit {
		for _, collection := range collections {
			if err := m.replayVersionedToVector(ctx, collection, "", commitResult.Hash); err != nil {
				m.logger.Warn("post-commit replay failed", "collection", collection, "error", err.Error())
			}
		}
	}

	return &types.SyncResult{
		Status: types.StatusCompleted, Direction: types.DirectionVectorToSQL,
		Added: added, Modified: modified, Deleted: deleted,
		CommitHash: commitResult.Hash, StagedFromVector: stagedFromVector,
	}
}

func (m *Manager) recordSyncLog(ctx context.Context, collection string, changes types.LocalChanges) error {
	for _, doc := range changes.New {
		if err := m.deltas.RecordSync(ctx, doc.DocID, collection, doc.ContentHash, nil, types.DirectionVersionedToVector, types.SyncActionAdded); err != nil {
			return err
		}
	}
	for _, doc := range changes.Modified {
		if err := m.deltas.RecordSync(ctx, doc.DocID, collection, doc.ContentHash, nil, types.DirectionVersionedToVector, types.SyncActionModified); err != nil {
			return err
		}
	}
	for _, del := range changes.Deleted {
		if err := m.deltas.RecordSync(ctx, del.DocID, collection, del.OriginalContentHash, nil, types.DirectionVersionedToVector, types.SyncActionDeleted); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) stagePendingCollectionOps(ctx context.Context) error {
	pending, err := m.tracker.GetPendingCollectionOperations(ctx, m.cfg.RepoPath)
	if err != nil {
		return fmt.Errorf("list pending collection operations: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}
	ops := make([]staging.CollectionOp, 0, len(pending))
	for _, rec := range pending {
		op := staging.CollectionOp{
			Type:       types.CollectionOperationType(rec.OperationType),
			Collection: types.Collection{CollectionName: rec.CollectionName},
		}
		if rec.OperationType == types.OperationRename {
			op.NewName = rec.NewNameOrMetadata
		}
		ops = append(ops, op)
	}
	return m.stager.ApplyCollectionOps(ctx, ops)
}

func (m *Manager) markDeletionsCommitted(ctx context.Context, collections []string) error {
	for _, collection := range collections {
		pendingDocs, err := m.tracker.GetPendingDocumentDeletions(ctx, m.cfg.RepoPath, collection)
		if err != nil {
			return fmt.Errorf("list pending document deletions for %s: %w", collection, err)
		}
		for _, rec := range pendingDocs {
			if err := m.tracker.MarkCommitted(ctx, m.cfg.RepoPath, rec.DocID, types.OperationDocumentDelete); err != nil {
				return err
			}
		}
	}
	pendingOps, err := m.tracker.GetPendingCollectionOperations(ctx, m.cfg.RepoPath)
	if err != nil {
		return fmt.Errorf("list pending collection operations: %w", err)
	}
	for _, rec := range pendingOps {
		if err := m.tracker.MarkCommitted(ctx, m.cfg.RepoPath, rec.CollectionName, rec.OperationType); err != nil {
			return err
		}
	}
	return m.tracker.CleanupCommitted(ctx, m.cfg.RepoPath)
}

// Pull: abort on local changes unless forced, otherwise pull and
// replay the moved HEAD.
func (m *Manager) Pull(ctx context.Context, remote string, force bool) (result *types.SyncResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { result = recoverToFailed(result, recover()) }()

	collections, err := m.deltas.AvailableCollections(ctx)
	if err != nil {
		return types.Failed(err)
	}
	if !force {
		for _, collection := range collections {
			changes, err := m.detector.DetectLocalChanges(ctx, m.cfg.RepoPath, collection)
			if err != nil {
				return types.Failed(err)
			}
			if changes.HasChanges() {
				return &types.SyncResult{Status: types.StatusLocalChangesExist, LocalChanges: &changes}
			}
		}
	}

	oldHead, err := m.client.HeadCommit(ctx)
	if err != nil {
		return types.Failed(err)
	}
	if err := m.client.Pull(ctx, remote); err != nil {
		return types.Failed(err)
	}
	newHead, err := m.client.HeadCommit(ctx)
	if err != nil {
		return types.Failed(err)
	}
	if newHead == oldHead {
		return types.NoChanges()
	}

	var added, modified, deleted int
	for _, collection := range collections {
		a, mo, de, err := m.replayVersionedToVectorCounted(ctx, collection, oldHead, newHead)
		if err != nil {
			return types.Failed(err)
		}
		added += a
		modified += mo
		deleted += de
	}

	return &types.SyncResult{
		Status: types.StatusCompleted, Direction: types.DirectionSQLToVector,
		Added: added, Modified: modified, Deleted: deleted, CommitHash: newHead,
	}
}

// Versioned to vector replay: fetch the diff and apply it in three
// batches (added, modified, removed).
func (m *Manager) replayVersionedToVectorCounted(ctx context.Context, collection, fromCommit, toCommit string) (added, modified, deleted int, err error) {
	rows, err := m.deltas.CommitDiff(ctx, fromCommit, toCommit, collection)
	if err != nil {
		return 0, 0, 0, err
	}
	delta := types.FromDiffRows(rows)

	if err := m.applyAdded(ctx, collection, delta.Added); err != nil {
		return 0, 0, 0, err
	}
	if err := m.applyModified(ctx, collection, delta.Modified); err != nil {
		return 0, 0, 0, err
	}
	if err := m.applyRemoved(ctx, collection, delta.Removed); err != nil {
		return 0, 0, 0, err
	}
	return len(delta.Added), len(delta.Modified), len(delta.Removed), nil
}

func (m *Manager) replayVersionedToVector(ctx context.Context, collection, fromCommit, toCommit string) error {
	_, _, _, err := m.replayVersionedToVectorCounted(ctx, collection, fromCommit, toCommit)
	return err
}

func (m *Manager) applyAdded(ctx context.Context, collection string, docs []types.Document) error {
	if len(docs) == 0 {
		return nil
	}
	var ids, contents []string
	var metas []map[string]interface{}
	for _, doc := range docs {
		chunks, err := m.chunker.Chunk(doc)
		if err != nil {
			m.logger.Warn("chunking failed during replay, excluding document", "doc_id", doc.DocID, "error", err.Error())
			continue
		}
		for _, c := range chunks {
			ids = append(ids, c.ChunkID)
			contents = append(contents, c.Content)
			metas = append(metas, map[string]interface{}{"total_chunks": c.TotalChunks, "chunk_index": c.ChunkIndex})
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return m.store.Add(ctx, collection, contents, ids, metas, false, false)
}

func (m *Manager) applyModified(ctx context.Context, collection string, docs []types.Document) error {
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		upperBound := m.chunker.EstimateUpperBound(len(doc.Content))
		candidateIDs := m.chunker.ChunkIDs(doc.DocID, upperBound)
		if err := m.store.Delete(ctx, collection, candidateIDs); err != nil {
			return fmt.Errorf("delete candidate chunk range for %s: %w", doc.DocID, err)
		}
	}
	return m.applyAdded(ctx, collection, docs)
}

func (m *Manager) applyRemoved(ctx context.Context, collection string, docs []types.Document) error {
	for _, doc := range docs {
		upperBound := m.chunker.EstimateUpperBound(len(doc.Content))
		candidateIDs := m.chunker.ChunkIDs(doc.DocID, upperBound)
		if err := m.store.Delete(ctx, collection, candidateIDs); err != nil {
			return fmt.Errorf("delete removed document chunk range for %s: %w", doc.DocID, err)
		}
	}
	return nil
}

// currentBranchOrDefault resolves the engine's current branch, falling
// back to the configured default when the engine can't answer (fresh
// repository).
func (m *Manager) currentBranchOrDefault(ctx context.Context) string {
	branch, err := m.client.CurrentBranch(ctx)
	if err != nil || branch == "" {
		if m.cfg.DefaultBranch != "" {
			return m.cfg.DefaultBranch
		}
		return "main"
	}
	return branch
}

// recoverToFailed converts a panic from inside a pipeline into a Failed
// SyncResult instead of crashing the process.
func recoverToFailed(result *types.SyncResult, recovered interface{}) *types.SyncResult {
	if recovered == nil {
		return result
	}
	return types.Failed(fmt.Errorf("pipeline panic: %v", recovered))
}

// isUncommittedChangesDiagnostic reports whether err looks like the
// versioning engine's "uncommitted local changes block this operation"
// failure, the trigger for the checkout retry-after-reset path.
func isUncommittedChangesDiagnostic(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "uncommitted") || strings.Contains(msg, "local changes")
}
