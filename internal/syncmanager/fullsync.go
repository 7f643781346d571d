package syncmanager

import (
	"context"
	"fmt"

	"dvsync/pkg/types"
)

// FullSync rebuilds collection in the vector store from scratch against
// the versioning engine's current HEAD: a no-op if the two
// sides already agree on every (doc_id, content_hash) pair, otherwise a
// drop-and-recreate followed by a full batch insert.
func (m *Manager) FullSync(ctx context.Context, collection string) (result *types.SyncResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { result = recoverToFailed(result, recover()) }()

	added, _, _, err := m.fullSyncCollection(ctx, collection)
	if err != nil {
		return types.Failed(err)
	}
	if added == 0 {
		return types.NoChanges()
	}
	head, _ := m.client.HeadCommit(ctx)
	return &types.SyncResult{
		Status: types.StatusCompleted, Direction: types.DirectionSQLToVector,
		Added: added, CommitHash: head,
	}
}

func (m *Manager) fullSyncCollection(ctx context.Context, collection string) (added, modified, deleted int, err error) {
	versionedDocs, err := m.deltas.AllDocuments(ctx, collection)
	if err != nil {
		return 0, 0, 0, err
	}

	info, err := m.store.GetCollection(ctx, collection)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("check vector collection %s: %w", collection, err)
	}
	if info != nil {
		same, err := m.vectorMatchesVersioned(ctx, collection, versionedDocs)
		if err != nil {
			return 0, 0, 0, err
		}
		if same {
			return 0, 0, 0, nil
		}
		if err := m.store.DeleteCollection(ctx, collection); err != nil {
			return 0, 0, 0, fmt.Errorf("drop stale vector collection %s: %w", collection, err)
		}
	}

	if err := m.store.CreateCollection(ctx, collection, nil); err != nil {
		return 0, 0, 0, fmt.Errorf("recreate vector collection %s: %w", collection, err)
	}
	if err := m.applyAdded(ctx, collection, versionedDocs); err != nil {
		return 0, 0, 0, err
	}

	for _, doc := range versionedDocs {
		if err := m.deltas.RecordSync(ctx, doc.DocID, collection, doc.ContentHash, nil,
			types.DirectionVersionedToVector, types.SyncActionAdded); err != nil {
			return 0, 0, 0, err
		}
	}

	if err := m.validateFullSync(ctx, collection, versionedDocs); err != nil {
		m.logger.Warn("post-sync validation found a mismatch", "collection", collection, "error", err.Error())
	}

	return len(versionedDocs), 0, 0, nil
}

// vectorMatchesVersioned reports whether the vector store already holds
// exactly the (doc_id, content_hash) set the versioning engine has,
// making a rebuild unnecessary.
func (m *Manager) vectorMatchesVersioned(ctx context.Context, collection string, versionedDocs []types.Document) (bool, error) {
	docs, err := m.reassembleVectorDocs(ctx, collection)
	if err != nil {
		return false, err
	}
	if len(docs) != len(versionedDocs) {
		return false, nil
	}
	for _, vdoc := range versionedDocs {
		got, ok := docs[vdoc.DocID]
		if !ok || got.ContentHash != vdoc.ContentHash {
			return false, nil
		}
	}
	return true, nil
}

func (m *Manager) reassembleVectorDocs(ctx context.Context, collection string) (map[string]types.Document, error) {
	res, err := m.store.Get(ctx, collection, nil, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("list vector chunks in %s: %w", collection, err)
	}
	docs, err := m.reassembleAll(collection, res)
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.Document, len(docs))
	for _, d := range docs {
		out[d.DocID] = d
	}
	return out, nil
}

// validateFullSync logs (without failing) any mismatch found after a
// rebuild, the post-sync validation step after a full sync.
func (m *Manager) validateFullSync(ctx context.Context, collection string, versionedDocs []types.Document) error {
	got, err := m.reassembleVectorDocs(ctx, collection)
	if err != nil {
		return err
	}
	if len(got) != len(versionedDocs) {
		return fmt.Errorf("document count mismatch: vector store has %d, versioning engine has %d", len(got), len(versionedDocs))
	}
	for _, vdoc := range versionedDocs {
		g, ok := got[vdoc.DocID]
		if !ok {
			return fmt.Errorf("document %s missing from vector store after sync", vdoc.DocID)
		}
		if g.ContentHash != vdoc.ContentHash {
			return fmt.Errorf("document %s content hash mismatch after sync", vdoc.DocID)
		}
	}
	return nil
}
