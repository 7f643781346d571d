package syncmanager

import (
	"context"

	"dvsync/pkg/types"
)

// IncrementalSync applies only what has changed in the versioning
// engine since the vector side last saw it, using the pending
// and deleted document sets rather than a full rebuild.
func (m *Manager) IncrementalSync(ctx context.Context, collection string) (result *types.SyncResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { result = recoverToFailed(result, recover()) }()

	added, modified, deleted, err := m.incrementalSyncCollection(ctx, collection)
	if err != nil {
		return types.Failed(err)
	}
	if added+modified+deleted == 0 {
		return types.NoChanges()
	}
	head, _ := m.client.HeadCommit(ctx)
	return &types.SyncResult{
		Status: types.StatusCompleted, Direction: types.DirectionSQLToVector,
		Added: added, Modified: modified, Deleted: deleted, CommitHash: head,
	}
}

func (m *Manager) incrementalSyncCollection(ctx context.Context, collection string) (added, modified, deleted int, err error) {
	pending, err := m.deltas.PendingSyncDocuments(ctx, collection)
	if err != nil {
		return 0, 0, 0, err
	}
	removed, err := m.deltas.DeletedDocuments(ctx, collection)
	if err != nil {
		return 0, 0, 0, err
	}

	if err := m.applyModified(ctx, collection, pending.Modified); err != nil {
		return 0, 0, 0, err
	}
	if err := m.applyAdded(ctx, collection, pending.Added); err != nil {
		return 0, 0, 0, err
	}
	for _, del := range removed {
		if err := m.deleteDocumentChunks(ctx, collection, del.DocID); err != nil {
			return 0, 0, 0, err
		}
	}

	for _, doc := range pending.Added {
		if err := m.deltas.RecordSync(ctx, doc.DocID, collection, doc.ContentHash, nil,
			types.DirectionVersionedToVector, types.SyncActionAdded); err != nil {
			return 0, 0, 0, err
		}
	}
	for _, doc := range pending.Modified {
		if err := m.deltas.RecordSync(ctx, doc.DocID, collection, doc.ContentHash, nil,
			types.DirectionVersionedToVector, types.SyncActionModified); err != nil {
			return 0, 0, 0, err
		}
	}
	for _, del := range removed {
		if err := m.deltas.RecordSync(ctx, del.DocID, collection, del.OriginalContentHash, nil,
			types.DirectionVersionedToVector, types.SyncActionDeleted); err != nil {
			return 0, 0, 0, err
		}
	}

	return len(pending.Added), len(pending.Modified), len(removed), nil
}

func (m *Manager) deleteDocumentChunks(ctx context.Context, collection, docID string) error {
	ids, err := m.chunkIDsForDocs(ctx, collection, map[string]bool{docID: true})
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return m.store.Delete(ctx, collection, ids)
}
