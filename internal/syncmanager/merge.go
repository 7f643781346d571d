package syncmanager

import (
	"context"

	"dvsync/pkg/types"
)

// Merge merges ref into the current branch. It refuses to run while the
// vector store has uncommitted local changes unless force is set,
// surfaces row-level conflicts without touching the vector store, and
// otherwise ensures the working directory is clean (auto-committing or
// resetting per cfg.AutoCommitOnDirty) before replaying the merge
// commit into every collection.
func (m *Manager) Merge(ctx context.Context, ref string, force bool) (result *types.SyncResult) {
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

	preMergeHead, err := m.client.HeadCommit(ctx)
	if err != nil {
		return types.Failed(err)
	}

	mergeResult, err := m.client.Merge(ctx, ref)
	if err != nil {
		return types.Failed(err)
	}
	if mergeResult.HasConflicts {
		conflicts, cerr := m.collectConflicts(ctx)
		if cerr != nil {
			return types.Failed(cerr)
		}
		return &types.SyncResult{Status: types.StatusConflicts, Conflicts: conflicts}
	}

	if err := m.ensureCleanWorkingDirectory(ctx, m.cfg.AutoCommitOnDirty, "auto-commit after merge "+ref); err != nil {
		return types.Failed(err)
	}

	mergeHead, err := m.client.HeadCommit(ctx)
	if err != nil {
		return types.Failed(err)
	}

	var added, modified, deleted int
	for _, collection := range collections {
		a, mo, de, err := m.replayVersionedToVectorCounted(ctx, collection, preMergeHead, mergeHead)
		if err != nil {
			return types.Failed(err)
		}
		added += a
		modified += mo
		deleted += de
	}

	return &types.SyncResult{
		Status: types.StatusCompleted, Direction: types.DirectionSQLToVector,
		Added: added, Modified: modified, Deleted: deleted, CommitHash: mergeHead,
	}
}

// collectConflicts gathers conflict rows from every table that might
// carry them; the sync engine only ever writes to documents and
// collections, so those are the only tables checked.
func (m *Manager) collectConflicts(ctx context.Context) ([]types.Conflict, error) {
	var out []types.Conflict
	for _, table := range []string{"documents", "collections"} {
		conflicts, err := m.client.GetConflicts(ctx, table)
		if err != nil {
			continue // table without a dolt_conflicts_<table> view: no conflicts there
		}
		out = append(out, conflicts...)
	}
	return out, nil
}
