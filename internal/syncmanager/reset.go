package syncmanager

import (
	"context"
	"fmt"

	synerrors "dvsync/internal/errors"
	"dvsync/pkg/types"
)

// Reset discards the working directory back to ref: a hard
// reset also rebuilds every collection in the vector store from the new
// HEAD; a soft reset leaves staged changes (and therefore the vector
// store) untouched.
func (m *Manager) Reset(ctx context.Context, ref string, hard bool) (result *types.SyncResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { result = recoverToFailed(result, recover()) }()

	if hard {
		if err := m.client.ResetHard(ctx, ref); err != nil {
			return types.Failed(err)
		}
	} else {
		if err := m.client.ResetSoft(ctx, ref); err != nil {
			return types.Failed(err)
		}
		head, _ := m.client.HeadCommit(ctx)
		return &types.SyncResult{Status: types.StatusCompleted, Direction: types.DirectionNone, CommitHash: head}
	}

	status, err := m.client.Status(ctx)
	if err != nil {
		return types.Failed(err)
	}
	if status != nil && !status.Clean() {
		return types.Failed(synerrors.New(synerrors.CheckoutBlockedByLocalChanges, "reset --hard left the working directory dirty"))
	}

	collections, err := m.deltas.AvailableCollections(ctx)
	if err != nil {
		return types.Failed(err)
	}

	var added int
	for _, collection := range collections {
		a, _, _, err := m.fullSyncCollection(ctx, collection)
		if err != nil {
			return types.Failed(fmt.Errorf("full sync %s after reset: %w", collection, err))
		}
		added += a
	}

	head, err := m.client.HeadCommit(ctx)
	if err != nil {
		return types.Failed(err)
	}
	return &types.SyncResult{
		Status: types.StatusCompleted, Direction: types.DirectionSQLToVector,
		Added: added, CommitHash: head,
	}
}

// ensureCleanWorkingDirectory: before an operation that reads
// committed state, either stage-and-commit any dirty tables
// (when autoCommit is requested) or discard them with a hard reset,
// then verify the result is actually clean.
func (m *Manager) ensureCleanWorkingDirectory(ctx context.Context, autoCommit bool, commitMessage string) error {
	status, err := m.client.Status(ctx)
	if err != nil {
		return err
	}
	if status == nil || status.Clean() {
		return nil
	}

	if autoCommit {
		if err := m.client.AddAll(ctx); err != nil {
			return err
		}
		if _, err := m.client.Commit(ctx, commitMessage); err != nil {
			return err
		}
	} else {
		if err := m.client.ResetHard(ctx, "HEAD"); err != nil {
			return err
		}
	}

	status, err = m.client.Status(ctx)
	if err != nil {
		return err
	}
	if status != nil && !status.Clean() {
		return synerrors.New(synerrors.CheckoutBlockedByLocalChanges, "working directory still dirty after cleanup")
	}
	return nil
}
