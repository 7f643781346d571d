package syncmanager

import (
	"context"
	"fmt"

	synerrors "dvsync/internal/errors"
	"dvsync/pkg/types"
)

// CheckoutOptions configures the checkout pipeline.
type CheckoutOptions struct {
	Ref                  string
	CreateNew            bool
	PreserveLocalChanges bool // carry mode: keep is_local_change=true chunks across the switch
}

// Checkout switches the versioning engine to ref, then reconciles the
// vector store to match the new HEAD exactly, except for any chunk
// flagged is_local_change when carry mode is requested.
func (m *Manager) Checkout(ctx context.Context, opts CheckoutOptions) (result *types.SyncResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { result = recoverToFailed(result, recover()) }()

	checkoutResult, err := m.client.Checkout(ctx, opts.Ref, opts.CreateNew)
	if err != nil {
		if opts.PreserveLocalChanges && isUncommittedChangesDiagnostic(err) {
			if resetErr := m.client.ResetHard(ctx, "HEAD"); resetErr != nil {
				return types.Failed(fmt.Errorf("checkout blocked by uncommitted changes, reset failed: %w", resetErr))
			}
			checkoutResult, err = m.client.Checkout(ctx, opts.Ref, opts.CreateNew)
		}
		if err != nil {
			return types.Failed(err)
		}
	}
	_ = checkoutResult

	versionedCollections, err := m.deltas.AvailableCollections(ctx)
	if err != nil {
		return types.Failed(err)
	}
	versionedSet := make(map[string]bool, len(versionedCollections))
	for _, c := range versionedCollections {
		versionedSet[c] = true
	}

	vectorCollections, err := m.store.ListCollections(ctx, 0, 0)
	if err != nil {
		return types.Failed(synerrors.NewBackendUnavailable("vector store", err))
	}

	for _, info := range vectorCollections {
		if versionedSet[info.Name] {
			continue
		}
		if err := m.reconcileOrphanCollection(ctx, info.Name, opts.PreserveLocalChanges); err != nil {
			return types.Failed(err)
		}
	}

	var added, modified, deleted int
	for _, collection := range versionedCollections {
		a, mo, de, err := m.reconcileCollectionToHead(ctx, collection, opts.PreserveLocalChanges)
		if err != nil {
			return types.Failed(err)
		}
		added += a
		modified += mo
		deleted += de
	}

	branch, err := m.client.CurrentBranch(ctx)
	if err != nil {
		branch = opts.Ref
	}
	head, err := m.client.HeadCommit(ctx)
	if err != nil {
		return types.Failed(err)
	}
	for _, collection := range versionedCollections {
		if err := m.ensureBranchSyncState(ctx, branch, collection, head); err != nil {
			return types.Failed(err)
		}
	}

	return &types.SyncResult{
		Status: types.StatusCompleted, Direction: types.DirectionSQLToVector,
		Added: added, Modified: modified, Deleted: deleted, CommitHash: head,
	}
}

// reconcileOrphanCollection handles a vector-store collection with no
// versioned counterpart: dropped entirely, unless carry mode preserves
// its locally-flagged documents.
func (m *Manager) reconcileOrphanCollection(ctx context.Context, collection string, preserveLocalChanges bool) error {
	if !preserveLocalChanges {
		return m.store.DeleteCollection(ctx, collection)
	}
	flagged, err := m.localChangeChunkIDs(ctx, collection)
	if err != nil {
		return err
	}
	all, err := m.store.Get(ctx, collection, nil, nil, 0)
	if err != nil {
		return fmt.Errorf("list chunks in orphan collection %s: %w", collection, err)
	}
	var toDelete []string
	for _, id := range all.IDs {
		if !flagged[id] {
			toDelete = append(toDelete, id)
		}
	}
	if len(toDelete) == 0 {
		return nil
	}
	return m.store.Delete(ctx, collection, toDelete)
}

// reconcileCollectionToHead deletes vector chunks with no versioned
// counterpart (unless carried), then replays or full-syncs the
// collection to the checked-out HEAD.
func (m *Manager) reconcileCollectionToHead(ctx context.Context, collection string, preserveLocalChanges bool) (added, modified, deleted int, err error) {
	vectorIDs, err := m.vectorDocIDsSet(ctx, collection)
	if err != nil {
		return 0, 0, 0, err
	}
	versionedDocs, err := m.deltas.AllDocuments(ctx, collection)
	if err != nil {
		return 0, 0, 0, err
	}
	versionedSet := make(map[string]bool, len(versionedDocs))
	for _, d := range versionedDocs {
		versionedSet[d.DocID] = true
	}

	var flagged map[string]bool
	if preserveLocalChanges {
		flagged, err = m.localChangeChunkIDs(ctx, collection)
		if err != nil {
			return 0, 0, 0, err
		}
	}

	staleIDs, err := m.chunkIDsForDocs(ctx, collection, subtractKeys(vectorIDs, versionedSet))
	if err != nil {
		return 0, 0, 0, err
	}
	if flagged != nil {
		filtered := staleIDs[:0:0]
		for _, id := range staleIDs {
			if !flagged[id] {
				filtered = append(filtered, id)
			}
		}
		staleIDs = filtered
	}
	if len(staleIDs) > 0 {
		if err := m.store.Delete(ctx, collection, staleIDs); err != nil {
			return 0, 0, 0, fmt.Errorf("delete stale chunks in %s: %w", collection, err)
		}
	}

	if preserveLocalChanges {
		a, mo, de, err := m.incrementalSyncCollection(ctx, collection)
		return a, mo, de, err
	}
	return m.fullSyncCollection(ctx, collection)
}

func (m *Manager) vectorDocIDsSet(ctx context.Context, collection string) (map[string]bool, error) {
	res, err := m.store.Get(ctx, collection, nil, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("list vector chunks in %s: %w", collection, err)
	}
	out := make(map[string]bool)
	for _, id := range res.IDs {
		docID, _, err := types.SplitChunkID(id)
		if err != nil {
			continue
		}
		out[docID] = true
	}
	return out, nil
}

func (m *Manager) localChangeChunkIDs(ctx context.Context, collection string) (map[string]bool, error) {
	res, err := m.store.Get(ctx, collection, nil, map[string]interface{}{"is_local_change": true}, 0)
	if err != nil {
		return nil, fmt.Errorf("flagged scan in %s: %w", collection, err)
	}
	out := make(map[string]bool, len(res.IDs))
	for _, id := range res.IDs {
		out[id] = true
	}
	return out, nil
}

func (m *Manager) chunkIDsForDocs(ctx context.Context, collection string, docIDs map[string]bool) ([]string, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}
	res, err := m.store.Get(ctx, collection, nil, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("list vector chunks in %s: %w", collection, err)
	}
	var out []string
	for _, id := range res.IDs {
		docID, _, err := types.SplitChunkID(id)
		if err != nil {
			continue
		}
		if docIDs[docID] {
			out = append(out, id)
		}
	}
	return out, nil
}

func subtractKeys(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for k := range a {
		if !b[k] {
			out[k] = true
		}
	}
	return out
}

func (m *Manager) ensureBranchSyncState(ctx context.Context, branch, collection, head string) error {
	_, err := m.syncState.ReconstructForBranch(ctx, m.cfg.RepoPath, branch, collection, func() (string, error) {
		return head, nil
	})
	return err
}
