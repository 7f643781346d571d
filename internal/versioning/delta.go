package versioning

import (
	"context"
	"fmt"

	"dvsync/pkg/types"
)

// DeltaDetector computes what has changed in the versioning engine
// since the vector side last saw it. It is the read side of the
// versioned→vector direction; the write side lives in syncmanager's
// replay pipeline.
type DeltaDetector struct {
	tables TableStore
	client Client
}

// NewDeltaDetector builds a versioned-side delta detector over tables and an optional
// client (nil client disables CommitDiff, which needs the native diff
// primitive).
func NewDeltaDetector(tables TableStore, client Client) *DeltaDetector {
	return &DeltaDetector{tables: tables, client: client}
}

// PendingSyncDocuments returns documents whose content_hash differs
// from, or is absent in, the V→C sync log, classified new or modified.
func (d *DeltaDetector) PendingSyncDocuments(ctx context.Context, collection string) (types.VersionedDelta, error) {
	exists, err := d.tables.TableExists(ctx, "documents")
	if err != nil {
		return types.VersionedDelta{}, fmt.Errorf("check documents table: %w", err)
	}
	if !exists {
		return types.VersionedDelta{}, nil
	}

	docs, err := d.tables.ListDocuments(ctx, collection)
	if err != nil {
		return types.VersionedDelta{}, fmt.Errorf("list documents: %w", err)
	}

	var result types.VersionedDelta
	for _, doc := range docs {
		entry, err := d.tables.GetSyncLogEntry(ctx, doc.DocID, collection, types.DirectionVersionedToVector)
		if err != nil {
			return types.VersionedDelta{}, fmt.Errorf("get sync log entry for %s: %w", doc.DocID, err)
		}
		switch {
		case entry == nil:
			result.Added = append(result.Added, doc)
		case entry.ContentHash != doc.ContentHash:
			result.Modified = append(result.Modified, doc)
		}
	}
	return result, nil
}

// DeletedDocuments returns documents present in the V→C sync log but
// absent from the documents table.
func (d *DeltaDetector) DeletedDocuments(ctx context.Context, collection string) ([]types.DeletedDocument, error) {
	logged, err := d.tables.ListSyncLog(ctx, collection, types.DirectionVersionedToVector)
	if err != nil {
		return nil, fmt.Errorf("list sync log: %w", err)
	}

	var out []types.DeletedDocument
	for _, entry := range logged {
		doc, err := d.tables.GetDocument(ctx, entry.DocID, collection)
		if err != nil {
			return nil, fmt.Errorf("get document %s: %w", entry.DocID, err)
		}
		if doc == nil {
			out = append(out, types.DeletedDocument{
				DocID:               entry.DocID,
				CollectionName:      collection,
				OriginalContentHash: entry.ContentHash,
			})
		}
	}
	return out, nil
}

// CommitDiff wraps the versioning engine's native commit-to-commit
// diff primitive, scoped to one collection's document rows.
func (d *DeltaDetector) CommitDiff(ctx context.Context, fromCommit, toCommit, collection string) ([]types.DiffRow, error) {
	if d.client == nil {
		return nil, fmt.Errorf("commit_diff requires a versioning engine client")
	}
	rows, err := d.client.Diff(ctx, fromCommit, toCommit, "documents")
	if err != nil {
		return nil, fmt.Errorf("commit diff: %w", err)
	}
	if collection == "" {
		return rows, nil
	}
	filtered := rows[:0:0]
	for _, r := range rows {
		if r.Document.CollectionName == collection {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// AllDocuments returns a full table dump for one collection, used by
// full-sync rebuilds.
func (d *DeltaDetector) AllDocuments(ctx context.Context, collection string) ([]types.Document, error) {
	docs, err := d.tables.ListDocuments(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("all documents: %w", err)
	}
	return docs, nil
}

// AvailableCollections returns every collection name registered in the
// collections table. Initialize and the stager keep that table in
// lockstep with the distinct collection_name values actually present in
// documents, so this is read from collections alone rather than
// cross-checking both.
func (d *DeltaDetector) AvailableCollections(ctx context.Context) ([]string, error) {
	collections, err := d.tables.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	seen := make(map[string]bool, len(collections))
	names := make([]string, 0, len(collections))
	for _, c := range collections {
		if !seen[c.CollectionName] {
			seen[c.CollectionName] = true
			names = append(names, c.CollectionName)
		}
	}
	return names, nil
}

// RecordSync upserts an entry into the sync log, the baseline future
// PendingSyncDocuments/DeletedDocuments calls compare against.
func (d *DeltaDetector) RecordSync(ctx context.Context, docID, collection, contentHash string, chunkIDs []string, direction types.SyncDirection, action types.SyncAction) error {
	entry := &types.SyncLogEntry{
		DocID:          docID,
		CollectionName: collection,
		ContentHash:    contentHash,
		ChunkIDs:       chunkIDs,
		SyncDirection:  direction,
		SyncAction:     action,
	}
	if err := d.tables.UpsertSyncLogEntry(ctx, entry); err != nil {
		return fmt.Errorf("record sync: %w", err)
	}
	return nil
}

// UpdateSyncState and GetSyncState are thin passthroughs kept for
// legacy compatibility with callers that still address this detector for
// sync-state; the canonical store is internal/syncstate.
func (d *DeltaDetector) UpdateSyncState(ctx context.Context, rec *types.SyncStateRecord, upsert func(context.Context, *types.SyncStateRecord) error) error {
	return upsert(ctx, rec)
}

func (d *DeltaDetector) GetSyncState(ctx context.Context, repo, branch, collection string, get func(context.Context, string, string, string) (*types.SyncStateRecord, error)) (*types.SyncStateRecord, error) {
	return get(ctx, repo, branch, collection)
}
