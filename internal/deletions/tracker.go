// Package deletions is the deletion tracker: an append-only record
// of document and collection deletions observed against the vector
// store, which otherwise leaves no trace the versioning engine can
// reconstruct.
package deletions

import (
	"context"
	"database/sql"
	"fmt"

	"dvsync/pkg/types"
)

// Tracker persists deletion records in the same local SQL file as the
// sync-state table (see syncstate.Open).
type Tracker struct {
	db *sql.DB
}

// NewTracker wraps an already-opened database handle.
func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// RecordDocumentDeletion records that docID was deleted from the
// vector store before the versioning engine had a chance to observe
// it, carrying the content hash it had at the time for diagnostics.
func (t *Tracker) RecordDocumentDeletion(ctx context.Context, repo, collection, docID, originalHash string) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO deletion_records (repository_path, collection_name, doc_id, operation_type, original_content_hash, is_committed)
		VALUES (?, ?, ?, ?, ?, 0)`,
		repo, collection, docID, string(types.OperationDocumentDelete), originalHash)
	if err != nil {
		return fmt.Errorf("record document deletion: %w", err)
	}
	return nil
}

// RecordCollectionOperation records a collection-level deletion,
// rename, or metadata update. opType must be one of OperationDeletion,
// OperationRename, OperationMetadataUpdate. For a rename,
// newNameOrMetadata holds the new collection name; for a metadata
// update it holds the serialized new metadata.
func (t *Tracker) RecordCollectionOperation(ctx context.Context, repo, collection string, opType types.DeletionOperationType, originalName, newNameOrMetadata string) error {
	switch opType {
	case types.OperationDeletion, types.OperationRename, types.OperationMetadataUpdate:
	default:
		return fmt.Errorf("record collection operation: invalid operation type %q", opType)
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO deletion_records (repository_path, collection_name, operation_type, original_name, new_name_or_metadata, is_committed)
		VALUES (?, ?, ?, ?, ?, 0)`,
		repo, collection, string(opType), originalName, newNameOrMetadata)
	if err != nil {
		return fmt.Errorf("record collection operation: %w", err)
	}
	return nil
}

// GetPendingDocumentDeletions returns uncommitted document_delete
// records for (repo, collection).
func (t *Tracker) GetPendingDocumentDeletions(ctx context.Context, repo, collection string) ([]types.DeletionRecord, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, repository_path, collection_name, doc_id, operation_type,
		       original_content_hash, original_name, new_name_or_metadata, is_committed
		FROM deletion_records
		WHERE repository_path = ? AND collection_name = ? AND operation_type = ? AND is_committed = 0`,
		repo, collection, string(types.OperationDocumentDelete))
	if err != nil {
		return nil, fmt.Errorf("get pending document deletions: %w", err)
	}
	return scanRecords(rows)
}

// GetPendingCollectionOperations returns uncommitted collection-level
// operations for repo, across all collections.
func (t *Tracker) GetPendingCollectionOperations(ctx context.Context, repo string) ([]types.DeletionRecord, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, repository_path, collection_name, doc_id, operation_type,
		       original_content_hash, original_name, new_name_or_metadata, is_committed
		FROM deletion_records
		WHERE repository_path = ? AND operation_type IN (?, ?, ?) AND is_committed = 0`,
		repo, string(types.OperationDeletion), string(types.OperationRename), string(types.OperationMetadataUpdate))
	if err != nil {
		return nil, fmt.Errorf("get pending collection operations: %w", err)
	}
	return scanRecords(rows)
}

// MarkCommitted marks every matching record committed: document
// deletions by doc_id, collection operations by collection_name.
// identifier is the doc_id for OperationDocumentDelete, otherwise the
// collection name.
func (t *Tracker) MarkCommitted(ctx context.Context, repo, identifier string, opType types.DeletionOperationType) error {
	var err error
	if opType == types.OperationDocumentDelete {
		_, err = t.db.ExecContext(ctx, `
			UPDATE deletion_records SET is_committed = 1
			WHERE repository_path = ? AND doc_id = ? AND operation_type = ?`,
			repo, identifier, string(opType))
	} else {
		_, err = t.db.ExecContext(ctx, `
			UPDATE deletion_records SET is_committed = 1
			WHERE repository_path = ? AND collection_name = ? AND operation_type = ?`,
			repo, identifier, string(opType))
	}
	if err != nil {
		return fmt.Errorf("mark committed: %w", err)
	}
	return nil
}

// CleanupCommitted deletes every record for repo that has been durably
// reflected in a versioned commit.
func (t *Tracker) CleanupCommitted(ctx context.Context, repo string) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM deletion_records WHERE repository_path = ? AND is_committed = 1`, repo)
	if err != nil {
		return fmt.Errorf("cleanup committed deletions: %w", err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]types.DeletionRecord, error) {
	defer rows.Close()
	var out []types.DeletionRecord
	for rows.Next() {
		var rec types.DeletionRecord
		var opType string
		var committed int
		if err := rows.Scan(&rec.ID, &rec.RepositoryPath, &rec.CollectionName, &rec.DocID, &opType,
			&rec.OriginalContentHash, &rec.OriginalName, &rec.NewNameOrMetadata, &committed); err != nil {
			return nil, fmt.Errorf("scan deletion record: %w", err)
		}
		rec.OperationType = types.DeletionOperationType(opType)
		rec.IsCommitted = committed != 0
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deletion records: %w", err)
	}
	return out, nil
}
