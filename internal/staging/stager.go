// Package staging applies a detected delta set to the versioning
// engine's SQL tables and stages the affected tables for commit.
package staging

import (
	"context"
	"fmt"

	"dvsync/internal/logging"
	"dvsync/internal/versioning"
	"dvsync/pkg/types"
)

// CollectionOp is one collection-level operation to apply alongside a
// document delta: delete, rename, or a metadata update (an upsert of
// the collection row).
type CollectionOp struct {
	Type       types.CollectionOperationType
	Collection types.Collection
	NewName    string // only for renames
}

// Stager applies LocalChanges (or an initialization set) to the
// versioning engine's documents/collections tables.
type Stager struct {
	tables versioning.TableStore
	client versioning.Client // nil disables the stage-for-commit step
	logger *logging.EnhancedLogger

	deletedCollections map[string]bool
}

// NewStager builds a stager. client may be nil when staging into a
// MemoryTableStore with no backing versioning-engine connection (tests).
func NewStager(tables versioning.TableStore, client versioning.Client) *Stager {
	return &Stager{
		tables:             tables,
		client:             client,
		logger:             logging.GetComponentLogger("staging.stager"),
		deletedCollections: make(map[string]bool),
	}
}

// ApplyChanges inserts, updates, and deletes document rows per a
// detected LocalChanges set, then stages the documents table.
func (s *Stager) ApplyChanges(ctx context.Context, changes types.LocalChanges) error {
	for _, doc := range changes.New {
		if err := s.insertDocument(ctx, doc); err != nil {
			return err
		}
	}
	for _, doc := range changes.Modified {
		if err := s.updateDocument(ctx, doc); err != nil {
			return err
		}
	}
	for _, del := range changes.Deleted {
		if err := s.deleteDocument(ctx, del); err != nil {
			return err
		}
	}
	if len(changes.New)+len(changes.Modified)+len(changes.Deleted) > 0 {
		return s.stageTable(ctx, "documents")
	}
	return nil
}

func (s *Stager) insertDocument(ctx context.Context, doc types.Document) error {
	doc.ContentHash = types.HashContent(doc.Content)
	if s.deletedCollections[doc.CollectionName] {
		s.logger.Info("skipping insert against collection deleted earlier in this batch", "doc_id", doc.DocID, "collection", doc.CollectionName)
		return nil
	}
	if err := s.tables.UpsertDocument(ctx, &doc); err != nil {
		return fmt.Errorf("insert document %s: %w", doc.DocID, err)
	}
	return nil
}

func (s *Stager) updateDocument(ctx context.Context, doc types.Document) error {
	doc.ContentHash = types.HashContent(doc.Content)
	if s.deletedCollections[doc.CollectionName] {
		s.logger.Info("skipping update against collection deleted earlier in this batch", "doc_id", doc.DocID, "collection", doc.CollectionName)
		return nil
	}
	if err := s.tables.UpsertDocument(ctx, &doc); err != nil {
		return fmt.Errorf("update document %s: %w", doc.DocID, err)
	}
	return nil
}

func (s *Stager) deleteDocument(ctx context.Context, del types.DeletedDocument) error {
	if s.deletedCollections[del.CollectionName] {
		return nil // already cascaded away with the collection
	}
	if err := s.tables.DeleteDocument(ctx, del.DocID, del.CollectionName); err != nil {
		return fmt.Errorf("delete document %s: %w", del.DocID, err)
	}
	return nil
}

// ApplyCollectionOps applies collection-level operations in order,
// cascading document deletes before the collection row is removed, and
// skipping any operation against a collection this batch already
// deleted.
func (s *Stager) ApplyCollectionOps(ctx context.Context, ops []CollectionOp) error {
	for _, op := range ops {
		if s.deletedCollections[op.Collection.CollectionName] && op.Type != types.CollectionOpDeletion {
			s.logger.Info("skipping duplicate operation against already-deleted collection",
				"collection", op.Collection.CollectionName, "operation", op.Type)
			continue
		}

		var err error
		switch op.Type {
		case types.CollectionOpDeletion:
			err = s.deleteCollection(ctx, op.Collection.CollectionName)
		case types.CollectionOpRename:
			err = s.renameCollection(ctx, op.Collection.CollectionName, op.NewName)
		case types.CollectionOpMetadataUpdate:
			err = s.tables.UpsertCollection(ctx, &op.Collection)
		default:
			err = fmt.Errorf("unrecognized collection operation %q", op.Type)
		}
		if err != nil {
			return fmt.Errorf("collection operation %s on %s: %w", op.Type, op.Collection.CollectionName, err)
		}
	}
	if len(ops) > 0 {
		return s.stageTable(ctx, "collections")
	}
	return nil
}

func (s *Stager) deleteCollection(ctx context.Context, name string) error {
	// Cascade: documents removed before the collection row itself.
	if err := s.tables.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	s.deletedCollections[name] = true
	return nil
}

func (s *Stager) renameCollection(ctx context.Context, oldName, newName string) error {
	if err := s.tables.RenameCollection(ctx, oldName, newName); err != nil {
		return fmt.Errorf("rename collection %s to %s: %w", oldName, newName, err)
	}
	return nil
}

// InsertInitialDocuments is the bulk insert path used by
// Initialize and full sync: every document is a fresh insert with
// no prior sync-log baseline.
func (s *Stager) InsertInitialDocuments(ctx context.Context, docs []types.Document) error {
	for _, doc := range docs {
		if err := s.insertDocument(ctx, doc); err != nil {
			return err
		}
	}
	if len(docs) > 0 {
		return s.stageTable(ctx, "documents")
	}
	return nil
}

func (s *Stager) stageTable(ctx context.Context, table string) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Add(ctx, table); err != nil {
		return fmt.Errorf("stage table %s: %w", table, err)
	}
	return nil
}
