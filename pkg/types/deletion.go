package types

import (
	"errors"
	"fmt"
)

// DeletionOperationType enumerates what kind of event a Deletion Record
// reports. Document deletions and collection-level operations share the
// same table; operation_type tells them apart.
type DeletionOperationType string

const (
	OperationDocumentDelete DeletionOperationType = "document_delete"
	OperationDeletion       DeletionOperationType = "deletion"
	OperationRename         DeletionOperationType = "rename"
	OperationMetadataUpdate DeletionOperationType = "metadata_update"
)

// Valid reports whether t is a recognized deletion operation type.
func (t DeletionOperationType) Valid() bool {
	switch t {
	case OperationDocumentDelete, OperationDeletion, OperationRename, OperationMetadataUpdate:
		return true
	}
	return false
}

// DeletionRecord is the append-only record of a deletion or collection
// operation observed against the vector store that the versioning
// engine has no other way to reconstruct.
type DeletionRecord struct {
	ID                  int64                  `json:"id"`
	RepositoryPath      string                 `json:"repository_path"`
	CollectionName      string                 `json:"collection_name"`
	DocID               string                 `json:"doc_id,omitempty"`
	OperationType       DeletionOperationType  `json:"operation_type"`
	OriginalContentHash string                 `json:"original_content_hash,omitempty"`
	OriginalName        string                 `json:"original_name,omitempty"`
	NewNameOrMetadata   string                 `json:"new_name_or_metadata,omitempty"`
	IsCommitted         bool                   `json:"is_committed"`
}

// Validate checks required fields on a deletion record.
func (r *DeletionRecord) Validate() error {
	if r.RepositoryPath == "" {
		return errors.New("repository_path cannot be empty")
	}
	if r.CollectionName == "" {
		return errors.New("collection_name cannot be empty")
	}
	if !r.OperationType.Valid() {
		return fmt.Errorf("invalid operation_type: %s", r.OperationType)
	}
	if r.OperationType == OperationDocumentDelete && r.DocID == "" {
		return errors.New("doc_id is required for document_delete operations")
	}
	return nil
}
