package types

import "errors"

// Collection is a named container of documents. Collection-level
// operations (delete/rename/metadata-update) are tracked by the
// deletion tracker because the vector store has no historical diff.
type Collection struct {
	CollectionName string                 `json:"collection_name"`
	DisplayName    string                 `json:"display_name,omitempty"`
	Description    string                 `json:"description,omitempty"`
	EmbeddingModel string                 `json:"embedding_model,omitempty"`
	ChunkSize      int                    `json:"chunk_size"`
	ChunkOverlap   int                    `json:"chunk_overlap"`
	DocumentCount  int                    `json:"document_count"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks required fields on a collection record.
func (c *Collection) Validate() error {
	if c.CollectionName == "" {
		return errors.New("collection_name cannot be empty")
	}
	if c.ChunkSize <= 0 {
		return errors.New("chunk_size must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return errors.New("chunk_overlap must be non-negative and smaller than chunk_size")
	}
	return nil
}

// CollectionOperationType enumerates the kinds of collection-level
// operations the deletion tracker can record.
type CollectionOperationType string

const (
	CollectionOpDeletion       CollectionOperationType = "deletion"
	CollectionOpRename         CollectionOperationType = "rename"
	CollectionOpMetadataUpdate CollectionOperationType = "metadata_update"
)

// Valid reports whether t is one of the recognized collection operation
// types.
func (t CollectionOperationType) Valid() bool {
	switch t {
	case CollectionOpDeletion, CollectionOpRename, CollectionOpMetadataUpdate:
		return true
	}
	return false
}
