// Package vectorstore is the external vector document store client: CRUD
// over collections, documents, chunks, and their metadata. The sync
// engine never computes embeddings or ranks search results (non-goals);
// it only replicates content.
package vectorstore

import "context"

// CollectionInfo is the metadata returned for a single collection.
type CollectionInfo struct {
	Name     string
	Metadata map[string]interface{}
}

// GetResult is the shape returned by Get and Query: parallel slices
// indexed by position.
type GetResult struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]interface{}
	Distances []float64 // populated only by Query
}

// Store is the abstract vector-store capability set. Both the Chroma
// (HTTP) and Qdrant (gRPC) backends implement it.
type Store interface {
	ListCollections(ctx context.Context, offset, limit int) ([]CollectionInfo, error)
	CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error
	DeleteCollection(ctx context.Context, name string) error
	GetCollection(ctx context.Context, name string) (*CollectionInfo, error)
	CollectionCount(ctx context.Context, name string) (int, error)

	// Add inserts contents/ids/metadatas in lockstep. allowDuplicateIDs
	// controls whether an existing id is an error or a silent overwrite.
	// markAsLocalChange stamps is_local_change on every added chunk.
	Add(ctx context.Context, collection string, contents, ids []string, metadatas []map[string]interface{}, allowDuplicateIDs, markAsLocalChange bool) error

	// Get retrieves by id and/or metadata filter (where). A nil ids
	// slice means "no id filter."
	Get(ctx context.Context, collection string, ids []string, where map[string]interface{}, limit int) (*GetResult, error)

	// Update replaces documents and/or metadatas for the given ids.
	// Either documents or metadatas may be nil to leave that field
	// unchanged. markAsLocalChange stamps is_local_change on updated
	// chunks.
	Update(ctx context.Context, collection string, ids []string, documents []string, metadatas []map[string]interface{}, markAsLocalChange bool) error

	Delete(ctx context.Context, collection string, ids []string) error

	// Query is a pass-through to the backend's own similarity search;
	// the sync engine does not interpret or rank the results.
	Query(ctx context.Context, collection string, queryTexts []string, nResults int, where map[string]interface{}, whereDocument map[string]interface{}) (*GetResult, error)
}
