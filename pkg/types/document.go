// Package types holds the data model shared across the sync engine:
// documents, chunks, collections, and the local book-keeping records
// that make branch-aware synchronization possible.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Document is the logical, versioned unit of content. It is unique
// within a collection by DocID.
type Document struct {
	DocID          string                 `json:"doc_id"`
	CollectionName string                 `json:"collection_name"`
	Content        string                 `json:"content"`
	ContentHash    string                 `json:"content_hash"`
	Title          string                 `json:"title,omitempty"`
	DocType        string                 `json:"doc_type,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// HashContent computes the canonical content hash: SHA-256 over the
// UTF-8 bytes of content, encoded as lowercase hex.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Validate checks that the document satisfies the required invariants.
func (d *Document) Validate() error {
	if d.DocID == "" {
		return errors.New("doc_id cannot be empty")
	}
	if d.CollectionName == "" {
		return errors.New("collection_name cannot be empty")
	}
	if d.ContentHash != HashContent(d.Content) {
		return fmt.Errorf("content_hash mismatch for doc_id %q", d.DocID)
	}
	return nil
}

// NewDocument builds a Document with its content hash computed from
// content.
func NewDocument(docID, collectionName, content string) *Document {
	return &Document{
		DocID:          docID,
		CollectionName: collectionName,
		Content:        content,
		ContentHash:    HashContent(content),
		Metadata:       map[string]interface{}{},
	}
}

// DeletedDocument identifies a document removed from one side, carrying
// enough of its prior state for the other side to react (tombstone the
// versioned row, or record a deletion record).
type DeletedDocument struct {
	DocID              string `json:"doc_id"`
	CollectionName     string `json:"collection_name"`
	OriginalContentHash string `json:"original_content_hash,omitempty"`
}
