package versioning

import (
	"context"
	"database/sql"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	synerrors "dvsync/internal/errors"
	"dvsync/pkg/types"

	"github.com/lib/pq"
)

// undefinedTableError reports whether err is Postgres's "relation does
// not exist" error (SQLSTATE 42P01): a versioned table (documents,
// collections, document_sync_log) does not yet exist for a fresh
// repository.
func undefinedTableError(err error) bool {
	var pqErr *pq.Error
	if goerrors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	return strings.Contains(err.Error(), "does not exist")
}

// TableStore is the typed CRUD surface over three of the tables the sync
// engine keeps inside the versioning engine: documents, collections,
// and document_sync_log. Sync state is kept by internal/syncstate, not
// here. Separated from
// Client so that pipeline tests can run against MemoryTableStore
// without a live versioning-engine connection.
type TableStore interface {
	GetDocument(ctx context.Context, docID, collection string) (*types.Document, error)
	ListDocuments(ctx context.Context, collection string) ([]types.Document, error)
	UpsertDocument(ctx context.Context, doc *types.Document) error
	DeleteDocument(ctx context.Context, docID, collection string) error

	GetCollection(ctx context.Context, name string) (*types.Collection, error)
	ListCollections(ctx context.Context) ([]types.Collection, error)
	UpsertCollection(ctx context.Context, c *types.Collection) error
	DeleteCollection(ctx context.Context, name string) error
	RenameCollection(ctx context.Context, oldName, newName string) error

	GetSyncLogEntry(ctx context.Context, docID, collection string, dir types.SyncDirection) (*types.SyncLogEntry, error)
	UpsertSyncLogEntry(ctx context.Context, e *types.SyncLogEntry) error
	ListSyncLog(ctx context.Context, collection string, dir types.SyncDirection) ([]types.SyncLogEntry, error)
	DeleteSyncLogEntry(ctx context.Context, docID, collection string, dir types.SyncDirection) error

	TableExists(ctx context.Context, table string) (bool, error)
}

// ---- SQLTableStore: real, lib/pq-backed implementation ----

// SQLTableStore implements TableStore against the versioning engine's
// own SQL tables, grounded on template_repository.go's $N-placeholder
// idiom.
type SQLTableStore struct {
	db *sql.DB
}

// NewSQLTableStore wraps an established versioning-engine connection.
func NewSQLTableStore(db *sql.DB) *SQLTableStore {
	return &SQLTableStore{db: db}
}

func marshalMetadata(m map[string]interface{}) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return m, nil
}

func (s *SQLTableStore) GetDocument(ctx context.Context, docID, collection string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc_id, collection_name, content, content_hash, title, doc_type, metadata
		 FROM documents WHERE doc_id = $1 AND collection_name = $2`, docID, collection)

	var d types.Document
	var title, docType, metaRaw sql.NullString
	if err := row.Scan(&d.DocID, &d.CollectionName, &d.Content, &d.ContentHash, &title, &docType, &metaRaw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if undefinedTableError(err) {
			return nil, nil // fresh repository: treat a missing documents table as empty
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	d.Title = title.String
	d.DocType = docType.String
	meta, err := unmarshalMetadata(metaRaw.String)
	if err != nil {
		return nil, err
	}
	d.Metadata = meta
	return &d, nil
}

func (s *SQLTableStore) ListDocuments(ctx context.Context, collection string) ([]types.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, collection_name, content, content_hash, title, doc_type, metadata
		 FROM documents WHERE collection_name = $1`, collection)
	if err != nil {
		if undefinedTableError(err) {
			return nil, nil // fresh repository: treat a missing documents table as empty
		}
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []types.Document
	for rows.Next() {
		var d types.Document
		var title, docType, metaRaw sql.NullString
		if err := rows.Scan(&d.DocID, &d.CollectionName, &d.Content, &d.ContentHash, &title, &docType, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Title = title.String
		d.DocType = docType.String
		meta, err := unmarshalMetadata(metaRaw.String)
		if err != nil {
			return nil, err
		}
		d.Metadata = meta
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLTableStore) UpsertDocument(ctx context.Context, doc *types.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}
	metaJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (doc_id, collection_name, content, content_hash, title, doc_type, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (doc_id, collection_name) DO UPDATE SET
			content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			title = EXCLUDED.title,
			doc_type = EXCLUDED.doc_type,
			metadata = EXCLUDED.metadata`,
		doc.DocID, doc.CollectionName, doc.Content, doc.ContentHash, doc.Title, doc.DocType, metaJSON)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (s *SQLTableStore) DeleteDocument(ctx context.Context, docID, collection string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE doc_id = $1 AND collection_name = $2`, docID, collection)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *SQLTableStore) GetCollection(ctx context.Context, name string) (*types.Collection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT collection_name, display_name, description, embedding_model, chunk_size, chunk_overlap, document_count, metadata
		FROM collections WHERE collection_name = $1`, name)

	var c types.Collection
	var display, desc, model, metaRaw sql.NullString
	if err := row.Scan(&c.CollectionName, &display, &desc, &model, &c.ChunkSize, &c.ChunkOverlap, &c.DocumentCount, &metaRaw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get collection: %w", err)
	}
	c.DisplayName = display.String
	c.Description = desc.String
	c.EmbeddingModel = model.String
	meta, err := unmarshalMetadata(metaRaw.String)
	if err != nil {
		return nil, err
	}
	c.Metadata = meta
	return &c, nil
}

func (s *SQLTableStore) ListCollections(ctx context.Context) ([]types.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT collection_name, display_name, description, embedding_model, chunk_size, chunk_overlap, document_count, metadata
		FROM collections ORDER BY collection_name`)
	if err != nil {
		if undefinedTableError(err) {
			return nil, nil // fresh repository: treat a missing collections table as empty
		}
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []types.Collection
	for rows.Next() {
		var c types.Collection
		var display, desc, model, metaRaw sql.NullString
		if err := rows.Scan(&c.CollectionName, &display, &desc, &model, &c.ChunkSize, &c.ChunkOverlap, &c.DocumentCount, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		c.DisplayName = display.String
		c.Description = desc.String
		c.EmbeddingModel = model.String
		meta, err := unmarshalMetadata(metaRaw.String)
		if err != nil {
			return nil, err
		}
		c.Metadata = meta
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLTableStore) UpsertCollection(ctx context.Context, c *types.Collection) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid collection: %w", err)
	}
	metaJSON, err := marshalMetadata(c.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collections (collection_name, display_name, description, embedding_model, chunk_size, chunk_overlap, document_count, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (collection_name) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			embedding_model = EXCLUDED.embedding_model,
			chunk_size = EXCLUDED.chunk_size,
			chunk_overlap = EXCLUDED.chunk_overlap,
			document_count = EXCLUDED.document_count,
			metadata = EXCLUDED.metadata`,
		c.CollectionName, c.DisplayName, c.Description, c.EmbeddingModel, c.ChunkSize, c.ChunkOverlap, c.DocumentCount, metaJSON)
	if err != nil {
		return fmt.Errorf("upsert collection: %w", err)
	}
	return nil
}

func (s *SQLTableStore) DeleteCollection(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete collection: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection_name = $1`, name); err != nil {
		return fmt.Errorf("cascade delete documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE collection_name = $1`, name); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return tx.Commit()
}

func (s *SQLTableStore) RenameCollection(ctx context.Context, oldName, newName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rename collection: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE collections SET collection_name = $1 WHERE collection_name = $2`, newName, oldName); err != nil {
		return fmt.Errorf("rename collection row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET collection_name = $1 WHERE collection_name = $2`, newName, oldName); err != nil {
		return fmt.Errorf("rename collection documents: %w", err)
	}
	return tx.Commit()
}

func (s *SQLTableStore) GetSyncLogEntry(ctx context.Context, docID, collection string, dir types.SyncDirection) (*types.SyncLogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, collection_name, content_hash, chroma_chunk_ids, sync_direction, sync_action, synced_at
		FROM document_sync_log WHERE doc_id = $1 AND collection_name = $2 AND sync_direction = $3`,
		docID, collection, dir)

	e, err := scanSyncLogRow(row)
	if err == sql.ErrNoRows || (err != nil && undefinedTableError(err)) {
		return nil, nil
	}
	return e, err
}

func (s *SQLTableStore) ListSyncLog(ctx context.Context, collection string, dir types.SyncDirection) ([]types.SyncLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, collection_name, content_hash, chroma_chunk_ids, sync_direction, sync_action, synced_at
		FROM document_sync_log WHERE collection_name = $1 AND sync_direction = $2`, collection, dir)
	if err != nil {
		if undefinedTableError(err) {
			return nil, nil // fresh repository: treat a missing sync log as empty
		}
		return nil, fmt.Errorf("list sync log: %w", err)
	}
	defer rows.Close()

	var out []types.SyncLogEntry
	for rows.Next() {
		e, err := scanSyncLogRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *SQLTableStore) UpsertSyncLogEntry(ctx context.Context, e *types.SyncLogEntry) error {
	chunkIDs, err := json.Marshal(e.ChunkIDs)
	if err != nil {
		return fmt.Errorf("marshal chunk ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO document_sync_log (doc_id, collection_name, content_hash, chroma_chunk_ids, sync_direction, sync_action, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (doc_id, collection_name, sync_direction) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			chroma_chunk_ids = EXCLUDED.chroma_chunk_ids,
			sync_action = EXCLUDED.sync_action,
			synced_at = EXCLUDED.synced_at`,
		e.DocID, e.CollectionName, e.ContentHash, string(chunkIDs), e.SyncDirection, e.SyncAction, e.SyncedAt)
	if err != nil {
		return fmt.Errorf("upsert sync log entry: %w", err)
	}
	return nil
}

func (s *SQLTableStore) DeleteSyncLogEntry(ctx context.Context, docID, collection string, dir types.SyncDirection) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM document_sync_log WHERE doc_id = $1 AND collection_name = $2 AND sync_direction = $3`,
		docID, collection, dir)
	if err != nil {
		return fmt.Errorf("delete sync log entry: %w", err)
	}
	return nil
}

func (s *SQLTableStore) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
	if err != nil {
		return false, synerrors.Wrap(synerrors.BackendUnavailable, "check table existence", err)
	}
	return exists, nil
}

type sqlRowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSyncLogRow(row *sql.Row) (*types.SyncLogEntry, error) {
	return scanSyncLog(row)
}

func scanSyncLogRows(rows *sql.Rows) (*types.SyncLogEntry, error) {
	return scanSyncLog(rows)
}

func scanSyncLog(scanner sqlRowScanner) (*types.SyncLogEntry, error) {
	var e types.SyncLogEntry
	var chunkIDsRaw string
	var syncedAt sql.NullTime
	if err := scanner.Scan(&e.DocID, &e.CollectionName, &e.ContentHash, &chunkIDsRaw, &e.SyncDirection, &e.SyncAction, &syncedAt); err != nil {
		return nil, err
	}
	if chunkIDsRaw != "" {
		if err := json.Unmarshal([]byte(chunkIDsRaw), &e.ChunkIDs); err != nil {
			return nil, fmt.Errorf("unmarshal chunk ids: %w", err)
		}
	}
	if syncedAt.Valid {
		e.SyncedAt = syncedAt.Time
	}
	return &e, nil
}

// ---- MemoryTableStore: in-memory fake for pipeline tests ----

// MemoryTableStore is an in-memory TableStore fake, grounded on
// vectorstore/mock.go's pattern of plain maps behind the real
// interface, for exercising sync pipelines without a live
// versioning-engine connection.
type MemoryTableStore struct {
	documents   map[string]types.Document // key: docID+"\x00"+collection
	collections map[string]types.Collection
	syncLog     map[string]types.SyncLogEntry // key: docID+"\x00"+collection+"\x00"+direction
	existing    map[string]bool
}

// NewMemoryTableStore builds an empty in-memory store.
func NewMemoryTableStore() *MemoryTableStore {
	return &MemoryTableStore{
		documents:   make(map[string]types.Document),
		collections: make(map[string]types.Collection),
		syncLog:     make(map[string]types.SyncLogEntry),
		existing:    make(map[string]bool),
	}
}

func docKey(docID, collection string) string { return docID + "\x00" + collection }
func syncKey(docID, collection string, dir types.SyncDirection) string {
	return docID + "\x00" + collection + "\x00" + string(dir)
}

func (m *MemoryTableStore) GetDocument(_ context.Context, docID, collection string) (*types.Document, error) {
	if d, ok := m.documents[docKey(docID, collection)]; ok {
		cp := d
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryTableStore) ListDocuments(_ context.Context, collection string) ([]types.Document, error) {
	var out []types.Document
	for _, d := range m.documents {
		if d.CollectionName == collection {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocID < out[j].DocID })
	return out, nil
}

func (m *MemoryTableStore) UpsertDocument(_ context.Context, doc *types.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}
	m.documents[docKey(doc.DocID, doc.CollectionName)] = *doc
	m.existing["documents"] = true
	return nil
}

func (m *MemoryTableStore) DeleteDocument(_ context.Context, docID, collection string) error {
	delete(m.documents, docKey(docID, collection))
	return nil
}

func (m *MemoryTableStore) GetCollection(_ context.Context, name string) (*types.Collection, error) {
	if c, ok := m.collections[name]; ok {
		cp := c
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryTableStore) ListCollections(_ context.Context) ([]types.Collection, error) {
	var out []types.Collection
	for _, c := range m.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectionName < out[j].CollectionName })
	return out, nil
}

func (m *MemoryTableStore) UpsertCollection(_ context.Context, c *types.Collection) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid collection: %w", err)
	}
	m.collections[c.CollectionName] = *c
	m.existing["collections"] = true
	return nil
}

func (m *MemoryTableStore) DeleteCollection(_ context.Context, name string) error {
	for k, d := range m.documents {
		if d.CollectionName == name {
			delete(m.documents, k)
		}
	}
	delete(m.collections, name)
	return nil
}

func (m *MemoryTableStore) RenameCollection(_ context.Context, oldName, newName string) error {
	if c, ok := m.collections[oldName]; ok {
		c.CollectionName = newName
		m.collections[newName] = c
		delete(m.collections, oldName)
	}
	for k, d := range m.documents {
		if d.CollectionName == oldName {
			d.CollectionName = newName
			delete(m.documents, k)
			m.documents[docKey(d.DocID, newName)] = d
		}
	}
	return nil
}

func (m *MemoryTableStore) GetSyncLogEntry(_ context.Context, docID, collection string, dir types.SyncDirection) (*types.SyncLogEntry, error) {
	if e, ok := m.syncLog[syncKey(docID, collection, dir)]; ok {
		cp := e
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryTableStore) ListSyncLog(_ context.Context, collection string, dir types.SyncDirection) ([]types.SyncLogEntry, error) {
	var out []types.SyncLogEntry
	for _, e := range m.syncLog {
		if e.CollectionName == collection && e.SyncDirection == dir {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocID < out[j].DocID })
	return out, nil
}

func (m *MemoryTableStore) UpsertSyncLogEntry(_ context.Context, e *types.SyncLogEntry) error {
	if e.SyncedAt.IsZero() {
		e.SyncedAt = time.Now()
	}
	m.syncLog[syncKey(e.DocID, e.CollectionName, e.SyncDirection)] = *e
	return nil
}

func (m *MemoryTableStore) DeleteSyncLogEntry(_ context.Context, docID, collection string, dir types.SyncDirection) error {
	delete(m.syncLog, syncKey(docID, collection, dir))
	return nil
}

func (m *MemoryTableStore) TableExists(_ context.Context, table string) (bool, error) {
	switch table {
	case "documents", "collections":
		return m.existing[table], nil
	default:
		return false, nil
	}
}
