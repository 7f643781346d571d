package vectorstore

import (
	"context"
	"fmt"
	"sort"
)

// MockStore is an in-memory Store used by tests that exercise sync
// pipelines without a real Chroma or Qdrant process.
type MockStore struct {
	collections map[string]*CollectionInfo
	docs        map[string]map[string]mockDoc // collection -> id -> doc
}

type mockDoc struct {
	content  string
	metadata map[string]interface{}
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		collections: make(map[string]*CollectionInfo),
		docs:        make(map[string]map[string]mockDoc),
	}
}

func (m *MockStore) ListCollections(ctx context.Context, offset, limit int) ([]CollectionInfo, error) {
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)

	if offset > len(names) {
		offset = len(names)
	}
	names = names[offset:]
	if limit > 0 && limit < len(names) {
		names = names[:limit]
	}

	out := make([]CollectionInfo, len(names))
	for i, name := range names {
		out[i] = *m.collections[name]
	}
	return out, nil
}

func (m *MockStore) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error {
	if _, exists := m.collections[name]; exists {
		return fmt.Errorf("collection %q already exists", name)
	}
	m.collections[name] = &CollectionInfo{Name: name, Metadata: metadata}
	m.docs[name] = make(map[string]mockDoc)
	return nil
}

func (m *MockStore) DeleteCollection(ctx context.Context, name string) error {
	delete(m.collections, name)
	delete(m.docs, name)
	return nil
}

func (m *MockStore) GetCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	c, ok := m.collections[name]
	if !ok {
		return nil, nil
	}
	return c, nil
}

func (m *MockStore) CollectionCount(ctx context.Context, name string) (int, error) {
	return len(m.docs[name]), nil
}

func (m *MockStore) Add(ctx context.Context, collection string, contents, ids []string, metadatas []map[string]interface{}, allowDuplicateIDs, markAsLocalChange bool) error {
	docs, ok := m.docs[collection]
	if !ok {
		return fmt.Errorf("collection %q does not exist", collection)
	}
	for i, id := range ids {
		if _, exists := docs[id]; exists && !allowDuplicateIDs {
			return fmt.Errorf("id %q already exists in collection %q", id, collection)
		}
		meta := copyMetadata(metadatas, i)
		meta["is_local_change"] = markAsLocalChange
		docs[id] = mockDoc{content: contents[i], metadata: meta}
	}
	return nil
}

func (m *MockStore) Get(ctx context.Context, collection string, ids []string, where map[string]interface{}, limit int) (*GetResult, error) {
	docs := m.docs[collection]
	result := &GetResult{}

	keys := ids
	if keys == nil {
		for id := range docs {
			keys = append(keys, id)
		}
		sort.Strings(keys)
	}

	for _, id := range keys {
		doc, ok := docs[id]
		if !ok {
			continue
		}
		if !matchesWhere(doc.metadata, where) {
			continue
		}
		result.IDs = append(result.IDs, id)
		result.Documents = append(result.Documents, doc.content)
		result.Metadatas = append(result.Metadatas, doc.metadata)
		if limit > 0 && len(result.IDs) >= limit {
			break
		}
	}
	return result, nil
}

func (m *MockStore) Update(ctx context.Context, collection string, ids []string, documents []string, metadatas []map[string]interface{}, markAsLocalChange bool) error {
	docs, ok := m.docs[collection]
	if !ok {
		return fmt.Errorf("collection %q does not exist", collection)
	}
	for i, id := range ids {
		doc, exists := docs[id]
		if !exists {
			return fmt.Errorf("id %q does not exist in collection %q", id, collection)
		}
		if documents != nil {
			doc.content = documents[i]
		}
		if metadatas != nil {
			doc.metadata = copyMetadata(metadatas, i)
		}
		doc.metadata["is_local_change"] = markAsLocalChange
		docs[id] = doc
	}
	return nil
}

func (m *MockStore) Delete(ctx context.Context, collection string, ids []string) error {
	docs, ok := m.docs[collection]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(docs, id)
	}
	return nil
}

func (m *MockStore) Query(ctx context.Context, collection string, queryTexts []string, nResults int, where, whereDocument map[string]interface{}) (*GetResult, error) {
	return m.Get(ctx, collection, nil, where, nResults)
}

func copyMetadata(metadatas []map[string]interface{}, i int) map[string]interface{} {
	out := make(map[string]interface{})
	if i < len(metadatas) {
		for k, v := range metadatas[i] {
			out[k] = v
		}
	}
	return out
}

func matchesWhere(metadata map[string]interface{}, where map[string]interface{}) bool {
	for k, v := range where {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
