package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dvsync/internal/config"
	"dvsync/internal/logging"

	"github.com/go-resty/resty/v2"
)

// ChromaStore implements Store against a Chroma HTTP API endpoint.
type ChromaStore struct {
	client *resty.Client
	logger *logging.EnhancedLogger
}

// chromaCollection mirrors the collection shape returned by
// GET /api/v1/collections.
type chromaCollection struct {
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

// chromaGetResponse mirrors the response shape of add/get/query calls.
type chromaGetResponse struct {
	IDs       []string                 `json:"ids"`
	Documents []string                 `json:"documents"`
	Metadatas []map[string]interface{} `json:"metadatas"`
	Distances []float64                `json:"distances,omitempty"`
}

// NewChromaStore builds a Chroma-backed Store from configuration.
func NewChromaStore(cfg *config.VectorStoreConfig) *ChromaStore {
	client := resty.New()
	client.SetBaseURL(cfg.Endpoint)
	client.SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)
	client.SetRetryCount(cfg.RetryAttempts)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(5 * time.Second)
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &ChromaStore{
		client: client,
		logger: logging.GetComponentLogger("vectorstore.chroma"),
	}
}

func (s *ChromaStore) ListCollections(ctx context.Context, offset, limit int) ([]CollectionInfo, error) {
	req := s.client.R().SetContext(ctx)
	if offset > 0 {
		req.SetQueryParam("offset", fmt.Sprintf("%d", offset))
	}
	if limit > 0 {
		req.SetQueryParam("limit", fmt.Sprintf("%d", limit))
	}

	resp, err := req.Get("/api/v1/collections")
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("list collections: status %d: %s", resp.StatusCode(), resp.Body())
	}

	var collections []chromaCollection
	if err := json.Unmarshal(resp.Body(), &collections); err != nil {
		return nil, fmt.Errorf("list collections: parse response: %w", err)
	}

	out := make([]CollectionInfo, len(collections))
	for i, c := range collections {
		out[i] = CollectionInfo{Name: c.Name, Metadata: c.Metadata}
	}
	return out, nil
}

func (s *ChromaStore) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error {
	body := map[string]interface{}{
		"name":     name,
		"metadata": metadata,
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/api/v1/collections")
	if err != nil {
		return fmt.Errorf("create collection %q: %w", name, err)
	}
	if resp.StatusCode() != 200 && resp.StatusCode() != 201 {
		return fmt.Errorf("create collection %q: status %d: %s", name, resp.StatusCode(), resp.Body())
	}
	return nil
}

func (s *ChromaStore) DeleteCollection(ctx context.Context, name string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		Delete("/api/v1/collections/" + name)
	if err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("delete collection %q: status %d: %s", name, resp.StatusCode(), resp.Body())
	}
	return nil
}

func (s *ChromaStore) GetCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		Get("/api/v1/collections/" + name)
	if err != nil {
		return nil, fmt.Errorf("get collection %q: %w", name, err)
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("get collection %q: status %d: %s", name, resp.StatusCode(), resp.Body())
	}

	var c chromaCollection
	if err := json.Unmarshal(resp.Body(), &c); err != nil {
		return nil, fmt.Errorf("get collection %q: parse response: %w", name, err)
	}
	return &CollectionInfo{Name: c.Name, Metadata: c.Metadata}, nil
}

func (s *ChromaStore) CollectionCount(ctx context.Context, name string) (int, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		Get("/api/v1/collections/" + name + "/count")
	if err != nil {
		return 0, fmt.Errorf("count collection %q: %w", name, err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("count collection %q: status %d: %s", name, resp.StatusCode(), resp.Body())
	}

	var count int
	if err := json.Unmarshal(resp.Body(), &count); err != nil {
		return 0, fmt.Errorf("count collection %q: parse response: %w", name, err)
	}
	return count, nil
}

func (s *ChromaStore) Add(ctx context.Context, collection string, contents, ids []string, metadatas []map[string]interface{}, allowDuplicateIDs, markAsLocalChange bool) error {
	stamped := stampLocalChange(metadatas, markAsLocalChange)
	body := map[string]interface{}{
		"ids":       ids,
		"documents": contents,
		"metadatas": stamped,
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(fmt.Sprintf("/api/v1/collections/%s/add", collection))
	if err != nil {
		return fmt.Errorf("add to collection %q: %w", collection, err)
	}
	if resp.StatusCode() == 409 && !allowDuplicateIDs {
		return fmt.Errorf("add to collection %q: duplicate ids", collection)
	}
	if resp.StatusCode() != 200 && resp.StatusCode() != 201 {
		return fmt.Errorf("add to collection %q: status %d: %s", collection, resp.StatusCode(), resp.Body())
	}
	return nil
}

func (s *ChromaStore) Get(ctx context.Context, collection string, ids []string, where map[string]interface{}, limit int) (*GetResult, error) {
	body := map[string]interface{}{}
	if len(ids) > 0 {
		body["ids"] = ids
	}
	if where != nil {
		body["where"] = where
	}
	if limit > 0 {
		body["limit"] = limit
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(fmt.Sprintf("/api/v1/collections/%s/get", collection))
	if err != nil {
		return nil, fmt.Errorf("get from collection %q: %w", collection, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("get from collection %q: status %d: %s", collection, resp.StatusCode(), resp.Body())
	}

	var out chromaGetResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("get from collection %q: parse response: %w", collection, err)
	}
	return &GetResult{IDs: out.IDs, Documents: out.Documents, Metadatas: out.Metadatas}, nil
}

func (s *ChromaStore) Update(ctx context.Context, collection string, ids []string, documents []string, metadatas []map[string]interface{}, markAsLocalChange bool) error {
	body := map[string]interface{}{"ids": ids}
	if documents != nil {
		body["documents"] = documents
	}
	if metadatas != nil {
		body["metadatas"] = stampLocalChange(metadatas, markAsLocalChange)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(fmt.Sprintf("/api/v1/collections/%s/update", collection))
	if err != nil {
		return fmt.Errorf("update collection %q: %w", collection, err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("update collection %q: status %d: %s", collection, resp.StatusCode(), resp.Body())
	}
	return nil
}

func (s *ChromaStore) Delete(ctx context.Context, collection string, ids []string) error {
	body := map[string]interface{}{"ids": ids}
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(fmt.Sprintf("/api/v1/collections/%s/delete", collection))
	if err != nil {
		return fmt.Errorf("delete from collection %q: %w", collection, err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("delete from collection %q: status %d: %s", collection, resp.StatusCode(), resp.Body())
	}
	return nil
}

func (s *ChromaStore) Query(ctx context.Context, collection string, queryTexts []string, nResults int, where, whereDocument map[string]interface{}) (*GetResult, error) {
	body := map[string]interface{}{
		"query_texts": queryTexts,
		"n_results":   nResults,
	}
	if where != nil {
		body["where"] = where
	}
	if whereDocument != nil {
		body["where_document"] = whereDocument
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(fmt.Sprintf("/api/v1/collections/%s/query", collection))
	if err != nil {
		return nil, fmt.Errorf("query collection %q: %w", collection, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("query collection %q: status %d: %s", collection, resp.StatusCode(), resp.Body())
	}

	var out chromaGetResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("query collection %q: parse response: %w", collection, err)
	}
	return &GetResult{IDs: out.IDs, Documents: out.Documents, Metadatas: out.Metadatas, Distances: out.Distances}, nil
}

// stampLocalChange copies metadatas and sets is_local_change on each
// entry, never mutating the caller's slice.
func stampLocalChange(metadatas []map[string]interface{}, markAsLocalChange bool) []map[string]interface{} {
	out := make([]map[string]interface{}, len(metadatas))
	for i, m := range metadatas {
		copied := make(map[string]interface{}, len(m)+1)
		for k, v := range m {
			copied[k] = v
		}
		copied["is_local_change"] = markAsLocalChange
		out[i] = copied
	}
	return out
}
