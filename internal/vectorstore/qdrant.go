package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"dvsync/internal/config"
	"dvsync/internal/logging"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// qdrantVectorSize is a fixed placeholder dimensionality. This system
// never computes embeddings (a non-goal); every point is stored with a
// zero vector so Qdrant's CRUD and payload filtering still work, while
// similarity search (Query) is left to whatever the backend returns for
// a zero-vector probe.
const qdrantVectorSize = 8

// qdrantNamespace is a fixed UUID namespace used to derive a stable
// Qdrant point UUID from a chunk's own string id, since chunk ids
// ("{doc_id}_chunk_{i}") are not themselves valid UUIDs.
var qdrantNamespace = uuid.MustParse("6f6d5d9a-6f7a-4c1b-9e2a-6a6b6f6a6f6a")

// QdrantStore implements Store against a Qdrant gRPC endpoint. Every
// collection in the abstract Store interface maps to a Qdrant
// collection of the same name.
type QdrantStore struct {
	client *qdrant.Client
	logger *logging.EnhancedLogger
}

// NewQdrantStore builds a Qdrant-backed Store from configuration.
// Endpoint is a "host:port" pair.
func NewQdrantStore(cfg *config.VectorStoreConfig) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant endpoint %q: %w", cfg.Endpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant port %q: %w", portStr, err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   host,
		Port:                   port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 cfg.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &QdrantStore{
		client: client,
		logger: logging.GetComponentLogger("vectorstore.qdrant"),
	}, nil
}

func (s *QdrantStore) ListCollections(ctx context.Context, offset, limit int) ([]CollectionInfo, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	if offset > len(names) {
		offset = len(names)
	}
	names = names[offset:]
	if limit > 0 && limit < len(names) {
		names = names[:limit]
	}

	out := make([]CollectionInfo, len(names))
	for i, name := range names {
		out[i] = CollectionInfo{Name: name}
	}
	return out, nil
}

func (s *QdrantStore) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(qdrantVectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %q: %w", name, err)
	}
	s.logger.Info("created qdrant collection", "collection", name)
	return nil
}

func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) GetCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("get collection %q: %w", name, err)
	}
	for _, n := range names {
		if n == name {
			return &CollectionInfo{Name: name}, nil
		}
	}
	return nil, nil
}

func (s *QdrantStore) CollectionCount(ctx context.Context, name string) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: name})
	if err != nil {
		return 0, fmt.Errorf("count collection %q: %w", name, err)
	}
	return int(count), nil
}

func (s *QdrantStore) Add(ctx context.Context, collection string, contents, ids []string, metadatas []map[string]interface{}, allowDuplicateIDs, markAsLocalChange bool) error {
	if !allowDuplicateIDs {
		existing, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: collection,
			Ids:            stringIDsToPointIDs(ids),
		})
		if err != nil {
			return fmt.Errorf("add to collection %q: check existing ids: %w", collection, err)
		}
		if len(existing) > 0 {
			return fmt.Errorf("add to collection %q: duplicate ids", collection)
		}
	}

	points := make([]*qdrant.PointStruct, len(ids))
	for i, id := range ids {
		points[i] = contentToPoint(id, contents[i], stampOne(metadatas, i, markAsLocalChange))
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("add to collection %q: %w", collection, err)
	}
	return nil
}

func (s *QdrantStore) Get(ctx context.Context, collection string, ids []string, where map[string]interface{}, limit int) (*GetResult, error) {
	result := &GetResult{}

	if len(ids) > 0 {
		points, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: collection,
			Ids:            stringIDsToPointIDs(ids),
			WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("get from collection %q: %w", collection, err)
		}
		for _, p := range points {
			id, content, meta := payloadToContent(p.GetPayload())
			if !matchesWhere(meta, where) {
				continue
			}
			appendResult(result, id, content, meta)
			if limit > 0 && len(result.IDs) >= limit {
				break
			}
		}
		return result, nil
	}

	scrollLimit := uint32(10000)
	if limit > 0 {
		scrollLimit = uint32(limit)
	}
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         buildQdrantFilter(where),
		Limit:          qdrant.PtrOf(scrollLimit),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("scroll collection %q: %w", collection, err)
	}
	for _, p := range points {
		id, content, meta := payloadToContent(p.GetPayload())
		appendResult(result, id, content, meta)
		if limit > 0 && len(result.IDs) >= limit {
			break
		}
	}
	return result, nil
}

func (s *QdrantStore) Update(ctx context.Context, collection string, ids []string, documents []string, metadatas []map[string]interface{}, markAsLocalChange bool) error {
	existing, err := s.Get(ctx, collection, ids, nil, 0)
	if err != nil {
		return fmt.Errorf("update collection %q: %w", collection, err)
	}
	existingContent := make(map[string]string, len(existing.IDs))
	existingMeta := make(map[string]map[string]interface{}, len(existing.IDs))
	for i, id := range existing.IDs {
		existingContent[id] = existing.Documents[i]
		existingMeta[id] = existing.Metadatas[i]
	}

	points := make([]*qdrant.PointStruct, len(ids))
	for i, id := range ids {
		content := existingContent[id]
		if documents != nil {
			content = documents[i]
		}
		meta := existingMeta[id]
		if metadatas != nil {
			meta = metadatas[i]
		}
		points[i] = contentToPoint(id, content, stampMeta(meta, markAsLocalChange))
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: collection, Points: points})
	if err != nil {
		return fmt.Errorf("update collection %q: %w", collection, err)
	}
	return nil
}

func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: stringIDsToPointIDs(ids)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete from collection %q: %w", collection, err)
	}
	return nil
}

// Query probes with a zero vector and the given filters; since this
// system performs no embedding computation, the returned order carries
// no semantic ranking beyond whatever Qdrant assigns a uniform vector.
func (s *QdrantStore) Query(ctx context.Context, collection string, queryTexts []string, nResults int, where, whereDocument map[string]interface{}) (*GetResult, error) {
	limit := uint64(nResults)
	if limit == 0 {
		limit = 10
	}
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(make([]float32, qdrantVectorSize)...),
		Filter:         buildQdrantFilter(where),
		// probe vector is all-zero: this system never computes embeddings
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("query collection %q: %w", collection, err)
	}

	result := &GetResult{}
	for _, p := range points {
		id, content, meta := payloadToContent(p.GetPayload())
		appendResult(result, id, content, meta)
		result.Distances = append(result.Distances, float64(p.GetScore()))
	}
	return result, nil
}

func appendResult(result *GetResult, id, content string, meta map[string]interface{}) {
	result.IDs = append(result.IDs, id)
	result.Documents = append(result.Documents, content)
	result.Metadatas = append(result.Metadatas, meta)
}

func stampOne(metadatas []map[string]interface{}, i int, markAsLocalChange bool) map[string]interface{} {
	meta := copyMetadata(metadatas, i)
	meta["is_local_change"] = markAsLocalChange
	return meta
}

func stampMeta(meta map[string]interface{}, markAsLocalChange bool) map[string]interface{} {
	out := make(map[string]interface{}, len(meta)+1)
	for k, v := range meta {
		if k == "_content" {
			continue
		}
		out[k] = v
	}
	out["is_local_change"] = markAsLocalChange
	return out
}

// contentToPoint builds a Qdrant point from a chunk id, its content,
// and its metadata, using a zero placeholder vector.
func contentToPoint(id, content string, metadata map[string]interface{}) *qdrant.PointStruct {
	payload := map[string]*qdrant.Value{
		"chunk_id": stringToValue(id),
		"_content": stringToValue(content),
	}
	for k, v := range metadata {
		payload[k] = toQdrantValue(v)
	}

	return &qdrant.PointStruct{
		Id: stringToPointID(id),
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{Data: make([]float32, qdrantVectorSize)},
			},
		},
		Payload: payload,
	}
}

// payloadToContent extracts the original chunk id, content, and
// metadata (excluding the internal chunk_id/_content keys) from a
// point's payload.
func payloadToContent(payload map[string]*qdrant.Value) (id, content string, metadata map[string]interface{}) {
	metadata = make(map[string]interface{})
	for k, v := range payload {
		switch k {
		case "chunk_id":
			id = v.GetStringValue()
		case "_content":
			content = v.GetStringValue()
		default:
			metadata[k] = fromQdrantValue(v)
		}
	}
	return id, content, metadata
}

func stringToValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func toQdrantValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case string:
		return stringToValue(val)
	default:
		return stringToValue(fmt.Sprintf("%v", val))
	}
}

func fromQdrantValue(v *qdrant.Value) interface{} {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	default:
		return nil
	}
}

// stringToPointID derives a deterministic point UUID from a chunk's
// string id (chunk ids like "{doc_id}_chunk_{i}" are not valid UUIDs).
func stringToPointID(s string) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: uuid.NewSHA1(qdrantNamespace, []byte(s)).String()}}
}

func stringIDsToPointIDs(ids []string) []*qdrant.PointId {
	out := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		out[i] = stringToPointID(id)
	}
	return out
}

func buildQdrantFilter(where map[string]interface{}) *qdrant.Filter {
	if len(where) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(where))
	for k, v := range where {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   k,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: toMatchKeyword(v)}},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func toMatchKeyword(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
