package vector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/docfoundry/docfoundry/pkg/chunker"
	"github.com/docfoundry/docfoundry/pkg/config"
	"github.com/docfoundry/docfoundry/pkg/docs"
)

// chunkIDNamespace derives stable qdrant point UUIDs from chunk ids.
var chunkIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docfoundry/chunk"))

// QdrantStore persists chunks in a qdrant collection with cosine metric and
// an HNSW index. Scalar payload fields are keyword-indexed for equality
// filtering.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStore creates the adapter; the connection is established lazily
// by Connect.
func NewQdrantStore(cfg config.VectorStoreConfig, dimension int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.EnableTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimension:  dimension,
	}, nil
}

// Connect creates the collection, HNSW index, and payload indexes when the
// collection is absent.
func (s *QdrantStore) Connect(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return &StoreError{Store: "qdrant", Operation: "connect", Message: "failed to check collection", Err: err}
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
		HnswConfig: &qdrant.HnswConfigDiff{
			M:           qdrant.PtrOf(uint64(16)),
			EfConstruct: qdrant.PtrOf(uint64(128)),
		},
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return &StoreError{Store: "qdrant", Operation: "connect", Message: "failed to create collection", Err: err}
	}

	for _, field := range []string{"id", "file", "release", "docType", "service", "heading"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			slog.Warn("Failed to create payload index", "field", field, "error", err)
		}
	}

	slog.Info("Created qdrant collection", "collection", s.collection, "dimension", s.dimension)
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, chunks []chunker.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return &StoreError{
			Store: "qdrant", Operation: "upsert",
			Message: fmt.Sprintf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors)),
		}
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, chunk := range chunks {
		content := chunk.Content
		if len(content) > maxContentLength {
			content = content[:maxContentLength]
		}

		payload, err := buildPayload(chunk, content)
		if err != nil {
			return &StoreError{Store: "qdrant", Operation: "upsert", Message: "failed to build payload", Err: err}
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(chunk.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return &StoreError{Store: "qdrant", Operation: "upsert", Message: "failed to upsert points", Err: err}
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Hit, error) {
	ef := uint64(2 * topK)
	if ef < 64 {
		ef = 64
	}

	searchRequest := &qdrant.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
		Params:         &qdrant.SearchParams{HnswEf: &ef},
	}
	if !filter.Empty() {
		searchRequest.Filter = buildQdrantFilter(filter)
	}

	result, err := s.client.GetPointsClient().Search(ctx, searchRequest)
	if err != nil {
		return nil, &StoreError{Store: "qdrant", Operation: "search", Message: "failed to search points", Err: err}
	}

	hits := make([]Hit, 0, len(result.Result))
	for _, point := range result.Result {
		hits = append(hits, Hit{
			Chunk: chunkFromPayload(point.Payload),
			Score: point.Score,
		})
	}
	return hits, nil
}

func (s *QdrantStore) Delete(ctx context.Context, filter *Filter) error {
	if filter.Empty() {
		return ErrFilterRequired
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: buildQdrantFilter(filter),
			},
		},
	})
	if err != nil {
		return &StoreError{Store: "qdrant", Operation: "delete", Message: "failed to delete points", Err: err}
	}
	return nil
}

func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
	})
	if err != nil {
		return 0, &StoreError{Store: "qdrant", Operation: "count", Message: "failed to count points", Err: err}
	}
	return count, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// pointID maps the chunk id schema onto qdrant's UUID requirement. The
// original id is kept in the payload.
func pointID(chunkID string) string {
	return uuid.NewSHA1(chunkIDNamespace, []byte(chunkID)).String()
}

func buildPayload(chunk chunker.Chunk, content string) (map[string]*qdrant.Value, error) {
	fields := map[string]any{
		"id":         chunk.ID,
		"content":    content,
		"file":       chunk.Metadata.File,
		"release":    chunk.Metadata.Release,
		"docType":    chunk.Metadata.DocType,
		"service":    "",
		"heading":    chunk.Metadata.Heading,
		"lineStart":  int64(chunk.Metadata.LineStart),
		"lineEnd":    int64(chunk.Metadata.LineEnd),
		"chunkIndex": int64(chunk.Metadata.ChunkIndex),
		"tokens":     int64(chunk.Tokens),
	}

	payload := make(map[string]*qdrant.Value, len(fields))
	for key, value := range fields {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		payload[key] = val
	}
	return payload, nil
}

func buildQdrantFilter(filter *Filter) *qdrant.Filter {
	predicates := map[string]string{
		"release": filter.Release,
		"docType": filter.DocType,
		"service": filter.Service,
		"file":    filter.File,
	}

	var conditions []*qdrant.Condition
	for key, value := range predicates {
		if value == "" {
			continue
		}
		conditions = append(conditions, qdrant.NewMatch(key, value))
	}
	return &qdrant.Filter{Must: conditions}
}

func chunkFromPayload(payload map[string]*qdrant.Value) chunker.Chunk {
	str := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	num := func(key string) int {
		if v, ok := payload[key]; ok {
			return int(v.GetIntegerValue())
		}
		return 0
	}

	return chunker.Chunk{
		ID:      str("id"),
		Content: str("content"),
		Metadata: chunker.Metadata{
			Section: docs.Section{
				File:      str("file"),
				Release:   str("release"),
				DocType:   str("docType"),
				Heading:   str("heading"),
				LineStart: num("lineStart"),
				LineEnd:   num("lineEnd"),
			},
			ChunkIndex:  num("chunkIndex"),
			TotalChunks: 0,
		},
		Tokens: num("tokens"),
	}
}
