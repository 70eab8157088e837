package vector

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/docfoundry/docfoundry/pkg/chunker"
	"github.com/docfoundry/docfoundry/pkg/docs"
)

// ChromemStore is an embedded in-process store backed by chromem-go. It
// serves local mode and tests where no qdrant instance is available;
// embeddings are always supplied by the caller, never computed by chromem.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string

	mu sync.Mutex
}

// NewChromemStore creates an embedded store.
func NewChromemStore(collection string) *ChromemStore {
	return &ChromemStore{
		db:   chromem.NewDB(),
		name: collection,
	}
}

func (s *ChromemStore) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collection != nil {
		return nil
	}

	// Embeddings arrive with every upsert and query; reaching this func
	// means a caller forgot one.
	noEmbed := func(_ context.Context, _ string) ([]float32, error) {
		return nil, fmt.Errorf("chromem store requires precomputed embeddings")
	}

	collection, err := s.db.GetOrCreateCollection(s.name, nil, noEmbed)
	if err != nil {
		return &StoreError{Store: "chromem", Operation: "connect", Message: "failed to create collection", Err: err}
	}
	s.collection = collection
	return nil
}

func (s *ChromemStore) Upsert(ctx context.Context, chunks []chunker.Chunk, vectors [][]float32) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	if len(chunks) != len(vectors) {
		return &StoreError{
			Store: "chromem", Operation: "upsert",
			Message: fmt.Sprintf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors)),
		}
	}

	documents := make([]chromem.Document, 0, len(chunks))
	for i, chunk := range chunks {
		content := chunk.Content
		if len(content) > maxContentLength {
			content = content[:maxContentLength]
		}
		documents = append(documents, chromem.Document{
			ID:        chunk.ID,
			Content:   content,
			Embedding: vectors[i],
			Metadata: map[string]string{
				"file":       chunk.Metadata.File,
				"release":    chunk.Metadata.Release,
				"docType":    chunk.Metadata.DocType,
				"heading":    chunk.Metadata.Heading,
				"lineStart":  strconv.Itoa(chunk.Metadata.LineStart),
				"lineEnd":    strconv.Itoa(chunk.Metadata.LineEnd),
				"chunkIndex": strconv.Itoa(chunk.Metadata.ChunkIndex),
				"tokens":     strconv.Itoa(chunk.Tokens),
			},
		})
	}

	if err := s.collection.AddDocuments(ctx, documents, 1); err != nil {
		return &StoreError{Store: "chromem", Operation: "upsert", Message: "failed to add documents", Err: err}
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Hit, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}

	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, topK, chromemWhere(filter), nil)
	if err != nil {
		return nil, &StoreError{Store: "chromem", Operation: "search", Message: "query failed", Err: err}
	}

	hits := make([]Hit, 0, len(results))
	for _, result := range results {
		hits = append(hits, Hit{
			Chunk: chunkFromChromem(result),
			Score: result.Similarity,
		})
	}
	return hits, nil
}

func (s *ChromemStore) Delete(ctx context.Context, filter *Filter) error {
	if filter.Empty() {
		return ErrFilterRequired
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	if err := s.collection.Delete(ctx, chromemWhere(filter), nil); err != nil {
		return &StoreError{Store: "chromem", Operation: "delete", Message: "delete failed", Err: err}
	}
	return nil
}

func (s *ChromemStore) Count(ctx context.Context) (uint64, error) {
	if err := s.Connect(ctx); err != nil {
		return 0, err
	}
	return uint64(s.collection.Count()), nil
}

func (s *ChromemStore) Close() error { return nil }

func chromemWhere(filter *Filter) map[string]string {
	if filter.Empty() {
		return nil
	}
	where := make(map[string]string)
	if filter.Release != "" {
		where["release"] = filter.Release
	}
	if filter.DocType != "" {
		where["docType"] = filter.DocType
	}
	if filter.Service != "" {
		where["service"] = filter.Service
	}
	if filter.File != "" {
		where["file"] = filter.File
	}
	return where
}

func chunkFromChromem(result chromem.Result) chunker.Chunk {
	num := func(key string) int {
		n, _ := strconv.Atoi(result.Metadata[key])
		return n
	}
	return chunker.Chunk{
		ID:      result.ID,
		Content: result.Content,
		Metadata: chunker.Metadata{
			Section: docs.Section{
				File:      result.Metadata["file"],
				Release:   result.Metadata["release"],
				DocType:   result.Metadata["docType"],
				Heading:   result.Metadata["heading"],
				LineStart: num("lineStart"),
				LineEnd:   num("lineEnd"),
			},
			ChunkIndex:  num("chunkIndex"),
			TotalChunks: 0,
		},
		Tokens: num("tokens"),
	}
}
