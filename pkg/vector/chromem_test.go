package vector

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docfoundry/docfoundry/pkg/chunker"
	"github.com/docfoundry/docfoundry/pkg/docs"
	"github.com/docfoundry/docfoundry/pkg/embedder"
)

func testChunk(id, file, release, content string) chunker.Chunk {
	return chunker.Chunk{
		ID:      id,
		Content: content,
		Metadata: chunker.Metadata{
			Section: docs.Section{
				File:      file,
				Release:   release,
				DocType:   "NOTES",
				Heading:   "H",
				LineStart: 1,
				LineEnd:   5,
			},
			ChunkIndex:  0,
			TotalChunks: 1,
		},
		Tokens: chunker.EstimateTokens(content),
	}
}

func embedAll(t *testing.T, texts ...string) [][]float32 {
	t.Helper()
	e := embedder.NewHashEmbedder(32)
	vectors, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	return vectors
}

func TestChromemStore(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert then search round trip", func(t *testing.T) {
		store := NewChromemStore("t1")
		require.NoError(t, store.Connect(ctx))

		chunks := []chunker.Chunk{
			testChunk("a.md:1-5:0", "a.md", "R1", "payment flow details"),
			testChunk("b.md:1-5:0", "b.md", "R2", "cache eviction details"),
		}
		vectors := embedAll(t, chunks[0].Content, chunks[1].Content)
		require.NoError(t, store.Upsert(ctx, chunks, vectors))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), count)

		query := embedAll(t, "payment flow details")[0]
		hits, err := store.Search(ctx, query, 2, nil)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, "a.md:1-5:0", hits[0].Chunk.ID)
		assert.Equal(t, "a.md", hits[0].Chunk.Metadata.File)
		assert.Equal(t, "R1", hits[0].Chunk.Metadata.Release)
		assert.Equal(t, 1, hits[0].Chunk.Metadata.LineStart)
	})

	t.Run("filters restrict search", func(t *testing.T) {
		store := NewChromemStore("t2")
		chunks := []chunker.Chunk{
			testChunk("a.md:1-5:0", "a.md", "R1", "payment flow details"),
			testChunk("b.md:1-5:0", "b.md", "R2", "payment flow details two"),
		}
		vectors := embedAll(t, chunks[0].Content, chunks[1].Content)
		require.NoError(t, store.Upsert(ctx, chunks, vectors))

		query := embedAll(t, "payment flow")[0]
		hits, err := store.Search(ctx, query, 5, &Filter{Release: "R2"})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "b.md:1-5:0", hits[0].Chunk.ID)
	})

	t.Run("delete requires a filter", func(t *testing.T) {
		store := NewChromemStore("t3")
		err := store.Delete(ctx, nil)
		assert.ErrorIs(t, err, ErrFilterRequired)
		err = store.Delete(ctx, &Filter{})
		assert.ErrorIs(t, err, ErrFilterRequired)
	})

	t.Run("filtered delete removes only matching rows", func(t *testing.T) {
		store := NewChromemStore("t4")
		chunks := []chunker.Chunk{
			testChunk("a.md:1-5:0", "a.md", "R1", "alpha content"),
			testChunk("b.md:1-5:0", "b.md", "R1", "beta content"),
		}
		vectors := embedAll(t, chunks[0].Content, chunks[1].Content)
		require.NoError(t, store.Upsert(ctx, chunks, vectors))

		require.NoError(t, store.Delete(ctx, &Filter{File: "a.md"}))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), count)
	})

	t.Run("upsert rejects mismatched vector counts", func(t *testing.T) {
		store := NewChromemStore("t5")
		chunks := []chunker.Chunk{testChunk("a.md:1-5:0", "a.md", "R1", "x")}
		err := store.Upsert(ctx, chunks, nil)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "mismatch"))
	})

	t.Run("long content is truncated on upsert", func(t *testing.T) {
		store := NewChromemStore("t6")
		long := strings.Repeat("y", maxContentLength+100)
		chunks := []chunker.Chunk{testChunk("a.md:1-5:0", "a.md", "R1", long)}
		vectors := embedAll(t, long)
		require.NoError(t, store.Upsert(ctx, chunks, vectors))

		query := embedAll(t, long)[0]
		hits, err := store.Search(ctx, query, 1, nil)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Len(t, hits[0].Chunk.Content, maxContentLength)
	})
}
