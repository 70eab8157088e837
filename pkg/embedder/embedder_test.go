package embedder

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider records every batch passed to it.
type countingProvider struct {
	mu      sync.Mutex
	batches [][]string
	inner   *HashEmbedder
}

func newCountingProvider() *countingProvider {
	return &countingProvider{inner: NewHashEmbedder(64)}
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.inner.Embed(ctx, text)
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.batches = append(p.batches, append([]string(nil), texts...))
	p.mu.Unlock()
	return p.inner.EmbedBatch(ctx, texts)
}

func (p *countingProvider) Dimension() int    { return p.inner.Dimension() }
func (p *countingProvider) ModelName() string { return p.inner.ModelName() }
func (p *countingProvider) Close() error      { return nil }

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("is deterministic", func(t *testing.T) {
		e := NewHashEmbedder(128)
		a, err := e.Embed(ctx, "payment flow architecture")
		require.NoError(t, err)
		b, err := e.Embed(ctx, "payment flow architecture")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("returns unit-norm vectors", func(t *testing.T) {
		e := NewHashEmbedder(128)
		vec, err := e.Embed(ctx, "some text worth embedding")
		require.NoError(t, err)
		require.Len(t, vec, 128)
		assert.InDelta(t, 1.0, vectorNorm(vec), 1e-5)
	})

	t.Run("empty input yields the zero vector", func(t *testing.T) {
		e := NewHashEmbedder(32)
		vec, err := e.Embed(ctx, "")
		require.NoError(t, err)
		assert.InDelta(t, 0.0, vectorNorm(vec), 1e-9)
	})

	t.Run("different texts differ", func(t *testing.T) {
		e := NewHashEmbedder(128)
		a, _ := e.Embed(ctx, "alpha")
		b, _ := e.Embed(ctx, "omega")
		assert.NotEqual(t, a, b)
	})
}

func TestCached(t *testing.T) {
	ctx := context.Background()

	t.Run("repeat embeds hit the cache", func(t *testing.T) {
		provider := newCountingProvider()
		cached := NewCached(provider, 4)

		a, err := cached.Embed(ctx, "hello")
		require.NoError(t, err)
		b, err := cached.Embed(ctx, "hello")
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.Equal(t, 1, cached.CacheSize())
	})

	t.Run("batches respect the batch size and preserve order", func(t *testing.T) {
		provider := newCountingProvider()
		cached := NewCached(provider, 3)

		texts := make([]string, 8)
		for i := range texts {
			texts[i] = fmt.Sprintf("text number %d", i)
		}

		result, err := cached.EmbedBatch(ctx, texts)
		require.NoError(t, err)
		require.Len(t, result.Vectors, 8)

		require.Len(t, provider.batches, 3)
		assert.Len(t, provider.batches[0], 3)
		assert.Len(t, provider.batches[1], 3)
		assert.Len(t, provider.batches[2], 2)

		for i, text := range texts {
			want, _ := provider.inner.Embed(ctx, text)
			assert.Equal(t, want, result.Vectors[i], "vector %d out of order", i)
		}
	})

	t.Run("cached entries are not re-sent to the provider", func(t *testing.T) {
		provider := newCountingProvider()
		cached := NewCached(provider, 10)

		_, err := cached.EmbedBatch(ctx, []string{"a", "b"})
		require.NoError(t, err)
		_, err = cached.EmbedBatch(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)

		require.Len(t, provider.batches, 2)
		assert.Equal(t, []string{"c"}, provider.batches[1])
	})

	t.Run("token totals estimate four characters per token", func(t *testing.T) {
		provider := newCountingProvider()
		cached := NewCached(provider, 10)

		result, err := cached.EmbedBatch(ctx, []string{"abcd", "abcde"})
		require.NoError(t, err)
		assert.Equal(t, 3, result.TotalTokens)
	})
}
