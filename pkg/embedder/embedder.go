// Package embedder produces unit-norm vectors for text, with per-process
// caching and batching in front of the configured provider.
package embedder

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// Provider is the contract the core expects of an embedding backend.
// Returned vectors are unit-norm floats of a fixed dimensionality; identical
// input yields identical output within a process.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
	Close() error
}

// ConfigError is raised when a required provider credential is absent.
type ConfigError struct {
	Provider string
	Message  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("embedder %s: %s", e.Provider, e.Message)
}

// ProviderError wraps a failed provider call.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("embedder %s: %s", e.Provider, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// BatchResult is the outcome of a batched embed call.
type BatchResult struct {
	Vectors     [][]float32
	TotalTokens int
}

// Cached wraps a Provider with a process-local cache and provider-side
// batching. Cache fills are idempotent; a duplicate miss under concurrency
// is permitted.
type Cached struct {
	provider  Provider
	batchSize int

	mu    sync.Mutex
	cache map[string][]float32
}

// DefaultBatchSize is the provider call batch bound.
const DefaultBatchSize = 32

// NewCached creates a caching wrapper. Zero batchSize selects the default.
func NewCached(provider Provider, batchSize int) *Cached {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Cached{
		provider:  provider,
		batchSize: batchSize,
		cache:     make(map[string][]float32),
	}
}

// Embed returns the vector for text, consulting the cache first.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	if vec, ok := c.cache[text]; ok {
		c.mu.Unlock()
		return vec, nil
	}
	c.mu.Unlock()

	vec, err := c.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[text] = vec
	c.mu.Unlock()
	return vec, nil
}

// EmbedBatch fills from the cache first, then issues provider calls in
// chunks of at most batchSize, preserving input order.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error) {
	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	c.mu.Lock()
	for i, text := range texts {
		if vec, ok := c.cache[text]; ok {
			vectors[i] = vec
		} else {
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}
	c.mu.Unlock()

	for start := 0; start < len(missing); start += c.batchSize {
		end := start + c.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch, err := c.provider.EmbedBatch(ctx, missing[start:end])
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		for j, vec := range batch {
			idx := missingIdx[start+j]
			vectors[idx] = vec
			c.cache[texts[idx]] = vec
		}
		c.mu.Unlock()
	}

	total := 0
	for _, text := range texts {
		total += (len(text) + 3) / 4
	}
	return &BatchResult{Vectors: vectors, TotalTokens: total}, nil
}

// Dimension returns the provider's vector dimensionality.
func (c *Cached) Dimension() int { return c.provider.Dimension() }

// ModelName returns the provider's model name.
func (c *Cached) ModelName() string { return c.provider.ModelName() }

// Close releases the underlying provider.
func (c *Cached) Close() error { return c.provider.Close() }

// CacheSize returns the number of cached vectors.
func (c *Cached) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// normalize scales vec to unit norm in place and returns it. Zero vectors
// are returned unchanged.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
