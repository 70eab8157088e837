package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"regexp"
	"strings"
)

// HashEmbedder is a deterministic local fallback: token hashes are folded
// into a fixed-dimension vector and normalized. It preserves the provider
// contract (unit norm, stable output) without any remote credential, and is
// strictly a fallback: retrieval quality is lexical overlap at best.
type HashEmbedder struct {
	dimension int
}

var tokenSplitRe = regexp.MustCompile(`[^\pL\pN]+`)

// NewHashEmbedder creates a hashing embedder of the given dimension
// (default 768).
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 768
	}
	return &HashEmbedder{dimension: dimension}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)

	for _, token := range tokenSplitRe.Split(strings.ToLower(text), -1) {
		if token == "" {
			continue
		}
		sum := sha256.Sum256([]byte(token))
		// Four buckets per token keeps collisions from zeroing out
		// short inputs.
		for i := 0; i < 4; i++ {
			idx := binary.BigEndian.Uint32(sum[i*8:]) % uint32(e.dimension)
			sign := float32(1)
			if sum[i*8+4]&1 == 1 {
				sign = -1
			}
			vec[idx] += sign
		}
	}

	return normalize(vec), nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *HashEmbedder) Dimension() int    { return e.dimension }
func (e *HashEmbedder) ModelName() string { return "hash-v1" }
func (e *HashEmbedder) Close() error      { return nil }
