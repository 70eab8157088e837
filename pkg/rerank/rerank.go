// Package rerank re-orders retrieval candidates by cross-relevance. A remote
// cross-encoder provider is optional; a lexical heuristic serves as the
// fallback when the provider is unavailable or fails, and disabling the
// stage passes candidates through untouched.
package rerank

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/docfoundry/docfoundry/pkg/vector"
)

// Scored pairs a retrieval hit with its rerank score.
type Scored struct {
	Hit         vector.Hit `json:"hit"`
	RerankScore float64    `json:"rerankScore"`
}

// Reranker re-orders candidates for a query.
type Reranker interface {
	Rerank(ctx context.Context, query string, hits []vector.Hit) []Scored
}

// DefaultTopK bounds the reranked result count.
const DefaultTopK = 6

// Disabled passes hits through unsorted with their own score as the rerank
// score.
type Disabled struct{}

func (Disabled) Rerank(_ context.Context, _ string, hits []vector.Hit) []Scored {
	return passthrough(hits)
}

func passthrough(hits []vector.Hit) []Scored {
	scored := make([]Scored, 0, len(hits))
	for _, hit := range hits {
		scored = append(scored, Scored{Hit: hit, RerankScore: float64(hit.Score)})
	}
	return scored
}

// Heuristic scores candidates by phrase and term overlap, discounted by
// content length. Also used as the fallback when a provider errors.
type Heuristic struct {
	TopK int
}

func (h Heuristic) Rerank(_ context.Context, query string, hits []vector.Hit) []Scored {
	if len(hits) == 0 {
		return nil
	}
	topK := h.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryLower := strings.ToLower(query)
	terms := strings.Fields(queryLower)

	scored := make([]Scored, 0, len(hits))
	for _, hit := range hits {
		contentLower := strings.ToLower(hit.Chunk.Content)

		base := 0.0
		if strings.Contains(contentLower, queryLower) {
			base += 10
		}
		for _, term := range terms {
			if strings.Contains(contentLower, term) {
				base++
			}
		}

		divisor := math.Log(float64(len(hit.Chunk.Content))+1) / 10
		score := 0.0
		if divisor > 0 {
			score = base / divisor
		}
		scored = append(scored, Scored{Hit: hit, RerankScore: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RerankScore > scored[j].RerankScore
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// Provider wraps a remote cross-encoder; on provider error it logs and
// falls back to the heuristic.
type Provider struct {
	client *CohereClient
	topK   int
}

// NewProvider creates a provider-backed reranker.
func NewProvider(client *CohereClient, topK int) *Provider {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Provider{client: client, topK: topK}
}

func (p *Provider) Rerank(ctx context.Context, query string, hits []vector.Hit) []Scored {
	if len(hits) == 0 {
		return nil
	}

	documents := make([]string, 0, len(hits))
	for _, hit := range hits {
		documents = append(documents, hit.Chunk.Content)
	}

	ranked, err := p.client.Rerank(ctx, query, documents, p.topK)
	if err != nil {
		slog.Error("Reranker provider failed, using heuristic", "error", err)
		return Heuristic{TopK: p.topK}.Rerank(ctx, query, hits)
	}

	scored := make([]Scored, 0, p.topK)
	seen := make(map[int]bool, len(ranked))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(hits) || seen[r.Index] {
			continue
		}
		seen[r.Index] = true
		scored = append(scored, Scored{Hit: hits[r.Index], RerankScore: r.RelevanceScore})
	}

	// Backfill from the remaining inputs in original order when the
	// provider returned fewer than topK.
	for i, hit := range hits {
		if len(scored) >= p.topK {
			break
		}
		if !seen[i] {
			seen[i] = true
			scored = append(scored, Scored{Hit: hit, RerankScore: float64(hit.Score)})
		}
	}
	return scored
}
