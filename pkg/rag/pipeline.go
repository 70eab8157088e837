// Package rag implements the grounded-answer pipeline: normalize, embed,
// retrieve, rerank, build context, synthesize, and assess grounding.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/docfoundry/docfoundry/pkg/rerank"
	"github.com/docfoundry/docfoundry/pkg/vector"
)

// ErrEmptyQuery is returned before any I/O when the trimmed query is empty.
var ErrEmptyQuery = fmt.Errorf("query must not be empty")

// Citation traces one answer source back to the corpus.
type Citation struct {
	File      string  `json:"file"`
	Heading   string  `json:"heading"`
	LineStart int     `json:"lineStart"`
	LineEnd   int     `json:"lineEnd"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

// Response is a synthesized answer with traceable citations and a grounding
// assessment. Every claim is traceable to a citation; freedom from omissions
// is not guaranteed.
type Response struct {
	Answer               string     `json:"answer"`
	Citations            []Citation `json:"citations"`
	GroundingScore       float64    `json:"groundingScore"`
	InsufficientEvidence bool       `json:"insufficientEvidence"`
	MissingTopics        []string   `json:"missingTopics,omitempty"`
}

// Request parameterizes one grounded-answer query.
type Request struct {
	Query     string         `json:"query"`
	Filters   *vector.Filter `json:"filters,omitempty"`
	MaxTokens int            `json:"maxTokens,omitempty"`
	K         int            `json:"k,omitempty"`
}

const (
	// DefaultTopK is the retrieval depth when the request leaves K unset.
	DefaultTopK = 10

	// DefaultMaxTokens bounds the synthesized answer length.
	DefaultMaxTokens = 1024

	snippetLength     = 300
	contextCitations  = 5
	fallbackCitations = 3
	temperature       = 0.1

	// groundingThreshold is the score below which evidence is deemed
	// insufficient.
	groundingThreshold = 0.3
)

const groundingSystemPrompt = `You are a documentation assistant. Answer strictly from the provided context.
Rules:
1. Use ONLY information present in the context blocks.
2. Every claim must be traceable to one of the numbered citations.
3. If the context does not contain the answer, say so explicitly.
4. Cite files and line ranges, e.g. [Citation 2: FILE, lines 10-24].`

// Embedder is the subset of the embedder contract the pipeline uses; both
// embedder.Provider implementations and the caching wrapper satisfy it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Pipeline wires the embedder, vector store, reranker, and generator into
// the grounded-answer flow.
type Pipeline struct {
	embedder  Embedder
	store     vector.Store
	reranker  rerank.Reranker
	generator Generator
	topK      int
}

// NewPipeline assembles the pipeline. generator may be nil; answers then
// fall back to a citation digest.
func NewPipeline(emb Embedder, store vector.Store, rr rerank.Reranker, gen Generator, topK int) *Pipeline {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Pipeline{
		embedder:  emb,
		store:     store,
		reranker:  rr,
		generator: gen,
		topK:      topK,
	}
}

// Query runs the full retrieve-rerank-synthesize flow.
func (p *Pipeline) Query(ctx context.Context, req Request) (*Response, error) {
	normalized := strings.TrimSpace(req.Query)
	if normalized == "" {
		return nil, ErrEmptyQuery
	}

	queryVector, err := p.embedder.Embed(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	k := req.K
	if k <= 0 {
		k = p.topK
	}
	hits, err := p.store.Search(ctx, queryVector, k, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(hits) == 0 {
		return &Response{
			Answer:               "No relevant documentation found for this query.",
			Citations:            []Citation{},
			GroundingScore:       0,
			InsufficientEvidence: true,
			MissingTopics:        []string{req.Query},
		}, nil
	}

	reranked := p.reranker.Rerank(ctx, normalized, hits)

	citations := make([]Citation, 0, len(reranked))
	for _, scored := range reranked {
		citations = append(citations, Citation{
			File:      scored.Hit.Chunk.Metadata.File,
			Heading:   scored.Hit.Chunk.Metadata.Heading,
			LineStart: scored.Hit.Chunk.Metadata.LineStart,
			LineEnd:   scored.Hit.Chunk.Metadata.LineEnd,
			Snippet:   snippet(scored.Hit.Chunk.Content),
			Relevance: scored.RerankScore,
		})
	}

	contextBlock := buildContext(reranked)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	answer := p.synthesize(ctx, normalized, contextBlock, citations, maxTokens)

	response := &Response{
		Answer:    answer,
		Citations: citations,
	}
	assessGrounding(response)
	return response, nil
}

// snippet truncates content to the snippet budget, backing up so the cut
// never lands inside a multi-byte rune.
func snippet(content string) string {
	if len(content) <= snippetLength {
		return content
	}
	cut := snippetLength
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

// buildContext renders the top reranked hits as labelled citation blocks.
func buildContext(reranked []rerank.Scored) string {
	var sb strings.Builder
	for i, scored := range reranked {
		if i >= contextCitations {
			break
		}
		meta := scored.Hit.Chunk.Metadata
		fmt.Fprintf(&sb, "[Citation %d: %s, lines %d-%d]\n", i+1, meta.File, meta.LineStart, meta.LineEnd)
		fmt.Fprintf(&sb, "Heading: %s\n", meta.Heading)
		if meta.Release != "" {
			fmt.Fprintf(&sb, "Release: %s\n", meta.Release)
		}
		fmt.Fprintf(&sb, "Content:\n%s\n\n---\n\n", scored.Hit.Chunk.Content)
	}
	return sb.String()
}

func (p *Pipeline) synthesize(ctx context.Context, query, contextBlock string, citations []Citation, maxTokens int) string {
	if p.generator != nil {
		prompt := fmt.Sprintf("Context:\n\n%s\nQuestion: %s", contextBlock, query)
		answer, err := p.generator.Generate(ctx, groundingSystemPrompt, prompt, maxTokens, temperature)
		if err == nil {
			return answer
		}
		slog.Error("Answer generation failed, composing fallback", "error", err)
	}
	return fallbackAnswer(citations)
}

// fallbackAnswer digests the top citations when no generator is available.
func fallbackAnswer(citations []Citation) string {
	var sb strings.Builder
	sb.WriteString("Based on the documentation:\n")
	for i, c := range citations {
		if i >= fallbackCitations {
			break
		}
		fmt.Fprintf(&sb, "\n### %s (%s, lines %d-%d)\n%s\n", c.Heading, c.File, c.LineStart, c.LineEnd, c.Snippet)
	}
	return sb.String()
}

// assessGrounding estimates how well the answer acknowledges its sources.
func assessGrounding(response *Response) {
	score := 0.0
	if strings.Contains(response.Answer, "[") || strings.Contains(response.Answer, "lines") {
		score += 0.3
	}

	answerLower := strings.ToLower(response.Answer)
	for _, c := range response.Citations {
		if c.Heading != "" && strings.Contains(answerLower, strings.ToLower(c.Heading)) {
			score += 0.2
		}
	}
	if score > 1.0 {
		score = 1.0
	}

	response.GroundingScore = score
	response.InsufficientEvidence = score < groundingThreshold
	if response.InsufficientEvidence && len(response.Citations) > 0 {
		response.MissingTopics = []string{"Additional context needed"}
	}
}
