package rag

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docfoundry/docfoundry/pkg/chunker"
	"github.com/docfoundry/docfoundry/pkg/docs"
	"github.com/docfoundry/docfoundry/pkg/embedder"
	"github.com/docfoundry/docfoundry/pkg/rerank"
	"github.com/docfoundry/docfoundry/pkg/vector"
)

func newTestPipeline(t *testing.T) (*Pipeline, vector.Store) {
	t.Helper()
	provider := embedder.NewHashEmbedder(64)
	store := vector.NewChromemStore("pipeline_test")
	require.NoError(t, store.Connect(context.Background()))
	p := NewPipeline(provider, store, rerank.Heuristic{TopK: 5}, nil, 10)
	return p, store
}

func seedStore(t *testing.T, store vector.Store, sections []docs.Section) {
	t.Helper()
	ctx := context.Background()
	provider := embedder.NewHashEmbedder(64)

	var chunks []chunker.Chunk
	var vectors [][]float32
	for _, s := range sections {
		for _, c := range chunker.Split(s, chunker.DefaultOptions()) {
			vec, err := provider.Embed(ctx, c.Content)
			require.NoError(t, err)
			chunks = append(chunks, c)
			vectors = append(vectors, vec)
		}
	}
	require.NoError(t, store.Upsert(ctx, chunks, vectors))
}

func TestPipelineQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("empty query fails before any work", func(t *testing.T) {
		p, _ := newTestPipeline(t)
		_, err := p.Query(ctx, Request{Query: "   "})
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("empty store reports insufficient evidence", func(t *testing.T) {
		p, _ := newTestPipeline(t)
		resp, err := p.Query(ctx, Request{Query: "how does payment work"})
		require.NoError(t, err)

		assert.True(t, resp.InsufficientEvidence)
		assert.Equal(t, 0.0, resp.GroundingScore)
		assert.Equal(t, []string{"how does payment work"}, resp.MissingTopics)
		assert.Contains(t, resp.Answer, "No relevant documentation found")
		assert.Empty(t, resp.Citations)
	})

	t.Run("fallback answer cites retrieved sections", func(t *testing.T) {
		p, store := newTestPipeline(t)
		seedStore(t, store, []docs.Section{
			{File: "R1-ARCHITECTURE.md", Release: "R1", DocType: "ARCHITECTURE",
				Heading: "Payment Flow",
				Content: "The payment flow starts at the gateway and ends at the ledger.",
				LineStart: 3, LineEnd: 9},
		})

		resp, err := p.Query(ctx, Request{Query: "payment flow gateway ledger"})
		require.NoError(t, err)

		require.NotEmpty(t, resp.Citations)
		assert.Equal(t, "R1-ARCHITECTURE.md", resp.Citations[0].File)
		assert.Equal(t, "Payment Flow", resp.Citations[0].Heading)
		assert.Equal(t, 3, resp.Citations[0].LineStart)
		assert.Contains(t, resp.Answer, "Based on the documentation:")
		assert.Contains(t, resp.Answer, "Payment Flow")

		// Fallback answers quote headings and line ranges, so grounding
		// clears the threshold.
		assert.False(t, resp.InsufficientEvidence)
		assert.GreaterOrEqual(t, resp.GroundingScore, 0.3)
	})

	t.Run("citation snippets are capped", func(t *testing.T) {
		long := ""
		for i := 0; i < 60; i++ {
			long += "searchable payment flow words repeated again and again "
		}
		p, store := newTestPipeline(t)
		seedStore(t, store, []docs.Section{
			{File: "R1-NOTES.md", Release: "R1", DocType: "NOTES",
				Heading: "Long", Content: long, LineStart: 1, LineEnd: 80},
		})

		resp, err := p.Query(ctx, Request{Query: "searchable payment flow"})
		require.NoError(t, err)
		require.NotEmpty(t, resp.Citations)
		for _, c := range resp.Citations {
			assert.LessOrEqual(t, len(c.Snippet), 300)
		}
	})

	t.Run("truncated snippets stay valid UTF-8", func(t *testing.T) {
		// A two-byte rune straddling the cap must not be split.
		straddling := strings.Repeat("a", snippetLength-1) + "é and more text"
		got := snippet(straddling)
		assert.True(t, utf8.ValidString(got))
		assert.LessOrEqual(t, len(got), snippetLength)
		assert.Equal(t, strings.Repeat("a", snippetLength-1), got)

		multiByte := strings.Repeat("é", snippetLength)
		got = snippet(multiByte)
		assert.True(t, utf8.ValidString(got))
		assert.LessOrEqual(t, len(got), snippetLength)
	})

	t.Run("filters narrow retrieval", func(t *testing.T) {
		p, store := newTestPipeline(t)
		seedStore(t, store, []docs.Section{
			{File: "R1-NOTES.md", Release: "R1", DocType: "NOTES",
				Heading: "One", Content: "payment flow in release one", LineStart: 1, LineEnd: 2},
			{File: "R2-NOTES.md", Release: "R2", DocType: "NOTES",
				Heading: "Two", Content: "payment flow in release two", LineStart: 1, LineEnd: 2},
		})

		resp, err := p.Query(ctx, Request{
			Query:   "payment flow",
			Filters: &vector.Filter{Release: "R2"},
		})
		require.NoError(t, err)
		require.NotEmpty(t, resp.Citations)
		for _, c := range resp.Citations {
			assert.Equal(t, "R2-NOTES.md", c.File)
		}
	})
}

func TestAssessGrounding(t *testing.T) {
	t.Run("citation markers and headings raise the score", func(t *testing.T) {
		resp := &Response{
			Answer: "See [Citation 1: f.md, lines 1-4]. The Payment Flow section covers it.",
			Citations: []Citation{
				{Heading: "Payment Flow"},
			},
		}
		assessGrounding(resp)
		assert.InDelta(t, 0.5, resp.GroundingScore, 1e-9)
		assert.False(t, resp.InsufficientEvidence)
	})

	t.Run("unreferenced answers fall below the threshold", func(t *testing.T) {
		resp := &Response{
			Answer:    "Probably works fine.",
			Citations: []Citation{{Heading: "Payment Flow"}},
		}
		assessGrounding(resp)
		assert.True(t, resp.InsufficientEvidence)
		assert.Equal(t, []string{"Additional context needed"}, resp.MissingTopics)
	})

	t.Run("score is clamped at one", func(t *testing.T) {
		resp := &Response{
			Answer: "lines A B C D E F",
			Citations: []Citation{
				{Heading: "a"}, {Heading: "b"}, {Heading: "c"},
				{Heading: "d"}, {Heading: "e"},
			},
		}
		assessGrounding(resp)
		assert.Equal(t, 1.0, resp.GroundingScore)
	})
}
