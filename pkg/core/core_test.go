package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docfoundry/docfoundry/pkg/agent"
	"github.com/docfoundry/docfoundry/pkg/config"
	"github.com/docfoundry/docfoundry/pkg/rag"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	watch := false
	cfg := &config.Config{
		Root:  t.TempDir(),
		Watch: &watch,
	}
	cfg.SetDefaults()
	cfg.Embedder.Dimension = 64
	return cfg
}

func seedCorpus(t *testing.T, root string) {
	t.Helper()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	write("R1-ARCHITECTURE.md",
		"# Payment Flow\n\nThe payment flow starts at the gateway.\n\norders -> payments\n")
	write("R1-CONFIGURATION.md", "# Limits\n\ntimeout: 30\n")
	write("R2-ARCHITECTURE.md", "# Payment Flow\n\nR2 routes payments through the broker.\n")
}

func newTestCore(t *testing.T) *Core {
	t.Helper()
	cfg := testConfig(t)
	seedCorpus(t, cfg.Root)

	c, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCoreSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns scored hits with the corpus fingerprint", func(t *testing.T) {
		c := newTestCore(t)

		resp, err := c.Search(ctx, SearchRequest{Query: "payment flow"})
		require.NoError(t, err)
		require.NotEmpty(t, resp.Hits)
		assert.NotEmpty(t, resp.Fingerprint)
		assert.Equal(t, len(resp.Hits), resp.Total)
		assert.Equal(t, "Payment Flow", resp.Hits[0].Section.Heading)
	})

	t.Run("release filter narrows results", func(t *testing.T) {
		c := newTestCore(t)

		resp, err := c.Search(ctx, SearchRequest{Query: "payment", Release: "R2"})
		require.NoError(t, err)
		require.NotEmpty(t, resp.Hits)
		for _, hit := range resp.Hits {
			assert.Equal(t, "R2", hit.Section.Release)
		}
	})

	t.Run("oversized maxResults is clamped", func(t *testing.T) {
		c := newTestCore(t)
		_, err := c.Search(ctx, SearchRequest{Query: "payment", MaxResults: 10000})
		assert.NoError(t, err)
	})

	t.Run("zero-hit query reports docs not found", func(t *testing.T) {
		c := newTestCore(t)
		_, err := c.Search(ctx, SearchRequest{Query: "zanzibar quorum"})
		assert.ErrorIs(t, err, ErrDocsNotFound)
	})

	t.Run("empty corpus reports docs not found", func(t *testing.T) {
		cfg := testConfig(t)
		c, err := New(ctx, cfg, nil)
		require.NoError(t, err)
		defer c.Close()

		_, err = c.Search(ctx, SearchRequest{Query: "anything"})
		assert.ErrorIs(t, err, ErrDocsNotFound)
	})
}

func TestCoreAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("answers after reindexing", func(t *testing.T) {
		c := newTestCore(t)

		stats, err := c.Reindex(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Files)
		assert.GreaterOrEqual(t, stats.Chunks, 3)

		resp, err := c.Answer(ctx, rag.Request{Query: "payment flow gateway"})
		require.NoError(t, err)
		require.NotEmpty(t, resp.Citations)
		assert.NotEmpty(t, resp.Answer)
	})

	t.Run("empty store yields insufficient evidence", func(t *testing.T) {
		c := newTestCore(t)
		resp, err := c.Answer(ctx, rag.Request{Query: "payment"})
		require.NoError(t, err)
		assert.True(t, resp.InsufficientEvidence)
	})
}

func TestCoreOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("compare releases covers both", func(t *testing.T) {
		c := newTestCore(t)
		cmp, err := c.CompareReleases(ctx, "payment flow", nil)
		require.NoError(t, err)
		assert.NotEmpty(t, cmp.Releases["R1"])
		assert.NotEmpty(t, cmp.Releases["R2"])
	})

	t.Run("service dependencies", func(t *testing.T) {
		c := newTestCore(t)
		deps, err := c.ServiceDependencies(ctx, "payments", "", false)
		require.NoError(t, err)
		assert.Equal(t, []string{"orders"}, deps.Inbound)
	})

	t.Run("suggest and apply round trip", func(t *testing.T) {
		c := newTestCore(t)

		s, err := c.SuggestUpdate(ctx, agent.Intent{
			Intent: "record a decision", Context: "owner: platform\n", Release: "R1",
		})
		require.NoError(t, err)
		require.False(t, s.Blocked)

		result, err := c.ApplyUpdate(ctx, s.TargetFile, s.Diff, false)
		require.NoError(t, err)
		assert.Equal(t, "success", result.Status)
		assert.True(t, result.Created)

		// The new fact is searchable after the apply invalidated caches.
		resp, err := c.Search(ctx, SearchRequest{Query: "record a decision"})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Hits)
	})

	t.Run("refresh rebuilds and reports counts", func(t *testing.T) {
		c := newTestCore(t)
		r, err := c.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, r.FileCount)
		assert.Equal(t, 3, r.Sections)
		assert.NotEmpty(t, r.Fingerprint)
	})

	t.Run("health lists the tool surface", func(t *testing.T) {
		c := newTestCore(t)
		h := c.Health()
		assert.Equal(t, "ok", h.Status)
		assert.Contains(t, h.Tools, "search_docs")
		assert.Contains(t, h.Tools, "apply_doc_update")
	})

	t.Run("metrics aggregates request and cache counters", func(t *testing.T) {
		c := newTestCore(t)
		_, err := c.Search(ctx, SearchRequest{Query: "payment"})
		require.NoError(t, err)

		m := c.Metrics()
		assert.Equal(t, int64(1), m.Requests.Requests)
		assert.Equal(t, int64(1), m.Requests.Operations["search_docs"])
		assert.Equal(t, "hash-v1", m.Embedder["model"])
	})
}
