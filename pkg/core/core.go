// Package core assembles the retrieval components behind one facade: lexical
// search, grounded answers, release comparison, dependency extraction, update
// agent, indexing, and cache lifecycle.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/docfoundry/docfoundry/pkg/agent"
	"github.com/docfoundry/docfoundry/pkg/config"
	"github.com/docfoundry/docfoundry/pkg/docs"
	"github.com/docfoundry/docfoundry/pkg/embedder"
	"github.com/docfoundry/docfoundry/pkg/facts"
	"github.com/docfoundry/docfoundry/pkg/observability"
	"github.com/docfoundry/docfoundry/pkg/rag"
	"github.com/docfoundry/docfoundry/pkg/rerank"
	"github.com/docfoundry/docfoundry/pkg/search"
	"github.com/docfoundry/docfoundry/pkg/vector"
	"github.com/docfoundry/docfoundry/pkg/watcher"
)

// ErrDocsNotFound is returned when the corpus root holds no parseable
// documentation.
var ErrDocsNotFound = errors.New("no documentation found under corpus root")

const (
	// maxResultsCeiling bounds client-requested result counts.
	maxResultsCeiling = 50

	// maxTokensCeiling bounds client-requested answer lengths.
	maxTokensCeiling = 4096
)

// SearchRequest parameterizes a lexical search.
type SearchRequest struct {
	Query      string   `json:"query"`
	Release    string   `json:"release,omitempty"`
	Service    string   `json:"service,omitempty"`
	DocTypes   []string `json:"docTypes,omitempty"`
	MaxResults int      `json:"maxResults,omitempty"`
}

// SearchResponse carries scored hits plus the fingerprint they were computed
// against.
type SearchResponse struct {
	Hits        []search.Hit `json:"hits"`
	Fingerprint string       `json:"fingerprint"`
	Total       int          `json:"total"`
}

// RefreshResult reports a forced cache rebuild.
type RefreshResult struct {
	Fingerprint string `json:"fingerprint"`
	FileCount   int    `json:"fileCount"`
	Sections    int    `json:"sections"`
}

// Health is the liveness view.
type Health struct {
	Status    string   `json:"status"`
	UptimeSec int64    `json:"uptime"`
	Tools     []string `json:"tools"`
}

// MetricsReport aggregates request counters and cache effectiveness.
type MetricsReport struct {
	Requests   observability.Snapshot `json:"requests"`
	DocCache   docs.CacheStats        `json:"docCache"`
	QueryCache search.QueryCacheStats `json:"queryCache"`
	Embedder   map[string]any         `json:"embedder"`
}

// operations is the published tool surface, in route order.
var operations = []string{
	"search_docs",
	"answer_question",
	"suggest_doc_update",
	"apply_doc_update",
	"compare_releases",
	"service_dependencies",
	"refresh_index",
}

// Core owns every component and their shared caches.
type Core struct {
	cfg *config.Config

	docCache   *docs.IndexCache
	queryCache *search.QueryCache
	factCache  *facts.Cache

	embedder *embedder.Cached
	store    vector.Store
	pipeline *rag.Pipeline
	agent    *agent.Agent
	indexer  *Indexer
	metrics  *observability.Metrics

	watcher   *watcher.Watcher
	startedAt time.Time
}

// New wires the core from configuration and connects the vector store.
// metrics may be nil.
func New(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (*Core, error) {
	if metrics == nil {
		metrics = observability.NewNoop()
	}

	provider, err := newProvider(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	cached := embedder.NewCached(provider, cfg.Embedder.BatchSize)

	store, err := newStore(cfg.VectorStore, cached.Dimension())
	if err != nil {
		return nil, err
	}
	if err := store.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect vector store: %w", err)
	}

	reranker := newReranker(cfg.Reranker)
	var generator rag.Generator
	if g := rag.NewOpenAIGenerator(cfg.Generator); g != nil {
		generator = g
	}

	docCache := docs.NewIndexCache(time.Duration(cfg.CacheTTLMs) * time.Millisecond)
	queryCache := search.NewQueryCache(cfg.Search.CacheSize,
		time.Duration(cfg.Search.CacheTTLMs)*time.Millisecond)
	factCache := facts.NewCache()

	c := &Core{
		cfg:        cfg,
		docCache:   docCache,
		queryCache: queryCache,
		factCache:  factCache,
		embedder:   cached,
		store:      store,
		pipeline:   rag.NewPipeline(cached, store, reranker, generator, cfg.Search.VectorTopK),
		agent:      agent.New(docCache, factCache),
		metrics:    metrics,
		startedAt:  time.Now(),
	}
	c.indexer = NewIndexer(cached, store, metrics, cfg.MaxConcurrency)
	c.agent.Events = c.onEvent

	return c, nil
}

func newProvider(cfg config.EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return embedder.NewOpenAIEmbedder(cfg)
	default:
		return embedder.NewHashEmbedder(cfg.Dimension), nil
	}
}

func newStore(cfg config.VectorStoreConfig, dimension int) (vector.Store, error) {
	switch cfg.Type {
	case "qdrant":
		return vector.NewQdrantStore(cfg, dimension)
	default:
		return vector.NewChromemStore(cfg.Collection), nil
	}
}

func newReranker(cfg config.RerankerConfig) rerank.Reranker {
	if !cfg.Enabled {
		return rerank.Disabled{}
	}
	if client := rerank.NewCohereClient(cfg); client != nil {
		return rerank.NewProvider(client, cfg.TopK)
	}
	slog.Warn("Reranker enabled without API key, using heuristic")
	return rerank.Heuristic{TopK: cfg.TopK}
}

// StartWatcher begins watching the corpus root when enabled. The returned
// event stream mirrors corpus lifecycle notifications; callers may drain or
// ignore it.
func (c *Core) StartWatcher(ctx context.Context) (<-chan docs.Event, error) {
	if c.cfg.Watch != nil && !*c.cfg.Watch {
		return nil, nil
	}
	w, err := watcher.New(watcher.Config{
		Root:       c.cfg.Root,
		Invalidate: c.invalidate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	events, err := w.Start(ctx)
	if err != nil {
		return nil, err
	}
	c.watcher = w
	return events, nil
}

// Close releases the watcher, caches, store, and embedder.
func (c *Core) Close() error {
	if c.watcher != nil {
		if err := c.watcher.Stop(); err != nil {
			slog.Warn("Failed to stop watcher", "error", err)
		}
	}
	c.docCache.Close()
	if err := c.store.Close(); err != nil {
		return err
	}
	return c.embedder.Close()
}

// Search ranks corpus sections lexically, consulting the query cache.
func (c *Core) Search(ctx context.Context, req SearchRequest) (result *SearchResponse, err error) {
	defer c.record(ctx, "search_docs", time.Now(), &err)

	idx, err := c.index()
	if err != nil {
		return nil, err
	}

	opts := search.Options{
		Filters: search.Filters{
			Release:  req.Release,
			Service:  req.Service,
			DocTypes: req.DocTypes,
		},
		MaxResults: clamp(req.MaxResults, c.cfg.Search.MaxResults, maxResultsCeiling),
	}

	key := search.QueryKey{
		Fingerprint: idx.Fingerprint,
		Query:       req.Query,
		Filters:     opts.Filters,
		MaxResults:  opts.MaxResults,
	}
	hits, err := c.queryCache.Get(key, func() ([]search.Hit, error) {
		return search.Score(idx.Sections, req.Query, opts), nil
	})
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("%w: no sections matched the query", ErrDocsNotFound)
	}

	return &SearchResponse{
		Hits:        hits,
		Fingerprint: idx.Fingerprint,
		Total:       len(hits),
	}, nil
}

// Answer runs the grounded-answer pipeline.
func (c *Core) Answer(ctx context.Context, req rag.Request) (resp *rag.Response, err error) {
	defer c.record(ctx, "answer_question", time.Now(), &err)

	req.K = clamp(req.K, 0, maxResultsCeiling)
	req.MaxTokens = clamp(req.MaxTokens, 0, maxTokensCeiling)
	return c.pipeline.Query(ctx, req)
}

// SuggestUpdate previews an append-style documentation update.
func (c *Core) SuggestUpdate(ctx context.Context, in agent.Intent) (s *agent.Suggestion, err error) {
	defer c.record(ctx, "suggest_doc_update", time.Now(), &err)
	return c.agent.SuggestUpdate(ctx, c.cfg.Root, in)
}

// ApplyUpdate writes a suggested diff to the corpus.
func (c *Core) ApplyUpdate(ctx context.Context, targetFile, diff string, force bool) (r *agent.ApplyResult, err error) {
	defer c.record(ctx, "apply_doc_update", time.Now(), &err)
	return c.agent.ApplyUpdate(ctx, c.cfg.Root, targetFile, diff, force)
}

// CompareReleases summarizes a feature's coverage per release.
func (c *Core) CompareReleases(ctx context.Context, feature string, releases []string) (cmp *search.ReleaseComparison, err error) {
	defer c.record(ctx, "compare_releases", time.Now(), &err)

	idx, err := c.index()
	if err != nil {
		return nil, err
	}
	result := search.CompareReleases(idx.Sections, feature, releases)
	return &result, nil
}

// ServiceDependencies extracts inbound/outbound edges for a service.
func (c *Core) ServiceDependencies(ctx context.Context, service, release string, includeDataFlow bool) (deps *search.ServiceDependencies, err error) {
	defer c.record(ctx, "service_dependencies", time.Now(), &err)

	idx, err := c.index()
	if err != nil {
		return nil, err
	}
	result := search.ExtractServiceDependencies(idx.Sections, service, release, includeDataFlow)
	return &result, nil
}

// Refresh drops every cache and rebuilds the doc index immediately.
func (c *Core) Refresh(ctx context.Context) (r *RefreshResult, err error) {
	defer c.record(ctx, "refresh_index", time.Now(), &err)

	c.invalidate(c.cfg.Root)
	idx, err := c.index()
	if err != nil {
		return nil, err
	}
	return &RefreshResult{
		Fingerprint: idx.Fingerprint,
		FileCount:   idx.FileCount,
		Sections:    len(idx.Sections),
	}, nil
}

// Reindex chunks, embeds, and upserts the whole corpus into the vector
// store.
func (c *Core) Reindex(ctx context.Context) (*IndexStats, error) {
	idx, err := c.index()
	if err != nil {
		return nil, err
	}
	return c.indexer.Run(ctx, idx.Sections)
}

// Health reports liveness and the published tool surface.
func (c *Core) Health() Health {
	return Health{
		Status:    "ok",
		UptimeSec: int64(time.Since(c.startedAt).Seconds()),
		Tools:     operations,
	}
}

// Metrics aggregates request and cache counters.
func (c *Core) Metrics() MetricsReport {
	return MetricsReport{
		Requests:   c.metrics.Snapshot(),
		DocCache:   c.docCache.Stats(),
		QueryCache: c.queryCache.Stats(),
		Embedder: map[string]any{
			"model":     c.embedder.ModelName(),
			"dimension": c.embedder.Dimension(),
			"cached":    c.embedder.CacheSize(),
		},
	}
}

// Root returns the configured corpus root.
func (c *Core) Root() string { return c.cfg.Root }

func (c *Core) index() (*docs.DocIndex, error) {
	idx, err := c.docCache.Get(c.cfg.Root, docs.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocsNotFound, err)
	}
	if len(idx.Sections) == 0 {
		return nil, ErrDocsNotFound
	}
	return idx, nil
}

// invalidate drops every cache for root. Query cache entries are fingerprint
// keyed, so a changed corpus never serves stale hits; clearing here just
// frees the dead entries early.
func (c *Core) invalidate(root string) {
	c.docCache.Invalidate(root)
	c.factCache.Invalidate(root)
	c.queryCache.Clear()
}

func (c *Core) onEvent(event docs.Event) {
	if event.Kind == docs.EventReindexTriggered {
		c.queryCache.Clear()
	}
	slog.Debug("Corpus event", "kind", event.Kind, "path", event.Path)
}

func (c *Core) record(ctx context.Context, operation string, start time.Time, err *error) {
	c.metrics.RecordRequest(ctx, operation, time.Since(start), *err)
}

// clamp applies the fallback for non-positive values and the ceiling for
// oversized ones.
func clamp(v, fallback, ceiling int) int {
	if v <= 0 {
		v = fallback
	}
	if v > ceiling {
		v = ceiling
	}
	return v
}
