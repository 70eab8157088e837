package core

import (
	"context"
	"sync/atomic"
	"time"

	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/docfoundry/docfoundry/pkg/chunker"
	"github.com/docfoundry/docfoundry/pkg/docs"
	"github.com/docfoundry/docfoundry/pkg/embedder"
	"github.com/docfoundry/docfoundry/pkg/observability"
	"github.com/docfoundry/docfoundry/pkg/vector"
)

// IndexStats reports a completed reindex run.
type IndexStats struct {
	Files      int           `json:"files"`
	Chunks     int           `json:"chunks"`
	Tokens     int           `json:"tokens"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"durationMs"`
}

// Indexer chunks sections, embeds them, and upserts the vectors, one file at
// a time with bounded concurrency. Re-indexing a file first deletes its old
// rows so removed sections do not linger.
type Indexer struct {
	embedder       *embedder.Cached
	store          vector.Store
	metrics        *observability.Metrics
	maxConcurrency int
	chunkOpts      chunker.Options
}

// NewIndexer creates an indexer. Zero maxConcurrency selects 1.
func NewIndexer(emb *embedder.Cached, store vector.Store, metrics *observability.Metrics, maxConcurrency int) *Indexer {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Indexer{
		embedder:       emb,
		store:          store,
		metrics:        metrics,
		maxConcurrency: maxConcurrency,
		chunkOpts:      chunker.DefaultOptions(),
	}
}

// Run indexes every section. Files are processed independently; the first
// failure cancels the remaining work.
func (x *Indexer) Run(ctx context.Context, sections []docs.Section) (*IndexStats, error) {
	start := time.Now()

	byFile := make(map[string][]docs.Section)
	var order []string
	for _, section := range sections {
		if _, ok := byFile[section.File]; !ok {
			order = append(order, section.File)
		}
		byFile[section.File] = append(byFile[section.File], section)
	}

	var chunks, tokens atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(x.maxConcurrency)
	for _, file := range order {
		fileSections := byFile[file]
		g.Go(func() error {
			n, t, err := x.indexFile(ctx, file, fileSections)
			if err != nil {
				return err
			}
			chunks.Add(int64(n))
			tokens.Add(int64(t))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &IndexStats{
		Files:      len(order),
		Chunks:     int(chunks.Load()),
		Tokens:     int(tokens.Load()),
		Duration:   time.Since(start),
		DurationMs: time.Since(start).Milliseconds(),
	}
	slog.Info("Indexed corpus",
		"files", stats.Files, "chunks", stats.Chunks,
		"tokens", stats.Tokens, "duration", stats.Duration)
	return stats, nil
}

func (x *Indexer) indexFile(ctx context.Context, file string, sections []docs.Section) (int, int, error) {
	var fileChunks []chunker.Chunk
	for _, section := range sections {
		fileChunks = append(fileChunks, chunker.Split(section, x.chunkOpts)...)
	}
	if len(fileChunks) == 0 {
		return 0, 0, nil
	}

	if err := x.store.Delete(ctx, &vector.Filter{File: file}); err != nil {
		slog.Warn("Failed to delete stale rows", "file", file, "error", err)
	}

	texts := make([]string, len(fileChunks))
	for i, chunk := range fileChunks {
		texts[i] = chunk.Content
	}
	batch, err := x.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, 0, err
	}
	x.metrics.RecordEmbeddingTokens(ctx, batch.TotalTokens)

	if err := x.store.Upsert(ctx, fileChunks, batch.Vectors); err != nil {
		return 0, 0, err
	}
	slog.Debug("Indexed file", "file", file, "chunks", len(fileChunks))
	return len(fileChunks), batch.TotalTokens, nil
}
