package docs

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultTTL is the doc index cache lifetime.
	DefaultTTL = 5 * time.Minute

	// sweepInterval is how often expired entries are evicted.
	sweepInterval = 60 * time.Second
)

// GetOptions tunes a single IndexCache.Get call.
type GetOptions struct {
	// TTL overrides the cache default when positive.
	TTL time.Duration

	// CacheEnabled disables both lookup and store when false.
	// Nil means enabled.
	CacheEnabled *bool
}

// CacheStats reports index cache effectiveness.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

type indexEntry struct {
	mu        sync.Mutex
	index     *DocIndex
	expiresAt time.Time
}

// IndexCache caches parsed corpora per root with a content fingerprint and
// TTL. Refresh on miss is exclusive per root; concurrent readers of a fresh
// entry do not block each other beyond the per-entry lock.
type IndexCache struct {
	mu      sync.Mutex
	entries map[string]*indexEntry
	ttl     time.Duration

	hits   atomic.Int64
	misses atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewIndexCache creates an index cache with the given default TTL
// (DefaultTTL when zero) and starts the background sweeper.
func NewIndexCache(ttl time.Duration) *IndexCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &IndexCache{
		entries: make(map[string]*indexEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get returns the cached index for root, rebuilding it when absent, expired,
// or caching is disabled.
func (c *IndexCache) Get(root string, opts GetOptions) (*DocIndex, error) {
	cacheEnabled := opts.CacheEnabled == nil || *opts.CacheEnabled
	ttl := c.ttl
	if opts.TTL > 0 {
		ttl = opts.TTL
	}

	entry := c.entry(root)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	if cacheEnabled && entry.index != nil && now.Before(entry.expiresAt) {
		c.hits.Add(1)
		return entry.index, nil
	}
	c.misses.Add(1)

	sections, err := Parse(root)
	if err != nil {
		return nil, err
	}
	fingerprint, fileCount, err := Fingerprint(root)
	if err != nil {
		return nil, err
	}

	idx := &DocIndex{
		Sections:    sections,
		Fingerprint: fingerprint,
		BuiltAt:     time.Now(),
		FileCount:   fileCount,
	}

	if cacheEnabled {
		entry.index = idx
		entry.expiresAt = now.Add(ttl)
	} else {
		entry.index = nil
	}

	slog.Debug("Rebuilt doc index",
		"root", root, "sections", len(sections), "files", fileCount)
	return idx, nil
}

// Invalidate drops the cached index for root. A Get that begins after
// Invalidate returns observes a fresh index.
func (c *IndexCache) Invalidate(root string) {
	entry := c.entry(root)
	entry.mu.Lock()
	entry.index = nil
	entry.mu.Unlock()
}

// InvalidateAll drops every cached index.
func (c *IndexCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*indexEntry)
}

// Stats returns cache counters.
func (c *IndexCache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()
	return CacheStats{
		Entries: entries,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// Close stops the background sweeper.
func (c *IndexCache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *IndexCache) entry(root string) *indexEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[root]
	if !ok {
		e = &indexEntry{}
		c.entries[root] = e
	}
	return e
}

func (c *IndexCache) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for root, e := range c.entries {
				e.mu.Lock()
				expired := e.index != nil && !now.Before(e.expiresAt)
				if expired {
					e.index = nil
				}
				empty := e.index == nil
				e.mu.Unlock()
				if empty {
					delete(c.entries, root)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Fingerprint digests the sorted set of (absolute path, mtime-ms) pairs of
// every file the parser would select, plus the root path. Any add, remove,
// rename, or mtime change under the root alters the digest.
func Fingerprint(root string) (string, int, error) {
	files, err := DiscoverFiles(root)
	if err != nil {
		return "", 0, err
	}

	h := sha256.New()
	count := 0
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		h.Write([]byte(file))
		h.Write([]byte(strconv.FormatInt(info.ModTime().UnixMilli(), 10)))
		count++
	}
	h.Write([]byte(root))

	return hex.EncodeToString(h.Sum(nil)), count, nil
}
