package search

import (
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCacheSize bounds the query cache entry count.
	DefaultCacheSize = 1000

	// DefaultCacheTTL is the per-entry lifetime.
	DefaultCacheTTL = 5 * time.Minute
)

// QueryKey identifies a cached search result. Results are only valid for the
// corpus fingerprint they were computed against.
type QueryKey struct {
	Fingerprint string
	Query       string
	Filters     Filters
	MaxResults  int
}

// Serialize renders the key as
// "fingerprint|query|r:..|s:..|dt:..|max:..", omitting absent fields.
// The query is lowercased so casing variants share an entry.
func (k QueryKey) Serialize() string {
	parts := []string{k.Fingerprint, strings.ToLower(k.Query)}
	if k.Filters.Release != "" {
		parts = append(parts, "r:"+k.Filters.Release)
	}
	if k.Filters.Service != "" {
		parts = append(parts, "s:"+k.Filters.Service)
	}
	if len(k.Filters.DocTypes) > 0 {
		docTypes := append([]string(nil), k.Filters.DocTypes...)
		sort.Strings(docTypes)
		parts = append(parts, "dt:"+strings.Join(docTypes, ","))
	}
	if k.MaxResults > 0 {
		parts = append(parts, "max:"+strconv.Itoa(k.MaxResults))
	}
	return strings.Join(parts, "|")
}

// QueryCacheStats reports cache effectiveness.
type QueryCacheStats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	InflightHits int64   `json:"inflightHits"`
	HitRate      float64 `json:"hitRate"`
}

// QueryCache is a bounded LRU with per-entry TTL. Concurrent Get calls with
// the same key collapse into a single fetch (singleflight); failed fetches
// are never cached.
type QueryCache struct {
	lru   *expirable.LRU[string, []Hit]
	group singleflight.Group

	hits         atomic.Int64
	misses       atomic.Int64
	inflightHits atomic.Int64
}

// NewQueryCache creates a query cache. Zero size or TTL selects the defaults.
func NewQueryCache(size int, ttl time.Duration) *QueryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &QueryCache{
		lru: expirable.NewLRU[string, []Hit](size, nil, ttl),
	}
}

// Get returns the cached hits for key, or invokes fetch exactly once across
// all concurrent callers of the same key and caches its result.
func (c *QueryCache) Get(key QueryKey, fetch func() ([]Hit, error)) ([]Hit, error) {
	serialized := key.Serialize()

	if hits, ok := c.lru.Get(serialized); ok {
		c.hits.Add(1)
		return hits, nil
	}

	result, err, shared := c.group.Do(serialized, func() (interface{}, error) {
		// Re-check under the flight: a concurrent fill may have landed
		// between the miss and the election.
		if hits, ok := c.lru.Get(serialized); ok {
			return hits, nil
		}
		hits, err := fetch()
		if err != nil {
			return nil, err
		}
		c.lru.Add(serialized, hits)
		return hits, nil
	})
	if err != nil {
		c.misses.Add(1)
		return nil, err
	}

	if shared {
		c.inflightHits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return result.([]Hit), nil
}

// InvalidateFingerprint removes every entry computed against fp.
func (c *QueryCache) InvalidateFingerprint(fp string) {
	prefix := fp + "|"
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// Clear empties the cache.
func (c *QueryCache) Clear() {
	c.lru.Purge()
}

// Stats returns counters and the derived hit rate.
func (c *QueryCache) Stats() QueryCacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	inflight := c.inflightHits.Load()

	total := hits + misses + inflight
	rate := 0.0
	if total > 0 {
		rate = float64(hits+inflight) / float64(total)
	}
	return QueryCacheStats{
		Hits:         hits,
		Misses:       misses,
		InflightHits: inflight,
		HitRate:      rate,
	}
}
