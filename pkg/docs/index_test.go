package docs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCache(t *testing.T) {
	t.Run("serves a cached index within the TTL", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "R1-NOTES.md", "# A\n\nx\n")

		cache := NewIndexCache(time.Minute)
		defer cache.Close()

		idx1, err := cache.Get(root, GetOptions{})
		require.NoError(t, err)
		idx2, err := cache.Get(root, GetOptions{})
		require.NoError(t, err)

		assert.Same(t, idx1, idx2)
		stats := cache.Stats()
		assert.Equal(t, int64(1), stats.Hits)
		assert.Equal(t, int64(1), stats.Misses)
	})

	t.Run("invalidate forces a rebuild", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "R1-NOTES.md", "# A\n\nx\n")

		cache := NewIndexCache(time.Minute)
		defer cache.Close()

		idx1, err := cache.Get(root, GetOptions{})
		require.NoError(t, err)
		require.Len(t, idx1.Sections, 1)

		writeFile(t, root, "R2-NOTES.md", "# B\n\ny\n")
		cache.Invalidate(root)

		idx2, err := cache.Get(root, GetOptions{})
		require.NoError(t, err)
		assert.Len(t, idx2.Sections, 2)
		assert.NotEqual(t, idx1.Fingerprint, idx2.Fingerprint)
	})

	t.Run("disabled caching always reparses", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "R1-NOTES.md", "# A\n\nx\n")

		cache := NewIndexCache(time.Minute)
		defer cache.Close()

		disabled := false
		idx1, err := cache.Get(root, GetOptions{CacheEnabled: &disabled})
		require.NoError(t, err)
		idx2, err := cache.Get(root, GetOptions{CacheEnabled: &disabled})
		require.NoError(t, err)
		assert.NotSame(t, idx1, idx2)
	})

	t.Run("expired entries rebuild", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "R1-NOTES.md", "# A\n\nx\n")

		cache := NewIndexCache(time.Minute)
		defer cache.Close()

		idx1, err := cache.Get(root, GetOptions{TTL: time.Nanosecond})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
		idx2, err := cache.Get(root, GetOptions{TTL: time.Nanosecond})
		require.NoError(t, err)
		assert.NotSame(t, idx1, idx2)
	})
}
