package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, 300000, cfg.CacheTTLMs)
	assert.Equal(t, 10, cfg.MaxConcurrency)
	require.NotNil(t, cfg.Watch)
	assert.True(t, *cfg.Watch)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8700, cfg.Server.Port)
	assert.Equal(t, "chromem", cfg.VectorStore.Type)
	assert.Equal(t, "hash", cfg.Embedder.Provider)
	assert.Equal(t, 768, cfg.Embedder.Dimension)
	assert.Equal(t, 32, cfg.Embedder.BatchSize)
	assert.Equal(t, 6, cfg.Reranker.TopK)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, 1000, cfg.Search.CacheSize)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		cfg := &Config{Root: t.TempDir()}
		cfg.SetDefaults()
		return cfg
	}

	t.Run("accepts a sane config", func(t *testing.T) {
		assert.NoError(t, valid(t).Validate())
	})

	t.Run("requires a corpus root", func(t *testing.T) {
		cfg := valid(t)
		cfg.Root = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("root must exist", func(t *testing.T) {
		cfg := valid(t)
		cfg.Root = filepath.Join(t.TempDir(), "missing")
		assert.Error(t, cfg.Validate())
	})

	t.Run("root must be a directory", func(t *testing.T) {
		cfg := valid(t)
		file := filepath.Join(t.TempDir(), "f")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
		cfg.Root = file
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects unknown store and embedder types", func(t *testing.T) {
		cfg := valid(t)
		cfg.VectorStore.Type = "faiss"
		assert.Error(t, cfg.Validate())

		cfg = valid(t)
		cfg.Embedder.Provider = "bert"
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	t.Run("reads yaml and applies defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"root: /corpus\nserver:\n  port: 9000\nembedder:\n  provider: hash\n  dimension: 128\n"), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/corpus", cfg.Root)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, 128, cfg.Embedder.Dimension)
		assert.Equal(t, "chromem", cfg.VectorStore.Type)
	})

	t.Run("expands environment variables with defaults", func(t *testing.T) {
		t.Setenv("CORPUS_DIR", "/from-env")
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"root: ${CORPUS_DIR}\nvector_store:\n  collection: ${MISSING_VAR:-fallback}\n"), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/from-env", cfg.Root)
		assert.Equal(t, "fallback", cfg.VectorStore.Collection)
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		t.Setenv("DOCFOUNDRY_ROOT", "/env-root")
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("root: /file-root\n"), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/env-root", cfg.Root)
	})

	t.Run("missing path loads pure defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 8700, cfg.Server.Port)
	})
}
