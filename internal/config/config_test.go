package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.Chunker.Size)
	assert.Equal(t, 200, cfg.Chunker.Overlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.True(t, cfg.Retrieval.PrioritizeMetadata)
	assert.Equal(t, 500, cfg.Ingest.BatchSize)
	assert.Equal(t, "data", cfg.CollectionName())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker:\n  size: 400\n  overlap: 50\nretrieval:\n  top_k: 3\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Chunker.Size)
	assert.Equal(t, 50, cfg.Chunker.Overlap)
	assert.Equal(t, "fr", cfg.Chunker.Locale)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "cosine", cfg.Retrieval.Distance)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Retrieval.Distance = "euclidean"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"CHUNK_SIZE":          "800",
		"CHUNK_OVERLAP":       "100",
		"TOP_K":               "7",
		"PRIORITIZE_METADATA": "false",
		"QDRANT_URL":          "http://qdrant:6333",
		"QDRANT_API_KEY":      "secret",
		"COLLECTION_NAME":     "litiges",
		"BATCH_SIZE":          "50",
		"SQLITE_PATH":         "/tmp/x.db",
		"EMBEDDING_MODEL":     "text-embedding-3-large",
		"LOG_LEVEL":           "debug",
		"TEST_MODE":           "1",
	}))
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.Chunker.Size)
	assert.Equal(t, 100, cfg.Chunker.Overlap)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.False(t, cfg.Retrieval.PrioritizeMetadata)
	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "http://qdrant:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "secret", cfg.VectorStore.Qdrant.APIKey)
	assert.Equal(t, 10, cfg.VectorStore.Qdrant.TimeoutSecs)
	assert.Equal(t, 50, cfg.Ingest.BatchSize)
	assert.Equal(t, "/tmp/x.db", cfg.VectorStore.SQLite.Path)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.TestMode)
	assert.Equal(t, "litiges_test", cfg.CollectionName())
	assert.Equal(t, "./data_test", cfg.DataDir())
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvRejectsBadInteger(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{"CHUNK_SIZE": "big"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHUNK_SIZE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"zero chunk size", func(c *AppConfig) { c.Chunker.Size = 0 }},
		{"overlap not below size", func(c *AppConfig) { c.Chunker.Overlap = c.Chunker.Size }},
		{"negative overlap", func(c *AppConfig) { c.Chunker.Overlap = -1 }},
		{"zero top k", func(c *AppConfig) { c.Retrieval.TopK = 0 }},
		{"unknown distance", func(c *AppConfig) { c.Retrieval.Distance = "manhattan" }},
		{"unknown dedup", func(c *AppConfig) { c.Retrieval.Dedup = "fuzzy" }},
		{"unknown store", func(c *AppConfig) { c.VectorStore.Type = "mongo" }},
		{"qdrant as fallback", func(c *AppConfig) { c.VectorStore.Fallback = "qdrant" }},
		{"zero batch", func(c *AppConfig) { c.Ingest.BatchSize = 0 }},
		{"unknown embedder", func(c *AppConfig) { c.Embedder.Type = "bert" }},
		{"negative request rate", func(c *AppConfig) {
			c.Embedder.OpenAI = &OpenAIEmbedderConfig{RequestsPerSecond: -1}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
