package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gte=0"`

	// RequestsPerSecond paces embedding calls; 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type" validate:"oneof=tfidf openai"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into passages. Sizes are
// in characters.
type ChunkerConfig struct {
	Type    string `yaml:"type" validate:"oneof=entity"`
	Size    int    `yaml:"size" validate:"gt=0"`
	Overlap int    `yaml:"overlap" validate:"gte=0,ltfield=Size"`
	Locale  string `yaml:"locale" validate:"required"`
	// Workers bounds parallel document chunking; 0 means GOMAXPROCS.
	Workers int `yaml:"workers" validate:"gte=0"`
}

// RetrievalConfig configures ranking at query time.
type RetrievalConfig struct {
	TopK               int    `yaml:"top_k" validate:"gte=1"`
	PrioritizeMetadata bool   `yaml:"prioritize_metadata"`
	Distance           string `yaml:"distance" validate:"oneof=cosine euclidean"`
	Dedup              string `yaml:"dedup" validate:"oneof=prefix full"`
	DedupPrefix        int    `yaml:"dedup_prefix" validate:"gte=1"`
}

// VectorStoreConfig selects the primary store and the fallback used when the
// primary is unavailable.
type VectorStoreConfig struct {
	Type       string        `yaml:"type" validate:"oneof=memory sqlite qdrant"`
	Fallback   string        `yaml:"fallback" validate:"oneof=memory sqlite"`
	Collection string        `yaml:"collection" validate:"required"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
	SQLite     *SQLiteConfig `yaml:"sqlite,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gte=0"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type" validate:"oneof=frequency"`
	MaxSentences int    `yaml:"max_sentences" validate:"gte=0"`
}

// IngestConfig configures document loading and batch insertion.
type IngestConfig struct {
	DataDir     string `yaml:"data_dir"`
	TestDataDir string `yaml:"test_data_dir"`
	BatchSize   int    `yaml:"batch_size" validate:"gte=1"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Log         LogConfig         `yaml:"log"`
	TestMode    bool              `yaml:"test_mode"`
}

var validate = validator.New()

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/factrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/factrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides file values with environment variables. lookup is
// usually os.LookupEnv.
func (c *AppConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	ints := map[string]*int{
		"CHUNK_SIZE":    &c.Chunker.Size,
		"CHUNK_OVERLAP": &c.Chunker.Overlap,
		"TOP_K":         &c.Retrieval.TopK,
		"BATCH_SIZE":    &c.Ingest.BatchSize,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"PRIORITIZE_METADATA": &c.Retrieval.PrioritizeMetadata,
		"TEST_MODE":           &c.TestMode,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = parseBool(v)
		}
	}

	if v, ok := lookup("QDRANT_URL"); ok && v != "" {
		c.qdrant().URL = v
	}
	if v, ok := lookup("QDRANT_API_KEY"); ok && v != "" {
		c.qdrant().APIKey = v
	}
	if v, ok := lookup("SQLITE_PATH"); ok && v != "" {
		if c.VectorStore.SQLite == nil {
			c.VectorStore.SQLite = &SQLiteConfig{}
		}
		c.VectorStore.SQLite.Path = v
	}
	if v, ok := lookup("EMBEDDING_MODEL"); ok && v != "" {
		if c.Embedder.OpenAI == nil {
			c.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		c.Embedder.OpenAI.Model = v
	}

	strs := map[string]*string{
		"COLLECTION_NAME": &c.VectorStore.Collection,
		"DATA_DIR":        &c.Ingest.DataDir,
		"TEST_DATA_DIR":   &c.Ingest.TestDataDir,
		"LOG_LEVEL":       &c.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	applyConfigDefaults(c)
	return nil
}

// Validate checks the struct constraints of the configuration.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// CollectionName is the store collection, suffixed in test mode.
func (c *AppConfig) CollectionName() string {
	if c.TestMode {
		return c.VectorStore.Collection + "_test"
	}
	return c.VectorStore.Collection
}

// DataDir is the directory ingested when no paths are given.
func (c *AppConfig) DataDir() string {
	if c.TestMode {
		return c.Ingest.TestDataDir
	}
	return c.Ingest.DataDir
}

func (c *AppConfig) qdrant() *QdrantConfig {
	if c.VectorStore.Qdrant == nil {
		c.VectorStore.Qdrant = &QdrantConfig{}
	}
	return c.VectorStore.Qdrant
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "factrag", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{
		Embedder: EmbedderConfig{Type: "tfidf"},
		Chunker:  ChunkerConfig{Type: "entity", Size: 1000, Overlap: 200, Locale: "fr"},
		Retrieval: RetrievalConfig{
			TopK:               5,
			PrioritizeMetadata: true,
			Distance:           "cosine",
			Dedup:              "prefix",
			DedupPrefix:        100,
		},
		VectorStore: VectorStoreConfig{
			Type:       "sqlite",
			Fallback:   "memory",
			Collection: "data",
			SQLite:     &SQLiteConfig{Path: "factrag.db"},
		},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 5},
		Ingest:     IngestConfig{DataDir: "./data", TestDataDir: "./data_test", BatchSize: 500},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "entity"
	}
	if cfg.Chunker.Locale == "" {
		cfg.Chunker.Locale = "fr"
	}
	if cfg.Retrieval.Distance == "" {
		cfg.Retrieval.Distance = "cosine"
	}
	if cfg.Retrieval.Dedup == "" {
		cfg.Retrieval.Dedup = "prefix"
	}
	if cfg.Retrieval.DedupPrefix == 0 {
		cfg.Retrieval.DedupPrefix = 100
	}
	if cfg.VectorStore.Fallback == "" {
		cfg.VectorStore.Fallback = "memory"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "data"
	}
	if cfg.VectorStore.SQLite != nil && cfg.VectorStore.SQLite.Path == "" {
		cfg.VectorStore.SQLite.Path = "factrag.db"
	}
	if cfg.VectorStore.Qdrant != nil && cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
		cfg.VectorStore.Qdrant.TimeoutSecs = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
}
