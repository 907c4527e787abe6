// Package embedding builds the configured Embedder.
package embedding

import (
	"fmt"
	"time"

	"factrag/internal/config"
	"factrag/internal/domain"
	"factrag/internal/embedding/openai"
	"factrag/internal/embedding/tfidf"
)

// New returns the embedder selected by cfg.Type.
func New(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,

			RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
			Burst:             cfg.OpenAI.Burst,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

// IsCorpusFitted reports whether e must be re-prepared, and stored vectors
// rebuilt, whenever the corpus changes.
func IsCorpusFitted(e domain.Embedder) bool {
	f, ok := e.(domain.CorpusFitted)
	return ok && f.CorpusFitted()
}
