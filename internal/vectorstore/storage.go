package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"factrag/internal/config"
	"factrag/internal/domain"
	"factrag/internal/logging"
	"factrag/internal/vectorstore/memory"
	"factrag/internal/vectorstore/qdrant"
	"factrag/internal/vectorstore/sqlite"
)

// Storage persists embedding records for one collection. Implementations are
// safe for concurrent use.
type Storage interface {
	Name() string
	// Init declares the vector dimension, creating the collection if needed.
	Init(ctx context.Context, dimension int) error
	// InsertBatch upserts records keyed by source and passage index.
	InsertBatch(ctx context.Context, records []domain.EmbeddingRecord) error
	// FetchAll returns every record ordered by source then passage index.
	FetchAll(ctx context.Context) ([]domain.EmbeddingRecord, error)
	DeleteSources(ctx context.Context, sources []string) error
	Count(ctx context.Context) (int, error)
	// Clear removes all records and the declared dimension.
	Clear(ctx context.Context) error
	Close() error
}

// Backend tags which store variant was selected at startup.
type Backend string

const (
	Primary  Backend = "primary"
	Fallback Backend = "fallback"
)

// Selection is the store chosen by Open.
type Selection struct {
	Storage
	Backend Backend
}

// Open builds the configured store. A qdrant primary that cannot be reached
// is replaced by the configured fallback; the choice holds for the process
// lifetime.
func Open(ctx context.Context, cfg config.VectorStoreConfig, collection string, logger *slog.Logger) (*Selection, error) {
	logger = logging.OrDiscard(logger)
	primary, err := build(cfg, cfg.Type, collection)
	if err == nil {
		err = ping(ctx, primary)
		if err == nil {
			logger.Debug("vector store selected", "store", primary.Name(), "backend", Primary, "collection", collection)
			return &Selection{Storage: primary, Backend: Primary}, nil
		}
		_ = primary.Close()
	}
	if cfg.Fallback == "" || cfg.Fallback == cfg.Type {
		return nil, fmt.Errorf("open %s store: %w", cfg.Type, err)
	}
	logger.Warn("primary vector store unavailable, using fallback", "store", cfg.Type, "fallback", cfg.Fallback, "error", err)
	fallback, ferr := build(cfg, cfg.Fallback, collection)
	if ferr != nil {
		return nil, fmt.Errorf("open fallback %s store: %w", cfg.Fallback, ferr)
	}
	return &Selection{Storage: fallback, Backend: Fallback}, nil
}

func build(cfg config.VectorStoreConfig, kind, collection string) (Storage, error) {
	switch kind {
	case "memory", "":
		return memory.NewStorage(), nil
	case "sqlite":
		path := "factrag.db"
		if cfg.SQLite != nil && cfg.SQLite.Path != "" {
			path = cfg.SQLite.Path
		}
		return sqlite.Open(path, collection)
	case "qdrant":
		if cfg.Qdrant == nil || cfg.Qdrant.URL == "" {
			return nil, fmt.Errorf("qdrant url not configured")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", kind)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func ping(ctx context.Context, s Storage) error {
	if p, ok := s.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Stats describes the content of a collection.
type Stats struct {
	Total      int            `json:"total"`
	Sources    int            `json:"sources"`
	Extensions map[string]int `json:"extensions"`
	Store      string         `json:"store"`
	Backend    Backend        `json:"backend"`
}

// CollectStats counts passages per source and per file extension.
func CollectStats(ctx context.Context, sel *Selection) (Stats, error) {
	records, err := sel.FetchAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Total:      len(records),
		Extensions: map[string]int{},
		Store:      sel.Name(),
		Backend:    sel.Backend,
	}
	sources := map[string]struct{}{}
	for _, r := range records {
		sources[r.Passage.SourceID] = struct{}{}
		ext := strings.ToLower(filepath.Ext(r.Passage.SourceID))
		if ext == "" {
			ext = "(none)"
		}
		st.Extensions[ext]++
	}
	st.Sources = len(sources)
	return st, nil
}
