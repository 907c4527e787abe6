package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"factrag/internal/domain"
)

type key struct {
	source string
	index  int
}

// Storage keeps embedding records in process memory. Records are keyed by
// source and passage index; inserting an existing key replaces it.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	records   map[key]domain.EmbeddingRecord
}

func NewStorage() *Storage { return &Storage{records: map[key]domain.EmbeddingRecord{}} }

func (s *Storage) Name() string { return "memory" }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidDimension, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension && len(s.records) > 0 {
		return fmt.Errorf("%w: store holds %d-dimensional vectors, got %d", domain.ErrInvalidDimension, s.dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) InsertBatch(_ context.Context, records []domain.EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return domain.ErrNotInitialized
	}
	for _, r := range records {
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("%w: expected %d, got %d", domain.ErrInvalidDimension, s.dimension, len(r.Vector))
		}
	}
	for _, r := range records {
		vec := append([]float64(nil), r.Vector...)
		s.records[key{r.Passage.SourceID, r.Passage.Index}] = domain.EmbeddingRecord{Passage: r.Passage, Vector: vec}
	}
	return nil
}

// FetchAll returns a snapshot ordered by source then passage index.
func (s *Storage) FetchAll(_ context.Context) ([]domain.EmbeddingRecord, error) {
	s.mu.RLock()
	out := make([]domain.EmbeddingRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, domain.EmbeddingRecord{Passage: r.Passage, Vector: append([]float64(nil), r.Vector...)})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Passage.SourceID != out[j].Passage.SourceID {
			return out[i].Passage.SourceID < out[j].Passage.SourceID
		}
		return out[i].Passage.Index < out[j].Passage.Index
	})
	return out, nil
}

func (s *Storage) DeleteSources(_ context.Context, sources []string) error {
	drop := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		drop[src] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.records {
		if _, ok := drop[k.source]; ok {
			delete(s.records, k)
		}
	}
	return nil
}

func (s *Storage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Clear drops all records and the declared dimension.
func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = map[key]domain.EmbeddingRecord{}
	s.dimension = 0
	return nil
}

func (s *Storage) Close() error { return nil }
