// Package storetest holds the behaviour every vector store must share.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factrag/internal/domain"
)

// Store is the subset of vectorstore.Storage exercised here.
type Store interface {
	Init(ctx context.Context, dimension int) error
	InsertBatch(ctx context.Context, records []domain.EmbeddingRecord) error
	FetchAll(ctx context.Context) ([]domain.EmbeddingRecord, error)
	DeleteSources(ctx context.Context, sources []string) error
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Record builds a record with metadata derived from flags.
func Record(source string, index int, content string, vector ...float64) domain.EmbeddingRecord {
	return domain.EmbeddingRecord{
		Passage: domain.Passage{
			SourceID:   source,
			Content:    content,
			Index:      index,
			TotalCount: index + 1,
			Metadata: domain.PassageMetadata{
				SizeChars:    len([]rune(content)),
				HasCurrency:  true,
				ContentType:  domain.ContentStatistical,
				QualityScore: 0.6,
			},
		},
		Vector: vector,
	}
}

// Run exercises a fresh, empty store returned by open.
func Run(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("insert before init", func(t *testing.T) {
		s := open(t)
		err := s.InsertBatch(ctx, []domain.EmbeddingRecord{Record("a.txt", 0, "x", 1, 0)})
		assert.ErrorIs(t, err, domain.ErrNotInitialized)
	})

	t.Run("invalid dimension", func(t *testing.T) {
		s := open(t)
		assert.ErrorIs(t, s.Init(ctx, 0), domain.ErrInvalidDimension)
		require.NoError(t, s.Init(ctx, 2))
		err := s.InsertBatch(ctx, []domain.EmbeddingRecord{Record("a.txt", 0, "x", 1, 0, 0)})
		assert.ErrorIs(t, err, domain.ErrInvalidDimension)
	})

	t.Run("round trip ordered", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.InsertBatch(ctx, []domain.EmbeddingRecord{
			Record("b.md", 1, "deux", 0, 1),
			Record("b.md", 0, "un", 1, 0),
			Record("a.pdf", 0, "Préjudice médian: 2 050 €", 0.5, 0.25),
		}))

		got, err := s.FetchAll(ctx)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, Record("a.pdf", 0, "Préjudice médian: 2 050 €", 0.5, 0.25), got[0])
		assert.Equal(t, "un", got[1].Passage.Content)
		assert.Equal(t, "deux", got[2].Passage.Content)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("upsert replaces", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.InsertBatch(ctx, []domain.EmbeddingRecord{Record("a.txt", 0, "old", 1, 0)}))
		require.NoError(t, s.InsertBatch(ctx, []domain.EmbeddingRecord{Record("a.txt", 0, "new", 0, 1)}))

		got, err := s.FetchAll(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "new", got[0].Passage.Content)
	})

	t.Run("delete sources", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.InsertBatch(ctx, []domain.EmbeddingRecord{
			Record("a.txt", 0, "a0", 1, 0),
			Record("a.txt", 1, "a1", 1, 0),
			Record("b.txt", 0, "b0", 0, 1),
		}))
		require.NoError(t, s.DeleteSources(ctx, []string{"a.txt"}))

		got, err := s.FetchAll(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "b0", got[0].Passage.Content)
	})

	t.Run("clear resets dimension", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.InsertBatch(ctx, []domain.EmbeddingRecord{Record("a.txt", 0, "a0", 1, 0)}))
		assert.ErrorIs(t, s.Init(ctx, 3), domain.ErrInvalidDimension)

		require.NoError(t, s.Clear(ctx))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, s.Init(ctx, 3))
		require.NoError(t, s.InsertBatch(ctx, []domain.EmbeddingRecord{Record("a.txt", 0, "a0", 1, 0, 0)}))
	})
}
