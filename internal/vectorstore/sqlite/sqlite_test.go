package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factrag/internal/domain"
	"factrag/internal/vectorstore/storetest"
)

func openTemp(t *testing.T, collection string) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "factrag.db"), collection)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorage(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return openTemp(t, "data") })
}

func TestPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "factrag.db")

	s, err := Open(path, "data")
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.InsertBatch(ctx, []domain.EmbeddingRecord{storetest.Record("a.txt", 0, "Durée: 173 jours", 0.1, 0.9)}))
	require.NoError(t, s.Close())

	reopened, err := Open(path, "data")
	require.NoError(t, err)
	defer reopened.Close()

	// Dimension is recovered from the collection row.
	require.NoError(t, reopened.InsertBatch(ctx, []domain.EmbeddingRecord{storetest.Record("b.txt", 0, "b", 1, 0)}))
	got, err := reopened.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float64{0.1, 0.9}, got[0].Vector)
	assert.True(t, got[0].Passage.Metadata.HasCurrency)
}

func TestCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "factrag.db")

	prod, err := Open(path, "data")
	require.NoError(t, err)
	defer prod.Close()
	test, err := Open(path, "data_test")
	require.NoError(t, err)
	defer test.Close()

	require.NoError(t, prod.Init(ctx, 2))
	require.NoError(t, test.Init(ctx, 3))
	require.NoError(t, prod.InsertBatch(ctx, []domain.EmbeddingRecord{storetest.Record("a.txt", 0, "a", 1, 0)}))

	n, err := test.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, test.Clear(ctx))

	n, err = prod.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFloat64BlobRoundTrip(t *testing.T) {
	v := []float64{0, -1.5, 3.25, 1e-300}
	assert.Equal(t, v, bytesToFloat64Slice(float64SliceToBytes(v)))
	assert.Empty(t, bytesToFloat64Slice(nil))
}
