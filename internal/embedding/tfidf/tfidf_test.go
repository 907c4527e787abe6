package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var corpus = []string{
	"Le nombre de litiges déclarés est de 55.",
	"Le préjudice médian s'élève à 2 050 euros.",
	"La durée moyenne de résolution est de 173 jours.",
}

func TestEmbedRequiresPrepare(t *testing.T) {
	_, err := NewEmbedder().Embed(context.Background(), "litiges")
	assert.Error(t, err)
}

func TestPrepareRejectsEmptyCorpus(t *testing.T) {
	assert.Error(t, NewEmbedder().Prepare(nil))
	assert.Error(t, NewEmbedder().Prepare([]string{"le la les"}))
}

func TestEmbedIsNormalized(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))

	v, err := e.Embed(context.Background(), "litiges déclarés")
	require.NoError(t, err)
	require.Len(t, v, e.Dimension())

	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestEmbedUnknownTermsIsZero(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))

	v, err := e.Embed(context.Background(), "zebra")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestTokensKeepNumbersAndDropStopwords(t *testing.T) {
	e := NewEmbedder()
	assert.Equal(t, []string{"durée", "173", "jours"}, e.Tokens("La durée est de 173 jours"))
	assert.Equal(t, []string{"préjudice"}, e.Tokens("PRÉJUDICE"))
}

func TestEmbedHonoursContext(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Embed(ctx, "litiges")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCorpusFitted(t *testing.T) {
	assert.True(t, NewEmbedder().CorpusFitted())
}
