package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factrag/internal/config"
)

func TestNewTFIDF(t *testing.T) {
	e, err := New(config.EmbedderConfig{Type: "tfidf"})
	require.NoError(t, err)
	assert.Equal(t, "tfidf", e.Name())
	assert.True(t, IsCorpusFitted(e))
}

func TestNewOpenAI(t *testing.T) {
	t.Setenv("FACTRAG_KEY", "sk-test")
	e, err := New(config.EmbedderConfig{Type: "openai", OpenAI: &config.OpenAIEmbedderConfig{APIKeyEnv: "FACTRAG_KEY"}})
	require.NoError(t, err)
	assert.Equal(t, "openai", e.Name())
	assert.False(t, IsCorpusFitted(e))
}

func TestNewErrors(t *testing.T) {
	_, err := New(config.EmbedderConfig{Type: "openai"})
	assert.Error(t, err)
	_, err = New(config.EmbedderConfig{Type: "word2vec"})
	assert.Error(t, err)
}
