package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeEmpty(t *testing.T) {
	got, err := NewFrequencySummarizer("fr").Summarize("   ", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSummarizeShortTextKeepsEverything(t *testing.T) {
	text := "Le litige est clos. Le dossier est archivé."
	got, err := NewFrequencySummarizer("fr").Summarize(text, 5)
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

func TestSummarizePrefersFacts(t *testing.T) {
	text := "Le litige commercial reste fréquent. " +
		"Le litige commercial coûte 2 050 € en moyenne. " +
		"Le litige commercial inquiète les dirigeants."

	got, err := NewFrequencySummarizer("fr").Summarize(text, 1)
	require.NoError(t, err)
	assert.Equal(t, "Le litige commercial coûte 2 050 € en moyenne.", got)
}

func TestSummarizeKeepsDocumentOrder(t *testing.T) {
	text := "Premier constat: 55 litiges en 2023. Une phrase sans intérêt. Dernier constat: 173 jours de délai."
	got, err := NewFrequencySummarizer("fr").Summarize(text, 2)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "Premier constat"))
	assert.True(t, strings.HasSuffix(got, "173 jours de délai."))
}

func TestSummarizeSkipsAnnotations(t *testing.T) {
	text := "[SECTION: STATISTICAL]\nLe préjudice médian atteint 2 050 €."
	got, err := NewFrequencySummarizer("fr").Summarize(text, 5)
	require.NoError(t, err)
	assert.Equal(t, "Le préjudice médian atteint 2 050 €.", got)
}
