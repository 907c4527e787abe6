package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentFrench(t *testing.T) {
	got := Segment(litigesText, "fr")
	assert.Equal(t, []string{
		"Le nombre de litiges déclarés en 2023 est de 55.",
		"Le préjudice médian s'élève à 2 050 € par litige.",
		"La durée moyenne de résolution est de 173 jours.",
	}, got)
}

func TestSegmentKeepsAbbreviations(t *testing.T) {
	got := Segment("M. Dupont a signé. Il part demain.", "fr")
	assert.Equal(t, []string{"M. Dupont a signé.", "Il part demain."}, got)
}

func TestSegmentDecimalsDoNotBreak(t *testing.T) {
	got := Segment("Le taux est de 2.5 points. Fin.", "en")
	assert.Equal(t, []string{"Le taux est de 2.5 points.", "Fin."}, got)
}

func TestSegmentFallbackWithoutModel(t *testing.T) {
	s := NewSegmenter("not a locale!")
	require.False(t, s.HasModel())

	got := s.Segment("Première phrase. Deuxième ! Troisième?  Fin")
	assert.Equal(t, []string{"Première phrase.", "Deuxième !", "Troisième?", "Fin"}, got)
}

func TestSegmentNeverReturnsEmpty(t *testing.T) {
	for _, locale := range []string{"fr", "en-GB", "zz-invalid-@"} {
		for _, s := range Segment("  .  \n\n Bonjour.   \n  ", locale) {
			assert.NotEmpty(t, s)
			assert.Equal(t, s, strings.TrimSpace(s))
		}
	}
}

func TestSplitOffsetsPointIntoText(t *testing.T) {
	text := "  Alpha.  Beta!\nGamma?"
	for _, s := range NewSegmenter("en").Split(text) {
		assert.Equal(t, s.Text, text[s.Start:s.End])
	}
}
