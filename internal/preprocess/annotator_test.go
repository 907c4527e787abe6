package preprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotateSectionMarkers(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		prefix string
	}{
		{"statistical", "Chiffres clés du secteur.", StatisticalMarker + "\n"},
		{"statistical english", "Key Figures for the year.", StatisticalMarker + "\n"},
		{"prevention", "Comment PRÉVENIR les litiges.", PreventionMarker + "\n"},
		{"both in order", "Statistiques et prévention.", StatisticalMarker + "\n" + PreventionMarker + "\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Annotate(tc.in)
			assert.Equal(t, tc.prefix+tc.in, got)
		})
	}
}

func TestAnnotateGeneralTextUnchanged(t *testing.T) {
	in := "Le contrat est signé par les deux parties."
	assert.Equal(t, in, Annotate(in))
	assert.Equal(t, "", Annotate(""))
}

func TestAnnotateFlagsLinesWithSeveralNumbers(t *testing.T) {
	in := "Litiges: 55 pour un préjudice de 2 050 €\nDurée: 173 jours"
	lines := strings.Split(Annotate(in), "\n")

	require.Len(t, lines, 3)
	assert.Equal(t, "Litiges: 55 pour un préjudice de 2 050 €", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "[NOTE"))
	assert.Contains(t, lines[1], "55, 2 050")
	assert.Equal(t, "Durée: 173 jours", lines[2])
}

func TestAnnotateRepeatedNumberIsNotAmbiguous(t *testing.T) {
	in := "Le seuil de 100 reste 100."
	assert.Equal(t, in, Annotate(in))
}

func TestAnnotateEnglishNote(t *testing.T) {
	got := NewAnnotator("en").Annotate("Between 12 and 40 cases")
	assert.Contains(t, got, "this line holds several numeric values (12, 40)")
}

func TestAnnotateDoesNotRepeatMarkers(t *testing.T) {
	once := Annotate("Statistiques annuelles.")
	assert.Equal(t, once, Annotate(once))
}
