package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factrag/internal/domain"
)

func TestScore(t *testing.T) {
	long := "Le préjudice médian déclaré par les entreprises interrogées atteint 2 050 € par dossier. " +
		"La durée moyenne de résolution: 173 jours. Le taux de résolution amiable reste stable cette année."

	tests := []struct {
		name    string
		content string
		want    float64
	}{
		{"empty", "", 0},
		{"short key value", "Préjudice médian: 2 050 €.", 0.4},
		{"rich passage", long, 1.0},
		{"fragmented", "a\nb\nc\nd", 0},
		{"plain words", "bonjour tout le monde sans chiffre ni ponctuation ici et là bas encore", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.content), 1e-9)
		})
	}
}

func TestScoreIsBounded(t *testing.T) {
	for _, content := range []string{"", "x", "1:2:3!!!???...", "a\n\n\n\n\n\n"} {
		s := Score(content)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestExtractFlags(t *testing.T) {
	m := Extract("Préjudice médian: 2 050 € en 2023, soit 12 % des cas.")

	assert.True(t, m.HasNumbers)
	assert.True(t, m.HasDates)
	assert.True(t, m.HasCurrency)
	assert.True(t, m.HasPercentages)
	assert.True(t, m.HasExplicitKeyValue)
	assert.Equal(t, domain.ContentGeneral, m.ContentType)
	assert.Equal(t, 53, m.SizeChars)
}

func TestExtractWithoutFacts(t *testing.T) {
	m := Extract("Le contrat est signé par les deux parties.")

	assert.False(t, m.HasNumbers)
	assert.False(t, m.HasDates)
	assert.False(t, m.HasCurrency)
	assert.False(t, m.HasPercentages)
	assert.False(t, m.HasExplicitKeyValue)
}

func TestExtractTimeIsNotKeyValue(t *testing.T) {
	assert.False(t, Extract("12:30").HasExplicitKeyValue)
	assert.False(t, Extract("[SECTION: STATISTICAL]").HasExplicitKeyValue)
}

func TestExtractContentType(t *testing.T) {
	tests := []struct {
		content string
		want    domain.ContentType
	}{
		{"[SECTION: STATISTICAL]\nNombre de litiges: 55", domain.ContentStatistical},
		{"Les chiffres clés de l'année.", domain.ContentStatistical},
		{"Pour éviter un litige, relisez le contrat.", domain.ContentPrevention},
		{"[SECTION: PREVENTION]\nRelisez le contrat.", domain.ContentPrevention},
		{"Le contrat est signé.", domain.ContentGeneral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Extract(tt.content).ContentType, tt.content)
	}
}

func TestExtractIsPure(t *testing.T) {
	content := "Durée moyenne: 173 jours."
	assert.Equal(t, Extract(content), Extract(content))
}

func TestAttach(t *testing.T) {
	passages := []domain.Passage{{Content: "Coût: 300 €."}, {Content: "Rien."}}
	NewExtractor("fr").Attach(passages)

	assert.True(t, passages[0].Metadata.HasCurrency)
	assert.False(t, passages[1].Metadata.HasNumbers)
	assert.Equal(t, 5, passages[1].Metadata.SizeChars)
}

func TestAnalyze(t *testing.T) {
	passages := []domain.Passage{
		{SourceID: "b.txt", Content: "Préjudice médian: 2 050 €", Metadata: domain.PassageMetadata{HasNumbers: true, HasCurrency: true, QualityScore: 0.8, ContentType: domain.ContentStatistical}},
		{SourceID: "a.txt", Metadata: domain.PassageMetadata{HasNumbers: true, HasDates: true, QualityScore: 0.5}},
		{SourceID: "a.txt", Metadata: domain.PassageMetadata{HasPercentages: true, QualityScore: 0.2, ContentType: domain.ContentPrevention}},
	}

	r := Analyze(passages)

	require.Equal(t, 3, r.Passages)
	assert.Equal(t, 2, r.WithNumbers)
	assert.Equal(t, 1, r.WithDates)
	assert.Equal(t, 1, r.WithCurrency)
	assert.Equal(t, 1, r.WithPercentages)
	assert.Equal(t, 1, r.WithKeyInfo)
	assert.InDelta(t, 0.5, r.AverageQuality, 1e-9)
	assert.Equal(t, map[string]int{"high": 1, "medium": 1, "low": 1}, r.QualityBands)
	assert.Equal(t, 1, r.ContentTypes[domain.ContentGeneral])
	assert.Equal(t, 1, r.ContentTypes[domain.ContentStatistical])
	assert.Equal(t, 1, r.ContentTypes[domain.ContentPrevention])
	assert.Equal(t, []string{"a.txt", "b.txt"}, r.Sources)
}

func TestAnalyzeEmpty(t *testing.T) {
	r := Analyze(nil)
	assert.Zero(t, r.Passages)
	assert.Zero(t, r.AverageQuality)
}
