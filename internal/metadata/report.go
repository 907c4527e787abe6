package metadata

import (
	"regexp"
	"sort"

	"factrag/internal/domain"
)

const (
	HighQuality   = 0.7
	MediumQuality = 0.4
)

// keyInfoPatterns match the facts most often asked about in dispute reports.
var keyInfoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d+\s+litiges?\s+déclarés?`),
	regexp.MustCompile(`(?i)nombre\s+de\s+litiges`),
	regexp.MustCompile(`(?i)durée\s+moyenne`),
	regexp.MustCompile(`(?i)préjudice\s+médian`),
	regexp.MustCompile(`(?i)\d+\s+(?:jours|days)`),
	regexp.MustCompile(`\d+\s*€`),
}

// EntityReport summarizes the factual content of a set of passages.
type EntityReport struct {
	Passages        int                        `json:"passages"`
	WithNumbers     int                        `json:"with_numbers"`
	WithDates       int                        `json:"with_dates"`
	WithCurrency    int                        `json:"with_currency"`
	WithPercentages int                        `json:"with_percentages"`
	WithKeyValue    int                        `json:"with_key_value"`
	WithKeyInfo     int                        `json:"with_key_info"`
	AverageQuality  float64                    `json:"average_quality"`
	QualityBands    map[string]int             `json:"quality_bands"`
	ContentTypes    map[domain.ContentType]int `json:"content_types"`
	Sources         []string                   `json:"sources"`
}

// Band names the quality band of a score.
func Band(score float64) string {
	switch {
	case score >= HighQuality:
		return "high"
	case score >= MediumQuality:
		return "medium"
	default:
		return "low"
	}
}

// Analyze aggregates passage metadata. Passages are expected to carry
// metadata already; see Extractor.Attach.
func Analyze(passages []domain.Passage) EntityReport {
	r := EntityReport{
		Passages:     len(passages),
		QualityBands: map[string]int{"high": 0, "medium": 0, "low": 0},
		ContentTypes: map[domain.ContentType]int{},
	}
	sources := map[string]struct{}{}
	total := 0.0
	for _, p := range passages {
		m := p.Metadata
		if m.HasNumbers {
			r.WithNumbers++
		}
		if m.HasDates {
			r.WithDates++
		}
		if m.HasCurrency {
			r.WithCurrency++
		}
		if m.HasPercentages {
			r.WithPercentages++
		}
		if m.HasExplicitKeyValue {
			r.WithKeyValue++
		}
		if hasKeyInfo(p.Content) {
			r.WithKeyInfo++
		}
		ct := m.ContentType
		if ct == "" {
			ct = domain.ContentGeneral
		}
		r.ContentTypes[ct]++
		r.QualityBands[Band(m.QualityScore)]++
		total += m.QualityScore
		sources[p.SourceID] = struct{}{}
	}
	if len(passages) > 0 {
		r.AverageQuality = total / float64(len(passages))
	}
	for s := range sources {
		r.Sources = append(r.Sources, s)
	}
	sort.Strings(r.Sources)
	return r
}

func hasKeyInfo(content string) bool {
	for _, re := range keyInfoPatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}
