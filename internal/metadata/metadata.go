// Package metadata derives the per-passage annotations used for ranking and
// for corpus analysis.
package metadata

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"factrag/internal/domain"
	"factrag/internal/preprocess"
)

var (
	currencyPattern = regexp.MustCompile(`(?i)[€$£]|\b(?:euros?|eur|usd|gbp)\b`)
	datePattern     = regexp.MustCompile(`(?i)\b\d{4}[-/]\d{1,2}[-/]\d{1,2}\b|\b\d{1,2}[-/]\d{1,2}[-/]\d{4}\b|\b(?:in|en)\s+\d{4}\b|\b\d{4}\s*[-–]\s*\d{4}\b`)
	keyValueLine    = regexp.MustCompile(`(?m)^[^:\n\[]*\p{L}[^:\n]*:[ \t]*\S`)
)

// Extractor computes passage metadata. Lexicon matching follows the locale
// of the wrapped annotator.
type Extractor struct {
	annotator *preprocess.Annotator
}

func NewExtractor(locale string) *Extractor {
	return &Extractor{annotator: preprocess.NewAnnotator(locale)}
}

// Extract is a pure function of content.
func (e *Extractor) Extract(content string) domain.PassageMetadata {
	return domain.PassageMetadata{
		SizeChars:           utf8.RuneCountInString(content),
		HasNumbers:          digitRun.MatchString(content),
		HasDates:            datePattern.MatchString(content),
		HasCurrency:         currencyPattern.MatchString(content),
		HasPercentages:      strings.Contains(content, "%"),
		HasExplicitKeyValue: keyValueLine.MatchString(content),
		ContentType:         e.classify(content),
		QualityScore:        Score(content),
	}
}

// Attach fills the metadata of every passage in place.
func (e *Extractor) Attach(passages []domain.Passage) {
	for i := range passages {
		passages[i].Metadata = e.Extract(passages[i].Content)
	}
}

func (e *Extractor) classify(content string) domain.ContentType {
	statistical, prevention := e.annotator.Sections(content)
	switch {
	case statistical:
		return domain.ContentStatistical
	case prevention:
		return domain.ContentPrevention
	default:
		return domain.ContentGeneral
	}
}

// Extract runs a French extractor over content.
func Extract(content string) domain.PassageMetadata {
	return NewExtractor("fr").Extract(content)
}
