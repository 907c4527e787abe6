package chunker

import (
	"regexp"
	"sort"
)

// SpanKind tells what an atomic fact in the text represents.
type SpanKind int

const (
	SpanNumber SpanKind = iota
	SpanDate
)

func (k SpanKind) String() string {
	switch k {
	case SpanNumber:
		return "NUMBER"
	case SpanDate:
		return "DATE"
	default:
		return "UNKNOWN"
	}
}

// ProtectedSpan is a half-open byte range [Start, End) that must never be cut
// by a passage boundary.
type ProtectedSpan struct {
	Start int
	End   int
	Kind  SpanKind
}

// Contains reports whether offset lies strictly inside the span.
func (s ProtectedSpan) Contains(offset int) bool {
	return s.Start < offset && offset < s.End
}

// groupedNumber matches a digit run optionally grouped by thousands with
// regular, non-breaking or narrow non-breaking spaces ("2 050").
const groupedNumber = `\d+(?:[ \x{00A0}\x{202F}]\d{3})*(?:[.,]\d+)?`

type spanRule struct {
	kind    SpanKind
	pattern *regexp.Regexp
}

var spanRules = []spanRule{
	// number + currency or percent symbol
	{SpanNumber, regexp.MustCompile(groupedNumber + `\s*[€$£%]`)},
	// number + unit word (French and English)
	{SpanNumber, regexp.MustCompile(`(?i)` + groupedNumber + `\s*(?:euros?|eur|jours?|days?)\b`)},
	// YYYY-MM-DD, YYYY/MM/DD
	{SpanDate, regexp.MustCompile(`\b\d{4}[-/]\d{1,2}[-/]\d{1,2}\b`)},
	// DD-MM-YYYY, DD/MM/YYYY
	{SpanDate, regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{4}\b`)},
	// "in 2023", "en 2023"
	{SpanDate, regexp.MustCompile(`(?i)\b(?:in|en)\s+\d{4}\b`)},
	// "2023-2024"
	{SpanDate, regexp.MustCompile(`\b\d{4}\s*[-–]\s*\d{4}\b`)},
}

// SpanDetector finds protected entity spans using pattern rules.
type SpanDetector struct {
	rules []spanRule
}

// NewSpanDetector returns a detector with the default French/English rules.
func NewSpanDetector() *SpanDetector {
	return &SpanDetector{rules: spanRules}
}

// Detect returns every match of every rule ordered by start offset.
// Overlapping matches from different rules are all kept.
func (d *SpanDetector) Detect(text string) []ProtectedSpan {
	var spans []ProtectedSpan
	for _, rule := range d.rules {
		for _, loc := range rule.pattern.FindAllStringIndex(text, -1) {
			spans = append(spans, ProtectedSpan{Start: loc[0], End: loc[1], Kind: rule.kind})
		}
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})
	return spans
}

// insideAny reports whether offset falls strictly inside at least one span.
func insideAny(spans []ProtectedSpan, offset int) bool {
	for _, s := range spans {
		if s.Start >= offset {
			break
		}
		if s.Contains(offset) {
			return true
		}
	}
	return false
}
