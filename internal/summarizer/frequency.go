package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"factrag/internal/chunker"
)

// factBoost multiplies the score of sentences holding a protected span.
const factBoost = 1.5

// FrequencySummarizer ranks sentences by word frequency (stopwords filtered)
// and favours sentences that state a figure or a date.
type FrequencySummarizer struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
	segmenter    *chunker.Segmenter
	detector     *chunker.SpanDetector
	lower        language.Tag
}

// NewFrequencySummarizer creates a key-facts summarizer for locale.
func NewFrequencySummarizer(locale string) *FrequencySummarizer {
	seg := chunker.NewSegmenter(locale)
	return &FrequencySummarizer{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
		segmenter:    seg,
		detector:     chunker.NewSpanDetector(),
		lower:        seg.Locale(),
	}
}

// Summarize returns up to maxSentences sentences in document order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	var sentences []string
	for _, sent := range s.segmenter.Segment(text) {
		// annotation lines carry no facts of their own
		if strings.HasPrefix(sent, "[SECTION") || strings.HasPrefix(sent, "[NOTE") {
			continue
		}
		sentences = append(sentences, sent)
	}
	if len(sentences) == 0 {
		return strings.TrimSpace(text), nil
	}
	// Compute word frequencies
	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			freq[tok]++
		}
	}
	// Normalize frequencies
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		sscore := 0.0
		for _, tok := range toks {
			sscore += freq[tok]
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(toks)); l > 0 {
			sscore /= math.Sqrt(l)
		}
		if len(s.detector.Detect(sent)) > 0 {
			sscore *= factBoost
		}
		scores[i] = pair{i, sscore}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	maxSentences = min(maxSentences, len(scores))
	// Keep document order among selected
	selected := make([]int, maxSentences)
	for i := 0; i < maxSentences; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, maxSentences)
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " "), nil
}

func (s *FrequencySummarizer) tokens(text string) []string {
	raw := s.tokenPattern.FindAllString(cases.Lower(s.lower).String(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, ok := s.stopwords[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"le", "la", "les", "l", "un", "une", "des", "du", "de", "d", "et", "ou", "que", "qui", "ce", "cette", "ces", "est", "sont", "au", "aux", "en", "par", "pour", "sur", "dans", "avec", "se", "sa", "son", "ses", "il", "elle", "ils", "elles", "on", "pas", "ne", "plus",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
