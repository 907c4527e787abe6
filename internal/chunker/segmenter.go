package chunker

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
	"golang.org/x/text/language"
)

// Sentence is a trimmed sentence together with its byte range in the text it
// was segmented from.
type Sentence struct {
	Text  string
	Start int
	End   int
}

// SentenceSplitter splits text into ordered, non-empty sentences.
type SentenceSplitter interface {
	Split(text string) []Sentence
}

// abbreviations that end with a period but do not end a sentence, per
// supported base language. A language listed here has a boundary model.
var abbreviations = map[string][]string{
	"fr": {"M.", "MM.", "Mme.", "Mlle.", "Dr.", "Pr.", "art.", "Art.", "al.", "cf.", "p.", "pp.", "n°.", "av.", "bd.", "env.", "min.", "max.", "éd.", "vol.", "ex."},
	"en": {"Mr.", "Mrs.", "Ms.", "Dr.", "Prof.", "St.", "No.", "no.", "vs.", "e.g.", "i.e.", "approx.", "Fig.", "fig.", "Inc.", "Ltd.", "Jr.", "Sr."},
	"de": {"Dr.", "Hr.", "Fr.", "bzw.", "ca.", "z.B.", "usw.", "Nr.", "S."},
	"es": {"Sr.", "Sra.", "Dr.", "Dra.", "pág.", "núm."},
	"it": {"Sig.", "Dott.", "pag.", "ecc."},
}

var fallbackBoundary = regexp.MustCompile(`[.!?]+\s+`)

// Segmenter splits text into sentences using Unicode sentence boundary rules
// (UAX #29) tuned with a per-locale abbreviation list. Locales without a
// model fall back to splitting on '.', '!' or '?' followed by whitespace.
type Segmenter struct {
	locale        language.Tag
	model         bool
	abbreviations map[string]struct{}
}

// NewSegmenter builds a segmenter for a BCP 47 locale such as "fr" or "en-GB".
func NewSegmenter(locale string) *Segmenter {
	s := &Segmenter{locale: language.Und}
	tag, err := language.Parse(locale)
	if err != nil {
		return s
	}
	s.locale = tag
	base, _ := tag.Base()
	list, ok := abbreviations[base.String()]
	if !ok {
		return s
	}
	s.model = true
	s.abbreviations = make(map[string]struct{}, len(list))
	for _, a := range list {
		s.abbreviations[a] = struct{}{}
	}
	return s
}

// Locale returns the parsed locale tag.
func (s *Segmenter) Locale() language.Tag { return s.locale }

// HasModel reports whether a boundary model is available for the locale.
func (s *Segmenter) HasModel() bool { return s.model }

// Segment returns the trimmed, non-empty sentences of text.
func (s *Segmenter) Segment(text string) []string {
	sentences := s.Split(text)
	out := make([]string, len(sentences))
	for i, sent := range sentences {
		out[i] = sent.Text
	}
	return out
}

// Split returns sentences with their byte offsets into text.
func (s *Segmenter) Split(text string) []Sentence {
	if !s.model {
		return splitFallback(text)
	}
	return s.mergeAbbreviations(text, splitUniseg(text))
}

// Segment splits text for the given locale with a fresh segmenter.
func Segment(text, locale string) []string {
	return NewSegmenter(locale).Segment(text)
}

func splitUniseg(text string) []Sentence {
	var out []Sentence
	state := -1
	offset := 0
	rest := text
	for len(rest) > 0 {
		var sentence string
		sentence, rest, state = uniseg.FirstSentenceInString(rest, state)
		if sent, ok := trimmedSentence(text, offset, offset+len(sentence)); ok {
			out = append(out, sent)
		}
		offset += len(sentence)
	}
	return out
}

func splitFallback(text string) []Sentence {
	var out []Sentence
	start := 0
	for _, loc := range fallbackBoundary.FindAllStringIndex(text, -1) {
		if sent, ok := trimmedSentence(text, start, loc[1]); ok {
			out = append(out, sent)
		}
		start = loc[1]
	}
	if sent, ok := trimmedSentence(text, start, len(text)); ok {
		out = append(out, sent)
	}
	return out
}

// mergeAbbreviations glues a sentence to its successor when it ends with a
// known abbreviation of the locale.
func (s *Segmenter) mergeAbbreviations(text string, sentences []Sentence) []Sentence {
	if len(sentences) < 2 {
		return sentences
	}
	out := make([]Sentence, 0, len(sentences))
	cur := sentences[0]
	for _, next := range sentences[1:] {
		if s.endsWithAbbreviation(cur.Text) {
			cur = Sentence{Text: text[cur.Start:next.End], Start: cur.Start, End: next.End}
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

func (s *Segmenter) endsWithAbbreviation(sentence string) bool {
	fields := strings.Fields(sentence)
	if len(fields) == 0 {
		return false
	}
	last := strings.TrimLeftFunc(fields[len(fields)-1], func(r rune) bool {
		return unicode.IsPunct(r) && r != '.'
	})
	_, ok := s.abbreviations[last]
	return ok
}

func trimmedSentence(text string, start, end int) (Sentence, bool) {
	raw := text[start:end]
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Sentence{}, false
	}
	lead := strings.Index(raw, trimmed)
	return Sentence{Text: trimmed, Start: start + lead, End: start + lead + len(trimmed)}, true
}
