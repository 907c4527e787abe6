package preprocess

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	StatisticalMarker = "[SECTION: STATISTICAL]"
	PreventionMarker  = "[SECTION: PREVENTION]"
	notePrefix        = "[NOTE"
)

var (
	statisticalLexicon = []string{
		"chiffres clés", "chiffres-clés", "chiffres clefs", "statistique", "données chiffrées", "en chiffres",
		"key figures", "statistics", "statistical", "numeric data", "in numbers",
	}
	preventionLexicon = []string{
		"prévention", "prévenir", "éviter", "se prémunir", "précaution",
		"prevention", "prevent", "avoid", "precaution",
	}

	// numberToken matches a number with optional thousands grouping.
	numberToken = regexp.MustCompile(`\d{1,3}(?:[ \x{00A0}\x{202F}]\d{3})+(?:[.,]\d+)?|\d+(?:[.,]\d+)?`)
)

var notes = map[string]string{
	"fr": "[NOTE: cette ligne contient plusieurs valeurs numériques (%s) ; vérifier à quel libellé chaque valeur se rapporte]",
	"en": "[NOTE: this line holds several numeric values (%s); check which label each value belongs to]",
}

// Annotator tags statistical and prevention content with section markers and
// flags lines carrying several numeric values.
type Annotator struct {
	locale language.Tag
	note   string
}

// NewAnnotator returns an annotator whose notes and case folding follow locale.
// Unknown locales use French notes.
func NewAnnotator(locale string) *Annotator {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.French
	}
	base, _ := tag.Base()
	note, ok := notes[base.String()]
	if !ok {
		note = notes["fr"]
	}
	return &Annotator{locale: tag, note: note}
}

// Annotate prepends section markers (statistical first) and inserts a note
// line after every line holding two or more distinct numbers.
func (a *Annotator) Annotate(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	statistical, prevention := a.Sections(text)

	var b strings.Builder
	if statistical && !strings.Contains(text, StatisticalMarker) {
		b.WriteString(StatisticalMarker)
		b.WriteByte('\n')
	}
	if prevention && !strings.Contains(text, PreventionMarker) {
		b.WriteString(PreventionMarker)
		b.WriteByte('\n')
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		b.WriteString(line)
		if values := distinctNumbers(line); len(values) >= 2 && !strings.HasPrefix(strings.TrimSpace(line), notePrefix) {
			b.WriteByte('\n')
			b.WriteString(fmt.Sprintf(a.note, strings.Join(values, ", ")))
		}
		if i < len(lines)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Sections reports whether text reads as statistical or prevention content,
// either from the lexicons or from markers already present.
func (a *Annotator) Sections(text string) (statistical, prevention bool) {
	lower := cases.Lower(a.locale).String(text)
	statistical = strings.Contains(text, StatisticalMarker) || containsAny(lower, statisticalLexicon)
	prevention = strings.Contains(text, PreventionMarker) || containsAny(lower, preventionLexicon)
	return statistical, prevention
}

// Annotate applies a French annotator to text.
func Annotate(text string) string {
	return NewAnnotator("fr").Annotate(text)
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func distinctNumbers(line string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, tok := range numberToken.FindAllString(line, -1) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
