package chunker

import (
	"strings"
	"unicode/utf8"

	"factrag/internal/domain"
)

const (
	DefaultMaxSize = 1000
	DefaultOverlap = 200
	DefaultLocale  = "fr"
)

// EntityChunker splits text into bounded, overlapping passages that never cut
// a protected span. The size bound is a soft target; span integrity is not.
type EntityChunker struct {
	maxSize  int
	overlap  int
	detector *SpanDetector
	splitter SentenceSplitter
}

// Option configures an EntityChunker.
type Option func(*EntityChunker)

// WithSplitter replaces the sentence splitter.
func WithSplitter(s SentenceSplitter) Option {
	return func(c *EntityChunker) {
		if s != nil {
			c.splitter = s
		}
	}
}

// WithDetector replaces the span detector.
func WithDetector(d *SpanDetector) Option {
	return func(c *EntityChunker) {
		if d != nil {
			c.detector = d
		}
	}
}

// WithLocale selects the segmentation locale.
func WithLocale(locale string) Option {
	return func(c *EntityChunker) {
		c.splitter = NewSegmenter(locale)
	}
}

func NewEntityChunker(maxSize, overlap int, opts ...Option) *EntityChunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 {
		overlap = 0
	}
	c := &EntityChunker{
		maxSize:  maxSize,
		overlap:  overlap,
		detector: NewSpanDetector(),
		splitter: NewSegmenter(DefaultLocale),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk splits text with default detector and French segmentation.
func Chunk(text string, maxSize, overlap int) []string {
	return NewEntityChunker(maxSize, overlap).Chunk(text)
}

// Chunk returns passage contents in document order. Empty input yields no
// passages. Sizes are measured in characters (runes).
func (c *EntityChunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= c.maxSize {
		return []string{text}
	}

	spans := c.detector.Detect(text)
	sentences := c.splitter.Split(text)
	if len(sentences) == 0 {
		return []string{text}
	}

	starts := make(map[int]struct{}, len(sentences))
	for _, sent := range sentences {
		starts[sent.Start] = struct{}{}
	}

	var out []string
	emit := func(start, end int) {
		if content := strings.TrimSpace(text[start:end]); content != "" {
			out = append(out, content)
		}
	}

	bufStart, bufEnd := sentences[0].Start, sentences[0].End
	for _, sent := range sentences[1:] {
		if utf8.RuneCountInString(text[bufStart:sent.End]) <= c.maxSize {
			bufEnd = sent.End
			continue
		}
		if insideAny(spans, bufEnd) {
			bufEnd = sent.End
			continue
		}
		emit(bufStart, bufEnd)
		bufStart = c.overlapStart(text, spans, starts, bufStart, bufEnd, sent.Start)
		bufEnd = sent.End
	}
	emit(bufStart, bufEnd)
	return out
}

// overlapStart picks where the next buffer begins: at the last complete
// sentence found in the trailing overlap window of the closed buffer, or at
// the triggering sentence when the window holds at most one sentence. The
// seed must coincide with a sentence start of the segmentation
// and must not fall inside a protected span.
func (c *EntityChunker) overlapStart(text string, spans []ProtectedSpan, starts map[int]struct{}, bufStart, bufEnd, trigger int) int {
	if c.overlap == 0 {
		return trigger
	}
	tailStart := runeSuffixStart(text[bufStart:bufEnd], c.overlap) + bufStart
	tail := c.splitter.Split(text[tailStart:bufEnd])
	if len(tail) <= 1 {
		return trigger
	}
	seed := tailStart + tail[len(tail)-1].Start
	if _, ok := starts[seed]; !ok || seed < bufStart || insideAny(spans, seed) {
		return trigger
	}
	return seed
}

// runeSuffixStart returns the byte offset in s where its last n runes begin.
func runeSuffixStart(s string, n int) int {
	i := len(s)
	for n > 0 && i > 0 {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
		n--
	}
	return i
}

// ChunkDocument chunks a document into passages with sequential indexes.
// Metadata is left zero; it is attached by a separate step.
func (c *EntityChunker) ChunkDocument(doc domain.Document) []domain.Passage {
	contents := c.Chunk(doc.Content)
	passages := make([]domain.Passage, len(contents))
	for i, content := range contents {
		passages[i] = domain.Passage{
			SourceID:   doc.Source,
			Content:    content,
			Index:      i,
			TotalCount: len(contents),
		}
	}
	return passages
}
