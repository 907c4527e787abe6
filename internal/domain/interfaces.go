package domain

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
)

var (
	// ErrNoDocuments is returned when an ingestion run finds nothing loadable.
	ErrNoDocuments = errors.New("no documents found")
	// ErrInvalidDimension reports a non-positive dimension or a vector whose
	// length differs from the store's.
	ErrInvalidDimension = errors.New("invalid dimension")
	// ErrNotInitialized is returned by stores written to before Init.
	ErrNotInitialized = errors.New("store not initialized")
)

// ContentType classifies a passage by the vocabulary it carries.
type ContentType string

const (
	ContentGeneral     ContentType = "general"
	ContentStatistical ContentType = "statistical"
	ContentPrevention  ContentType = "prevention"
)

// Document represents a single source file loaded into the system.
type Document struct {
	Source  string
	Content string
}

// PassageMetadata is derived deterministically from a passage's content.
type PassageMetadata struct {
	SizeChars           int         `json:"size_chars"`
	HasNumbers          bool        `json:"has_numbers"`
	HasDates            bool        `json:"has_dates"`
	HasCurrency         bool        `json:"has_currency"`
	HasPercentages      bool        `json:"has_percentages"`
	HasExplicitKeyValue bool        `json:"has_explicit_key_value"`
	ContentType         ContentType `json:"content_type"`
	QualityScore        float64     `json:"quality_score"`
}

// Passage is one chunk of one document used as a retrieval unit.
type Passage struct {
	SourceID   string          `json:"source"`
	Content    string          `json:"content"`
	Index      int             `json:"chunk_index"`
	TotalCount int             `json:"total_chunks"`
	Metadata   PassageMetadata `json:"metadata"`
}

// passageNamespace scopes passage point ids.
var passageNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("factrag/passage"))

// PointID is a stable UUID derived from the source and passage index, so
// re-ingesting a passage overwrites its previous version.
func (p Passage) PointID() string {
	return uuid.NewSHA1(passageNamespace, []byte(p.SourceID+"#"+strconv.Itoa(p.Index))).String()
}

// EmbeddingRecord pairs a passage with its embedding vector.
type EmbeddingRecord struct {
	Passage Passage
	Vector  []float64
}

// Query is a search request with its embedded vector.
type Query struct {
	Text   string
	Vector []float64
}

// SearchResult represents a ranked passage with its boosted score.
type SearchResult struct {
	Passage  Passage `json:"passage"`
	Distance float64 `json:"distance"`
	Score    float64 `json:"score"`
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// CorpusFitted is implemented by embedders whose vector space depends on the
// corpus they were prepared with. Stored vectors must be rebuilt whenever the
// corpus changes.
type CorpusFitted interface {
	CorpusFitted() bool
}

// Summarizer produces a brief digest of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
