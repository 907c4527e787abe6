package service

import (
	"math"
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"factrag/internal/domain"
	"factrag/internal/retrieval"
)

var unicodeWordRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// lexicalSearch ranks the pool by token overlap with the query, through the
// retriever so metadata boosts and duplicate removal still apply. Distance is
// 1 - overlap. Passages sharing no token are left out.
func lexicalSearch(r *retrieval.Retriever, query string, pool []domain.EmbeddingRecord, k int, prioritizeMetadata bool) ([]domain.SearchResult, error) {
	qset := toTokenSet(query)
	var (
		matched   []domain.EmbeddingRecord
		distances []float64
	)
	for _, rec := range pool {
		if overlap := overlapOchiai(qset, rec.Passage.Content); overlap > 0 {
			matched = append(matched, rec)
			distances = append(distances, 1-overlap)
		}
	}
	return r.RankDistances(matched, distances, k, prioritizeMetadata)
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(cases.Lower(language.Und).String(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over token sets.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	tset := toTokenSet(text)
	if len(qset) == 0 || len(tset) == 0 {
		return 0
	}
	inter := 0
	for t := range tset {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(tset)))
}
