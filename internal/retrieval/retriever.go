// Package retrieval ranks stored passages against a query vector and
// re-weights the nearest ones by the facts they carry.
package retrieval

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"math"
	"sort"

	"factrag/internal/domain"
)

// ErrDimensionMismatch reports a pool whose vectors do not share the query's
// dimensionality. It signals an inconsistent pool and is never recovered.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Metric names a distance over the embedding space.
type Metric string

const (
	Cosine    Metric = "cosine"
	Euclidean Metric = "euclidean"
)

// DedupPolicy names how near-duplicate passages are detected.
type DedupPolicy string

const (
	// DedupPrefix treats passages sharing their first PrefixLength runes as duplicates.
	DedupPrefix DedupPolicy = "prefix"
	// DedupFull only merges passages with identical content.
	DedupFull DedupPolicy = "full"
)

const (
	DefaultPrefixLength = 100
	// oversample widens the nearest-neighbour window before re-ranking.
	oversample = 3
)

// Boosts are the score multipliers applied per metadata flag.
type Boosts struct {
	Numbers  float64
	Currency float64
	Dates    float64
}

var DefaultBoosts = Boosts{Numbers: 1.2, Currency: 1.3, Dates: 1.1}

// Retriever is safe for concurrent use; it holds no mutable state.
type Retriever struct {
	metric       Metric
	dedup        DedupPolicy
	prefixLength int
	boosts       Boosts
}

type Option func(*Retriever)

func WithMetric(m Metric) Option {
	return func(r *Retriever) {
		if m == Cosine || m == Euclidean {
			r.metric = m
		}
	}
}

// WithDedup selects the duplicate policy. prefixLength applies to DedupPrefix
// and is ignored when not positive.
func WithDedup(p DedupPolicy, prefixLength int) Option {
	return func(r *Retriever) {
		if p == DedupPrefix || p == DedupFull {
			r.dedup = p
		}
		if prefixLength > 0 {
			r.prefixLength = prefixLength
		}
	}
}

func WithBoosts(b Boosts) Option {
	return func(r *Retriever) { r.boosts = b }
}

func New(opts ...Option) *Retriever {
	r := &Retriever{
		metric:       Cosine,
		dedup:        DedupPrefix,
		prefixLength: DefaultPrefixLength,
		boosts:       DefaultBoosts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retriever) Metric() Metric { return r.metric }

// Retrieve returns at most k distinct passage contents, best first.
func (r *Retriever) Retrieve(query domain.Query, pool []domain.EmbeddingRecord, k int, prioritizeMetadata bool) ([]string, error) {
	ranked, err := r.Rank(query, pool, k, prioritizeMetadata)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ranked))
	for i, res := range ranked {
		out[i] = res.Passage.Content
	}
	return out, nil
}

// Rank is Retrieve with distances and boosted scores kept. The pool is read,
// never modified.
func (r *Retriever) Rank(query domain.Query, pool []domain.EmbeddingRecord, k int, prioritizeMetadata bool) ([]domain.SearchResult, error) {
	if len(pool) == 0 || k <= 0 {
		return []domain.SearchResult{}, nil
	}
	dim := len(query.Vector)
	for _, rec := range pool {
		if len(rec.Vector) != dim {
			return nil, fmt.Errorf("%w: query has %d dimensions, passage %s#%d has %d",
				ErrDimensionMismatch, dim, rec.Passage.SourceID, rec.Passage.Index, len(rec.Vector))
		}
	}

	distances := make([]float64, len(pool))
	for i, rec := range pool {
		distances[i] = r.distance(query.Vector, rec.Vector)
	}
	return r.RankDistances(pool, distances, k, prioritizeMetadata)
}

// RankDistances ranks pool from precomputed distances, distances[i] being the
// distance of pool[i] to the query. It applies the same search window,
// metadata boosts, ordering and duplicate removal as Rank.
func (r *Retriever) RankDistances(pool []domain.EmbeddingRecord, distances []float64, k int, prioritizeMetadata bool) ([]domain.SearchResult, error) {
	if len(pool) == 0 || k <= 0 {
		return []domain.SearchResult{}, nil
	}
	if len(distances) != len(pool) {
		return nil, fmt.Errorf("%d distances for a pool of %d passages", len(distances), len(pool))
	}
	nearest := make([]int, len(pool))
	for i := range nearest {
		nearest[i] = i
	}
	sort.SliceStable(nearest, func(a, b int) bool {
		return distances[nearest[a]] < distances[nearest[b]]
	})
	searchK := min(k*oversample, len(pool))

	candidates := make([]domain.SearchResult, 0, searchK)
	for _, idx := range nearest[:searchK] {
		rec := pool[idx]
		score := 1 / (1 + distances[idx])
		if prioritizeMetadata {
			score *= r.boost(rec.Passage.Metadata)
		}
		candidates = append(candidates, domain.SearchResult{
			Passage:  rec.Passage,
			Distance: distances[idx],
			Score:    score,
		})
	}
	// Stable: equal scores keep nearest-first order, then pool order.
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Score > candidates[b].Score
	})

	seen := make(map[[sha1.Size]byte]struct{}, len(candidates))
	out := make([]domain.SearchResult, 0, min(k, len(candidates)))
	for _, c := range candidates {
		if len(out) == k {
			break
		}
		fp := r.fingerprint(c.Passage.Content)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func (r *Retriever) boost(m domain.PassageMetadata) float64 {
	f := 1.0
	if m.HasNumbers {
		f *= r.boosts.Numbers
	}
	if m.HasCurrency {
		f *= r.boosts.Currency
	}
	if m.HasDates {
		f *= r.boosts.Dates
	}
	return f
}

func (r *Retriever) fingerprint(content string) [sha1.Size]byte {
	if r.dedup == DedupPrefix {
		content = runePrefix(content, r.prefixLength)
	}
	return sha1.Sum([]byte(content))
}

func (r *Retriever) distance(a, b []float64) float64 {
	if r.metric == Euclidean {
		return EuclideanDistance(a, b)
	}
	return CosineDistance(a, b)
}

// CosineDistance is 1 - cos(a, b). A zero vector is at distance 1 from
// everything.
func CosineDistance(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - math.Max(-1, math.Min(1, cos))
}

func EuclideanDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func runePrefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
