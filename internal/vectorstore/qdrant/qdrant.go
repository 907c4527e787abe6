package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"factrag/internal/domain"
)

// scrollPage is the number of points fetched per scroll request.
const scrollPage = 256

var errNotFound = errors.New("not found")

// Storage is a minimal REST client to Qdrant.
// It creates the collection with cosine distance if missing. Point ids are
// UUIDs derived from source and passage index.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu        sync.Mutex
	dimension int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Name() string { return "qdrant" }

// Ping checks the server answers.
func (s *Storage) Ping(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, s.url+"/collections", nil, nil)
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidDimension, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.collectionSize(ctx)
	switch {
	case errors.Is(err, errNotFound):
	case err != nil:
		return err
	case current == dimension:
		s.dimension = dimension
		return nil
	default:
		n, err := s.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: collection %s holds %d-dimensional vectors, got %d",
				domain.ErrInvalidDimension, s.collection, current, dimension)
		}
		if err := s.dropCollection(ctx); err != nil {
			return err
		}
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return err
	}
	s.dimension = dimension
	return nil
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload domain.Passage `json:"payload"`
}

func (s *Storage) InsertBatch(ctx context.Context, records []domain.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	dim, err := s.ensureDimension(ctx)
	if err != nil {
		return err
	}
	points := make([]point, len(records))
	for i, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: expected %d, got %d", domain.ErrInvalidDimension, dim, len(r.Vector))
		}
		points[i] = point{ID: r.Passage.PointID(), Vector: r.Vector, Payload: r.Passage}
	}
	return s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (s *Storage) FetchAll(ctx context.Context) ([]domain.EmbeddingRecord, error) {
	var out []domain.EmbeddingRecord
	var offset any
	for {
		req := map[string]any{
			"limit":        scrollPage,
			"with_payload": true,
			"with_vector":  true,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []point `json:"points"`
				NextPageOffset any     `json:"next_page_offset"`
			} `json:"result"`
		}
		err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &resp)
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			out = append(out, domain.EmbeddingRecord{Passage: p.Payload, Vector: p.Vector})
		}
		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Passage.SourceID != out[j].Passage.SourceID {
			return out[i].Passage.SourceID < out[j].Passage.SourceID
		}
		return out[i].Passage.Index < out[j].Passage.Index
	})
	return out, nil
}

func (s *Storage) DeleteSources(ctx context.Context, sources []string) error {
	if len(sources) == 0 {
		return nil
	}
	body := map[string]any{
		"filter": map[string]any{
			"must": []any{
				map[string]any{"key": "source", "match": map[string]any{"any": sources}},
			},
		},
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Clear drops the collection.
func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dropCollection(ctx); err != nil {
		return err
	}
	s.dimension = 0
	return nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) ensureDimension(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension > 0 {
		return s.dimension, nil
	}
	size, err := s.collectionSize(ctx)
	if errors.Is(err, errNotFound) {
		return 0, domain.ErrNotInitialized
	}
	if err != nil {
		return 0, err
	}
	s.dimension = size
	return size, nil
}

func (s *Storage) collectionSize(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Config.Params.Vectors.Size, nil
}

func (s *Storage) dropCollection(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// do sends body as JSON and decodes the response into out when non-nil.
// A 404 is reported as errNotFound.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("qdrant %s %s: %w", method, url, errNotFound)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
