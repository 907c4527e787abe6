package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factrag/internal/domain"
	"factrag/internal/vectorstore/storetest"
)

type fakePoint struct {
	ID      string          `json:"id"`
	Vector  []float64       `json:"vector"`
	Payload json.RawMessage `json:"payload"`
	source  string
}

type fakeCollection struct {
	size   int
	points map[string]fakePoint
}

// fakeQdrant implements the subset of the Qdrant REST API used by Storage.
type fakeQdrant struct {
	mu          sync.Mutex
	apiKey      string
	collections map[string]*fakeCollection
	scrollLimit int
}

func newFakeQdrant(apiKey string) *fakeQdrant {
	return &fakeQdrant{apiKey: apiKey, collections: map[string]*fakeCollection{}, scrollLimit: 2}
}

func writeResult(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.apiKey != "" && r.Header.Get("api-key") != f.apiKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 1 && parts[0] == "collections" {
		writeResult(w, map[string]any{"collections": []any{}})
		return
	}
	if len(parts) < 2 || parts[0] != "collections" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	name := parts[1]
	col := f.collections[name]

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			if col == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeResult(w, map[string]any{"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": col.size}}}})
		case http.MethodPut:
			if col != nil {
				w.WriteHeader(http.StatusConflict)
				return
			}
			var body struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.collections[name] = &fakeCollection{size: body.Vectors.Size, points: map[string]fakePoint{}}
			writeResult(w, true)
		case http.MethodDelete:
			delete(f.collections, name)
			writeResult(w, col != nil)
		}
		return
	}
	if col == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch parts[len(parts)-1] {
	case "points":
		var body struct {
			Points []fakePoint `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, p := range body.Points {
			if len(p.Vector) != col.size {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			var payload struct {
				Source string `json:"source"`
			}
			_ = json.Unmarshal(p.Payload, &payload)
			p.source = payload.Source
			col.points[p.ID] = p
		}
		writeResult(w, map[string]any{"status": "completed"})
	case "scroll":
		var body struct {
			Limit  int     `json:"limit"`
			Offset *string `json:"offset"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		ids := make([]string, 0, len(col.points))
		for id := range col.points {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		start := 0
		if body.Offset != nil {
			start = sort.SearchStrings(ids, *body.Offset)
		}
		end := min(start+f.scrollLimit, len(ids))
		page := make([]fakePoint, 0, end-start)
		for _, id := range ids[start:end] {
			page = append(page, col.points[id])
		}
		var next any
		if end < len(ids) {
			next = ids[end]
		}
		writeResult(w, map[string]any{"points": page, "next_page_offset": next})
	case "count":
		writeResult(w, map[string]any{"count": len(col.points)})
	case "delete":
		var body struct {
			Filter struct {
				Must []struct {
					Key   string `json:"key"`
					Match struct {
						Any []string `json:"any"`
					} `json:"match"`
				} `json:"must"`
			} `json:"filter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, cond := range body.Filter.Must {
			for id, p := range col.points {
				for _, src := range cond.Match.Any {
					if cond.Key == "source" && p.source == src {
						delete(col.points, id)
					}
				}
			}
		}
		writeResult(w, map[string]any{"status": "completed"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestStorage(t *testing.T, fake *fakeQdrant, apiKey string) *Storage {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewStorage(Config{URL: srv.URL, APIKey: apiKey, Collection: "data"})
}

func TestStorage(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return newTestStorage(t, newFakeQdrant("key"), "key")
	})
}

func TestPing(t *testing.T) {
	s := newTestStorage(t, newFakeQdrant(""), "")
	assert.NoError(t, s.Ping(context.Background()))

	down := NewStorage(Config{URL: "http://127.0.0.1:1", Collection: "data"})
	assert.Error(t, down.Ping(context.Background()))
}

func TestAPIKeyIsSent(t *testing.T) {
	s := newTestStorage(t, newFakeQdrant("secret"), "wrong")
	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestMissingCollectionReadsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newFakeQdrant(""), "")

	got, err := s.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, s.Clear(ctx))
}

func TestDimensionRecoveredFromServer(t *testing.T) {
	ctx := context.Background()
	fake := newFakeQdrant("")
	first := newTestStorage(t, fake, "")
	require.NoError(t, first.Init(ctx, 2))

	second := NewStorage(Config{URL: first.url, Collection: "data"})
	require.NoError(t, second.InsertBatch(ctx, []domain.EmbeddingRecord{storetest.Record("a.txt", 0, "a", 1, 0)}))
	n, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPointIDsAreStable(t *testing.T) {
	p := domain.Passage{SourceID: "a.txt", Index: 3}
	assert.Equal(t, p.PointID(), p.PointID())
	assert.NotEqual(t, p.PointID(), domain.Passage{SourceID: "a.txt", Index: 4}.PointID())
	assert.Len(t, p.PointID(), 36)
}
