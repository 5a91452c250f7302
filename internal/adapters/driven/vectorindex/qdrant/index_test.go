package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

// fakeQdrant records requests and serves canned responses per route.
type fakeQdrant struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]map[string]any
	handlers map[string]func(w http.ResponseWriter)
	apiKeys  []string
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{
		bodies:   make(map[string]map[string]any),
		handlers: make(map[string]func(w http.ResponseWriter)),
	}
}

func (f *fakeQdrant) on(route string, h func(w http.ResponseWriter)) {
	f.handlers[route] = h
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.requests = append(f.requests, route)
	f.bodies[route] = body
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
	h := f.handlers[route]
	f.mu.Unlock()

	if h == nil {
		_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
		return
	}
	h(w)
}

func (f *fakeQdrant) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeQdrant) firstAPIKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apiKeys[0]
}

func (f *fakeQdrant) body(route string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[route]
}

func newTestIndex(t *testing.T, fake *fakeQdrant) *Index {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return New(Config{URL: server.URL + "/", APIKey: "secret", Collection: "docs"})
}

func TestNew_Defaults(t *testing.T) {
	idx := New(Config{})
	assert.Equal(t, DefaultURL, idx.baseURL)
	assert.Equal(t, DefaultCollection, idx.Name())
	assert.NoError(t, idx.Close())
}

func TestEnsureCollection_CreatesMissing(t *testing.T) {
	fake := newFakeQdrant()
	fake.on("GET /collections/docs", func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":{"error":"Not found"}}`))
	})
	idx := newTestIndex(t, fake)

	require.NoError(t, idx.EnsureCollection(context.Background(), 384))

	assert.Equal(t, []string{
		"GET /collections/docs",
		"PUT /collections/docs",
		"PUT /collections/docs/index",
	}, fake.sent())

	vectors := fake.body("PUT /collections/docs")["vectors"].(map[string]any)
	assert.EqualValues(t, 384, vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
	assert.Equal(t, "secret", fake.firstAPIKey())
}

func TestEnsureCollection_Existing(t *testing.T) {
	fake := newFakeQdrant()
	fake.on("GET /collections/docs", func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":384,"distance":"Cosine"}}}}}`))
	})
	idx := newTestIndex(t, fake)

	require.NoError(t, idx.EnsureCollection(context.Background(), 384))
	assert.Len(t, fake.sent(), 1)

	err := idx.EnsureCollection(context.Background(), 768)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEnsureCollection_InvalidDimension(t *testing.T) {
	idx := New(Config{})
	assert.ErrorIs(t, idx.EnsureCollection(context.Background(), 0), domain.ErrInvalidInput)
}

func TestUpsert(t *testing.T) {
	fake := newFakeQdrant()
	idx := newTestIndex(t, fake)

	err := idx.Upsert(context.Background(), []domain.VectorPoint{{
		ID:     "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		Vector: []float32{0.1, 0.2},
		Payload: domain.VectorPayload{
			DocumentID: "doc-1",
			ChunkIndex: 3,
			Preview:    "extrait",
			Title:      "Règlement",
			DocType:    "text",
		},
	}})
	require.NoError(t, err)

	points := fake.body("PUT /collections/docs/points")["points"].([]any)
	require.Len(t, points, 1)
	p := points[0].(map[string]any)
	payload := p["payload"].(map[string]any)
	assert.Equal(t, "7c9e6679-7425-40de-944b-e07fc1f90ae7", p["id"])
	assert.Equal(t, "doc-1", payload["document_id"])
	assert.EqualValues(t, 3, payload["chunk_index"])
	assert.Equal(t, "extrait", payload["chunk_text"])

	require.NoError(t, idx.Upsert(context.Background(), nil))
	assert.Len(t, fake.sent(), 1, "empty upsert makes no request")
}

func TestSearch_FiltersAndSorts(t *testing.T) {
	fake := newFakeQdrant()
	fake.on("POST /collections/docs/points/search", func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"result":[
			{"id":"b","score":0.61,"payload":{"document_id":"d2","chunk_index":0,"chunk_text":"b","title":"B","doc_type":"text"}},
			{"id":"a","score":0.93,"payload":{"document_id":"d1","chunk_index":1,"chunk_text":"a","title":"A","doc_type":"text"}},
			{"id":"c","score":0.42,"payload":{"document_id":"d3","chunk_index":0,"chunk_text":"c","title":"C","doc_type":"text"}}
		]}`))
	})
	idx := newTestIndex(t, fake)

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 5, 0.5)
	require.NoError(t, err)

	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "b", hits[1].ID)
	require.NotNil(t, hits[0].Payload)
	assert.Equal(t, "d1", hits[0].Payload.DocumentID)
	assert.Equal(t, 1, hits[0].Payload.ChunkIndex)

	body := fake.body("POST /collections/docs/points/search")
	assert.EqualValues(t, 5, body["limit"])
	assert.InDelta(t, 0.5, body["score_threshold"], 1e-9)
	assert.Equal(t, true, body["with_payload"])
}

func TestDeleteByDocument(t *testing.T) {
	fake := newFakeQdrant()
	idx := newTestIndex(t, fake)

	require.NoError(t, idx.DeleteByDocument(context.Background(), "doc-1"))

	filter := fake.body("POST /collections/docs/points/delete")["filter"].(map[string]any)
	must := filter["must"].([]any)[0].(map[string]any)
	assert.Equal(t, "document_id", must["key"])
	assert.Equal(t, "doc-1", must["match"].(map[string]any)["value"])
}

func TestDeletePoints(t *testing.T) {
	fake := newFakeQdrant()
	idx := newTestIndex(t, fake)

	require.NoError(t, idx.DeletePoints(context.Background(), []string{"a", "b"}))
	assert.Equal(t, []any{"a", "b"}, fake.body("POST /collections/docs/points/delete")["points"])

	require.NoError(t, idx.DeletePoints(context.Background(), nil))
	assert.Len(t, fake.sent(), 1)
}

func TestCount(t *testing.T) {
	fake := newFakeQdrant()
	fake.on("POST /collections/docs/points/count", func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"result":{"count":12}}`))
	})
	idx := newTestIndex(t, fake)

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, true, fake.body("POST /collections/docs/points/count")["exact"])
}

func TestErrors(t *testing.T) {
	t.Run("server error is unavailable", func(t *testing.T) {
		fake := newFakeQdrant()
		fake.on("POST /collections/docs/points/count", func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		idx := newTestIndex(t, fake)

		_, err := idx.Count(context.Background())
		assert.ErrorIs(t, err, domain.ErrVectorIndexUnavailable)
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	})

	t.Run("bad request is not an outage", func(t *testing.T) {
		fake := newFakeQdrant()
		fake.on("POST /collections/docs/points/search", func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":{"error":"Wrong input: Vector dimension error"}}`))
		})
		idx := newTestIndex(t, fake)

		_, err := idx.Search(context.Background(), []float32{1}, 5, 0)
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrVectorIndexUnavailable)
		assert.Contains(t, err.Error(), "Vector dimension error")
	})

	t.Run("missing collection is unavailable", func(t *testing.T) {
		fake := newFakeQdrant()
		fake.on("POST /collections/docs/points/search", func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found: Collection docs doesn't exist!"}}`))
		})
		idx := newTestIndex(t, fake)

		_, err := idx.Search(context.Background(), []float32{1, 0}, 5, 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrVectorIndexUnavailable)
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
		assert.NotErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unreachable server", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		server.Close()
		idx := New(Config{URL: server.URL})

		_, err := idx.Count(context.Background())
		assert.ErrorIs(t, err, domain.ErrVectorIndexUnavailable)
	})
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	fake := newFakeQdrant()
	fake.on("POST /collections/docs/points/count", func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	server := httptest.NewServer(fake)
	defer server.Close()
	idx := New(Config{URL: server.URL, Collection: "docs", BreakerTimeout: time.Hour})

	for n := 0; n < 5; n++ {
		_, err := idx.Count(context.Background())
		require.ErrorIs(t, err, domain.ErrVectorIndexUnavailable)
	}
	sent := len(fake.sent())

	_, err := idx.Count(context.Background())
	require.ErrorIs(t, err, domain.ErrVectorIndexUnavailable)
	assert.True(t, strings.Contains(err.Error(), "circuit breaker is open"))
	assert.Equal(t, sent, len(fake.sent()), "open breaker sends nothing")
}
