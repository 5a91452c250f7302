// Package qdrant provides a VectorIndex backed by the Qdrant REST API.
// Collections use cosine distance. Calls pass through a circuit breaker so
// a dead server fails fast with domain.ErrVectorIndexUnavailable.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/core/ports/driven"
	"github.com/custodia-labs/ragkb/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultURL        = "http://localhost:6333"
	DefaultCollection = "ragkb_chunks"
	DefaultTimeout    = 30 * time.Second
)

// Config holds Qdrant connection settings.
type Config struct {
	// URL is the REST endpoint (default: http://localhost:6333).
	URL string

	// APIKey is sent as the api-key header when set.
	APIKey string

	// Collection is the collection name (default: ragkb_chunks).
	Collection string

	// Timeout bounds each HTTP call (default: 30s).
	Timeout time.Duration

	// BreakerTimeout is how long the breaker stays open (default: 30s).
	BreakerTimeout time.Duration
}

// Index talks to one Qdrant collection.
type Index struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	collection string
	breaker    *gobreaker.CircuitBreaker
}

// New creates a Qdrant index. No request is made until the first call.
func New(cfg Config) *Index {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "qdrant",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("%s circuit breaker: %s -> %s", name, from, to)
		},
		// Only outages count against the breaker; bad requests do not.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrVectorIndexUnavailable)
		},
	})

	return &Index{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		breaker:    breaker,
	}
}

type collectionInfo struct {
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

// EnsureCollection creates the collection when missing. An existing
// collection with another vector size is a configuration error.
func (i *Index) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}

	var info collectionInfo
	status, err := i.do(ctx, http.MethodGet, i.collectionPath(), nil, &info)
	switch {
	case err == nil:
		if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != dimensions {
			return fmt.Errorf("%w: collection %s has dimension %d, not %d",
				domain.ErrConfiguration, i.collection, size, dimensions)
		}
		return nil
	case status != http.StatusNotFound:
		return err
	}

	logger.Info("Creating Qdrant collection %s (dimension %d)", i.collection, dimensions)
	body := map[string]any{
		"vectors": map[string]any{"size": dimensions, "distance": "Cosine"},
	}
	if _, err := i.do(ctx, http.MethodPut, i.collectionPath(), body, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", i.collection, err)
	}

	index := map[string]any{"field_name": "document_id", "field_schema": "keyword"}
	if _, err := i.do(ctx, http.MethodPut, i.collectionPath()+"/index?wait=true", index, nil); err != nil {
		logger.Warn("Failed to index document_id on %s: %v", i.collection, err)
	}
	return nil
}

type point struct {
	ID      string               `json:"id"`
	Vector  []float32            `json:"vector"`
	Payload domain.VectorPayload `json:"payload"`
}

// Upsert writes points and waits for them to be applied.
func (i *Index) Upsert(ctx context.Context, points []domain.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	body := struct {
		Points []point `json:"points"`
	}{Points: make([]point, len(points))}
	for n, p := range points {
		body.Points[n] = point{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	_, err := i.do(ctx, http.MethodPut, i.collectionPath()+"/points?wait=true", body, nil)
	return err
}

type searchResponse struct {
	Result []struct {
		ID      any                   `json:"id"`
		Score   float64               `json:"score"`
		Payload *domain.VectorPayload `json:"payload"`
	} `json:"result"`
}

// Search asks Qdrant for the nearest points above threshold. The
// threshold and ordering are checked again here.
func (i *Index) Search(ctx context.Context, query []float32, limit int, threshold float64) ([]domain.VectorHit, error) {
	body := map[string]any{
		"vector":          query,
		"limit":           limit,
		"score_threshold": threshold,
		"with_payload":    true,
	}
	var resp searchResponse
	if _, err := i.do(ctx, http.MethodPost, i.collectionPath()+"/points/search", body, &resp); err != nil {
		return nil, err
	}

	hits := make([]domain.VectorHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		if r.Score < threshold {
			continue
		}
		hits = append(hits, domain.VectorHit{ID: fmt.Sprint(r.ID), Score: r.Score, Payload: r.Payload})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// DeleteByDocument removes points by payload filter.
func (i *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document_id", "match": map[string]any{"value": documentID}},
			},
		},
	}
	_, err := i.do(ctx, http.MethodPost, i.collectionPath()+"/points/delete?wait=true", body, nil)
	return err
}

// DeletePoints removes points by ID.
func (i *Index) DeletePoints(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	_, err := i.do(ctx, http.MethodPost, i.collectionPath()+"/points/delete?wait=true", body, nil)
	return err
}

// Count returns the exact number of points.
func (i *Index) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if _, err := i.do(ctx, http.MethodPost, i.collectionPath()+"/points/count", map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Name returns the collection name.
func (i *Index) Name() string {
	return i.collection
}

// Close releases idle connections.
func (i *Index) Close() error {
	i.client.CloseIdleConnections()
	return nil
}

func (i *Index) collectionPath() string {
	return "/collections/" + url.PathEscape(i.collection)
}

// do sends one JSON request through the breaker. It returns the HTTP
// status, zero when no response arrived.
func (i *Index) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var status int
	_, err := i.breaker.Execute(func() (any, error) {
		var err error
		status, err = i.roundTrip(ctx, method, path, in, out)
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, fmt.Errorf("%w: qdrant: %v", domain.ErrVectorIndexUnavailable, err)
	}
	return status, err
}

func (i *Index) roundTrip(ctx context.Context, method, path string, in, out any) (int, error) {
	var reader io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, i.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if i.apiKey != "" {
		req.Header.Set("api-key", i.apiKey)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: qdrant %s %s: %v", domain.ErrVectorIndexUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: qdrant: read response: %v", domain.ErrVectorIndexUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// The collection is missing. EnsureCollection branches on the status.
		return resp.StatusCode, fmt.Errorf("%w: qdrant %s %s: collection %s not found",
			domain.ErrVectorIndexUnavailable, method, path, i.collection)
	case resp.StatusCode >= 500:
		return resp.StatusCode, fmt.Errorf("%w: qdrant %s %s: %s: %s",
			domain.ErrVectorIndexUnavailable, method, path, resp.Status, strings.TrimSpace(string(body)))
	case resp.StatusCode >= 300:
		return resp.StatusCode, fmt.Errorf("qdrant %s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(body)))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: qdrant: decode response: %v", domain.ErrVectorIndexUnavailable, err)
		}
	}
	return resp.StatusCode, nil
}
