package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/timmy/assetlens/internal/config"
	"github.com/timmy/assetlens/internal/domain"
)

func TestOllamaEmbedder(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"nomic-embed-text:latest"}]}`))
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		vec := []float32{0.1, 0.2, 0.3}
		if req.Input == "wrong size" {
			vec = vec[:2]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{vec}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewOllamaEmbedder(context.Background(), &config.EmbeddingConfig{
		Provider:   config.EmbeddingOllama,
		Model:      "nomic-embed-text",
		BaseURL:    srv.URL,
		Dimensions: 3,
	})
	if !e.Available() {
		t.Fatal("expected embedder to be available")
	}

	first, err := e.Embed(context.Background(), "a red car")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	second, err := e.Embed(context.Background(), "a red car")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("expected identical vectors, got %v and %v", first, second)
		}
	}

	_, err = e.Embed(context.Background(), "wrong size")
	if !errors.Is(err, domain.ErrEmbedding) || !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrEmbedding wrapping ErrDimensionMismatch, got %v", err)
	}

	before := calls
	_, err = e.Embed(context.Background(), "   ")
	if !errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrEmbedding) {
		t.Errorf("expected ErrInvalidRequest (not ErrEmbedding) for blank text, got %v", err)
	}
	if calls != before {
		t.Error("expected blank text to be rejected without a request")
	}
}

func TestOllamaEmbedderUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	e := NewOllamaEmbedder(context.Background(), &config.EmbeddingConfig{
		Model: "nomic-embed-text", BaseURL: srv.URL, Dimensions: 3,
	})
	if e.Available() {
		t.Fatal("expected embedder to be unavailable")
	}
	_, err := e.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrEmbedding) || !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("expected ErrEmbedding wrapping ErrProviderUnavailable, got %v", err)
	}
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model      string   `json:"model"`
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Dimensions != 4 || len(req.Input) != 1 {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.5,0.5,0.5,0.5]}],
			"usage":{"prompt_tokens":3,"total_tokens":3}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&config.EmbeddingConfig{
		Model: "text-embedding-3-small", APIKey: "k", BaseURL: srv.URL + "/v1", Dimensions: 4,
	})
	vec, err := e.Embed(context.Background(), "a red car")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(vec) != 4 {
		t.Errorf("expected 4 dimensions, got %d", len(vec))
	}

	if NewOpenAIEmbedder(&config.EmbeddingConfig{Model: "m", Dimensions: 4}).Available() {
		t.Error("expected embedder without key to be unavailable")
	}
}

func TestJinaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req jinaRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Task != "text-matching" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"wrong task"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	e := NewJinaEmbedder(&config.EmbeddingConfig{
		Provider: config.EmbeddingJina, Model: "jina-embeddings-v3", APIKey: "k",
		BaseURL: srv.URL + "/v1", Dimensions: 2,
	})
	vec, err := e.Embed(context.Background(), "query")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(vec) != 2 || vec[0] != 1 {
		t.Errorf("unexpected vector %v", vec)
	}
}

type mapCache struct {
	mu      sync.Mutex
	data    map[string][]float32
	failGet bool
}

func (c *mapCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("cache down")
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, vec []float32, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = vec
	return nil
}

func TestCachedEmbedder(t *testing.T) {
	inner := newHashEmbedder(16)
	cache := &mapCache{data: map[string][]float32{}}
	e := NewCachedEmbedder(inner, cache, time.Hour)

	for i := 0; i < 3; i++ {
		if _, err := e.Embed(context.Background(), "a red car"); err != nil {
			t.Fatalf("Embed returned error: %v", err)
		}
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("expected one provider call, got %d", got)
	}
	if e.CacheKey("a") == e.CacheKey("b") {
		t.Error("expected distinct keys for distinct texts")
	}

	cache.failGet = true
	if _, err := e.Embed(context.Background(), "a red car"); err != nil {
		t.Fatalf("expected cache failure to be bypassed, got %v", err)
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("expected provider call after cache failure, got %d", got)
	}
}

func TestRateLimitedEmbedderHonoursContext(t *testing.T) {
	e := NewRateLimitedEmbedder(newHashEmbedder(4), 0.001)
	if _, err := e.Embed(context.Background(), "first"); err != nil {
		t.Fatalf("expected burst token for first call, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := e.Embed(ctx, "second"); !errors.Is(err, domain.ErrEmbedding) {
		t.Errorf("expected ErrEmbedding when the limiter cannot wait, got %v", err)
	}
}

func TestNewEmbedderUnknownProvider(t *testing.T) {
	if _, err := NewEmbedder(context.Background(), &config.EmbeddingConfig{Provider: "word2vec"}, nil, nil); err == nil {
		t.Fatal("expected an error for an unknown provider")
	}
}
