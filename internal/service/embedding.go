package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/assetlens/internal/config"
	"github.com/timmy/assetlens/internal/domain"
	"github.com/timmy/assetlens/internal/logger"
)

// Embedder maps text to a fixed-length vector.
//
// Implementations must be deterministic for a fixed model: the same text
// always yields the same vector. Blank text fails with domain.ErrInvalidRequest
// before any request is made; every provider failure wraps domain.ErrEmbedding.
type Embedder interface {
	Provider() string
	Model() string
	Dimensions() int
	Available() bool
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder builds the configured provider and wraps it with the optional
// rate limiter and cache.
// Parameters:
//   - ctx: context bounding the availability probe of local providers.
//   - cfg: embedding configuration.
//   - cache: optional vector cache; used only when cfg.Cache.Enabled.
//   - log: logger used outside request context.
//
// Returns:
//   - Embedder: ready provider, possibly unavailable.
//   - error: non-nil for an unknown provider.
func NewEmbedder(ctx context.Context, cfg *config.EmbeddingConfig, cache EmbeddingCache, log *logger.Logger) (Embedder, error) {
	var e Embedder
	switch cfg.Provider {
	case config.EmbeddingOllama:
		e = NewOllamaEmbedder(ctx, cfg)
	case config.EmbeddingOpenAI:
		e = NewOpenAIEmbedder(cfg)
	case config.EmbeddingJina:
		e = NewJinaEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if !e.Available() && log != nil {
		log.WithFields(logger.Fields{
			logger.FieldProvider: e.Provider(),
			"model":              e.Model(),
		}).Warn("Embedding provider unavailable, indexing and search disabled")
	}

	if cfg.RateLimit > 0 {
		e = NewRateLimitedEmbedder(e, cfg.RateLimit)
	}
	if cfg.Cache.Enabled && cache != nil {
		e = NewCachedEmbedder(e, cache, cfg.Cache.TTL)
	}
	return e, nil
}

func errEmbedderUnavailable(provider string) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrEmbedding, provider, domain.ErrProviderUnavailable)
}

func embedTimeout(cfg *config.EmbeddingConfig) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return defaultEmbedTimeout
}

func checkEmbedText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: text to embed is empty", domain.ErrInvalidRequest)
	}
	return nil
}

func checkDimensions(vec []float32, want int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: no embedding returned", domain.ErrEmbedding)
	}
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d dimensions, expected %d: %w",
			domain.ErrEmbedding, len(vec), want, domain.ErrDimensionMismatch)
	}
	return nil
}

const (
	defaultJinaEndpoint = "https://api.jina.ai/v1/embeddings"

	// defaultEmbedTimeout bounds a single embedding call when the config has none.
	defaultEmbedTimeout = 30 * time.Second
)

// JinaEmbedder calls the Jina embeddings API.
type JinaEmbedder struct {
	client     *resty.Client
	endpoint   string
	model      string
	dimensions int
	available  bool
}

// NewJinaEmbedder creates a Jina client. It is available iff an API key is set.
func NewJinaEmbedder(cfg *config.EmbeddingConfig) *JinaEmbedder {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(embedTimeout(cfg))

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultJinaEndpoint
	} else if !strings.HasSuffix(endpoint, "/embeddings") {
		endpoint = strings.TrimSuffix(endpoint, "/") + "/embeddings"
	}

	return &JinaEmbedder{
		client:     client,
		endpoint:   endpoint,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		available:  cfg.APIKey != "",
	}
}

func (s *JinaEmbedder) Provider() string { return config.EmbeddingJina }
func (s *JinaEmbedder) Model() string    { return s.model }
func (s *JinaEmbedder) Dimensions() int  { return s.dimensions }
func (s *JinaEmbedder) Available() bool  { return s.available }

// Jina API request/response structures
type jinaRequest struct {
	Model         string   `json:"model"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Input         []string `json:"input"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

type jinaResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Detail string `json:"detail,omitempty"`
}

// Embed generates an embedding for a single text. Descriptions and queries
// use the same symmetric task so that both land in one vector space.
func (s *JinaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !s.available {
		return nil, errEmbedderUnavailable(s.Provider())
	}
	if err := checkEmbedText(text); err != nil {
		return nil, err
	}

	req := jinaRequest{
		Model:         s.model,
		Task:          "text-matching",
		Dimensions:    s.dimensions,
		Input:         []string{text},
		EmbeddingType: "float",
	}

	var resp jinaResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call Jina API: %v", domain.ErrEmbedding, err)
	}
	if httpResp.StatusCode() != 200 {
		if resp.Detail != "" {
			return nil, fmt.Errorf("%w: Jina API error: %s", domain.ErrEmbedding, resp.Detail)
		}
		return nil, fmt.Errorf("%w: Jina API error: status %d", domain.ErrEmbedding, httpResp.StatusCode())
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", domain.ErrEmbedding)
	}

	vec := resp.Data[0].Embedding
	if err := checkDimensions(vec, s.dimensions); err != nil {
		return nil, err
	}
	return vec, nil
}
