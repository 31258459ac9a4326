package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/timmy/assetlens/internal/config"
	"github.com/timmy/assetlens/internal/domain"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	timeout    time.Duration
}

// NewOpenAIEmbedder creates the client. A missing API key leaves it unavailable.
func NewOpenAIEmbedder(cfg *config.EmbeddingConfig) *OpenAIEmbedder {
	e := &OpenAIEmbedder{model: cfg.Model, dimensions: cfg.Dimensions, timeout: embedTimeout(cfg)}
	if cfg.APIKey == "" {
		return e
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	e.client = openai.NewClientWithConfig(clientConfig)
	return e
}

func (e *OpenAIEmbedder) Provider() string { return config.EmbeddingOpenAI }
func (e *OpenAIEmbedder) Model() string    { return e.model }
func (e *OpenAIEmbedder) Dimensions() int  { return e.dimensions }
func (e *OpenAIEmbedder) Available() bool  { return e.client != nil }

// Embed returns the embedding of text, requesting the configured dimension.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.client == nil {
		return nil, errEmbedderUnavailable(e.Provider())
	}
	if err := checkEmbedText(text); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings API: %v", domain.ErrEmbedding, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", domain.ErrEmbedding)
	}

	vec := resp.Data[0].Embedding
	if err := checkDimensions(vec, e.dimensions); err != nil {
		return nil, err
	}
	return vec, nil
}
