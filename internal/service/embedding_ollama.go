package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/assetlens/internal/config"
	"github.com/timmy/assetlens/internal/domain"
)

// OllamaEmbedder calls a local Ollama server's /api/embed endpoint.
type OllamaEmbedder struct {
	client     *resty.Client
	baseURL    string
	model      string
	dimensions int
	available  bool
}

// NewOllamaEmbedder creates a local embedder and probes the server once.
func NewOllamaEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) *OllamaEmbedder {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(embedTimeout(cfg))

	e := &OllamaEmbedder{
		client:     client,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
	e.available = probeOllamaModel(ctx, client, e.baseURL, e.model, defaultProbeTimeout)
	return e
}

func (e *OllamaEmbedder) Provider() string { return config.EmbeddingOllama }
func (e *OllamaEmbedder) Model() string    { return e.model }
func (e *OllamaEmbedder) Dimensions() int  { return e.dimensions }
func (e *OllamaEmbedder) Available() bool  { return e.available }

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed returns the embedding of text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !e.available {
		return nil, errEmbedderUnavailable(e.Provider())
	}
	if err := checkEmbedText(text); err != nil {
		return nil, err
	}

	var resp ollamaEmbedResponse
	httpResp, err := e.client.R().
		SetContext(ctx).
		SetBody(ollamaEmbedRequest{Model: e.model, Input: text}).
		SetResult(&resp).
		SetError(&resp).
		Post(e.baseURL + "/api/embed")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call Ollama: %v", domain.ErrEmbedding, err)
	}
	if !httpResp.IsSuccess() {
		if resp.Error != "" {
			return nil, fmt.Errorf("%w: Ollama error: %s", domain.ErrEmbedding, resp.Error)
		}
		return nil, fmt.Errorf("%w: Ollama returned HTTP %d", domain.ErrEmbedding, httpResp.StatusCode())
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", domain.ErrEmbedding)
	}

	vec := resp.Embeddings[0]
	if err := checkDimensions(vec, e.dimensions); err != nil {
		return nil, err
	}
	return vec, nil
}
