package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/assetlens/internal/config"
	"github.com/timmy/assetlens/internal/domain"
	"github.com/timmy/assetlens/internal/imaging"
	"github.com/timmy/assetlens/internal/logger"
	"github.com/timmy/assetlens/internal/prompts"
)

// OllamaDescriberConfig holds configuration for the local describer.
type OllamaDescriberConfig struct {
	BaseURL      string
	Model        string
	MaxDimension int
	JPEGQuality  int
	Timeout      time.Duration
	ProbeTimeout time.Duration
	Logger       *logger.Logger
}

// OllamaDescriber describes images with a vision model served by Ollama.
type OllamaDescriber struct {
	client    *resty.Client
	baseURL   string
	model     string
	maxDim    int
	quality   int
	timeout   time.Duration
	available bool
	logger    *logger.Logger
}

// NewOllamaDescriber creates a local describer and probes /api/tags once.
// The describer is available only if the server lists the configured model.
func NewOllamaDescriber(ctx context.Context, cfg *OllamaDescriberConfig) *OllamaDescriber {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")

	d := &OllamaDescriber{
		client:  client,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		maxDim:  cfg.MaxDimension,
		quality: cfg.JPEGQuality,
		timeout: timeout,
		logger:  cfg.Logger,
	}
	d.available = probeOllamaModel(ctx, client, d.baseURL, d.model, cfg.ProbeTimeout)
	if !d.available && d.logger != nil {
		d.logger.WithFields(logger.Fields{
			logger.FieldProvider: config.DescriptionLocal,
			"base_url":           d.baseURL,
			"model":              d.model,
		}).Warn("Local vision model not found, image description disabled")
	}
	return d
}

// Provider returns "local".
func (d *OllamaDescriber) Provider() string { return config.DescriptionLocal }

// Available reports the cached probe result.
func (d *OllamaDescriber) Available() bool { return d.available }

type ollamaGenerateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Describe sends the resized JPEG to /api/generate and returns the trimmed answer.
func (d *OllamaDescriber) Describe(ctx context.Context, img image.Image) domain.Description {
	if !d.available {
		return unavailableDescription(d.Provider())
	}

	data, err := imaging.Prepare(img, d.maxDim, d.quality)
	if err != nil {
		return erroredDescription(d.Provider(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req := ollamaGenerateRequest{
		Model:  d.model,
		Prompt: prompts.DescribeForIndexing,
		Images: []string{base64.StdEncoding.EncodeToString(data)},
		Stream: false,
	}

	start := time.Now()
	var resp ollamaGenerateResponse
	httpResp, err := d.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(d.baseURL + "/api/generate")
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Local description request failed")
		return erroredDescription(d.Provider(), fmt.Errorf("failed to call Ollama: %w", err))
	}
	if !httpResp.IsSuccess() {
		cause := fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		logger.FromContext(ctx).WithField(logger.FieldStatus, httpResp.StatusCode()).
			Warn("Local description returned error: " + cause)
		return failedDescription(d.Provider(), cause)
	}
	if resp.Error != "" {
		return failedDescription(d.Provider(), resp.Error)
	}

	logger.With(logger.Fields{
		logger.FieldProvider: d.Provider(),
		logger.FieldSize:     len(data),
	}).Since(start).Debug(ctx, "Generated local description")
	return describedText(d.Provider(), resp.Response)
}
