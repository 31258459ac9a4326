package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/timmy/assetlens/internal/config"
	"github.com/timmy/assetlens/internal/domain"
	"github.com/timmy/assetlens/internal/imaging"
	"github.com/timmy/assetlens/internal/logger"
	"github.com/timmy/assetlens/internal/prompts"
)

// OpenAIDescriberConfig holds configuration for the cloud describer.
type OpenAIDescriberConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	MaxDimension int
	JPEGQuality  int
	Timeout      time.Duration
	Logger       *logger.Logger
}

// OpenAIDescriber describes images with an OpenAI-compatible vision model.
// It is available whenever an API key is configured; no network probe is made.
type OpenAIDescriber struct {
	client    *openai.Client
	model     string
	maxTokens int
	maxDim    int
	quality   int
	timeout   time.Duration
}

// NewOpenAIDescriber creates a cloud describer. A missing key leaves it unavailable.
func NewOpenAIDescriber(cfg *OpenAIDescriberConfig) *OpenAIDescriber {
	d := &OpenAIDescriber{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		maxDim:    cfg.MaxDimension,
		quality:   cfg.JPEGQuality,
		timeout:   cfg.Timeout,
	}
	if d.maxTokens <= 0 {
		d.maxTokens = 300
	}
	if d.timeout <= 0 {
		d.timeout = 30 * time.Second
	}

	if cfg.APIKey == "" {
		if cfg.Logger != nil {
			cfg.Logger.WithField(logger.FieldProvider, config.DescriptionCloud).
				Warn("No API key configured, cloud image description disabled")
		}
		return d
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	d.client = openai.NewClientWithConfig(clientConfig)
	return d
}

// Provider returns "cloud".
func (d *OpenAIDescriber) Provider() string { return config.DescriptionCloud }

// Available reports whether a credential was configured.
func (d *OpenAIDescriber) Available() bool { return d.client != nil }

// Describe sends the resized image as a data URL alongside the indexing prompt.
func (d *OpenAIDescriber) Describe(ctx context.Context, img image.Image) domain.Description {
	if !d.Available() {
		return unavailableDescription(d.Provider())
	}

	data, err := imaging.Prepare(img, d.maxDim, d.quality)
	if err != nil {
		return erroredDescription(d.Provider(), err)
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     d.model,
		MaxTokens: d.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: prompts.DescribeSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompts.DescribeForIndexing,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			cause := fmt.Sprintf("HTTP %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
			logger.FromContext(ctx).Warn("Cloud description returned error: " + cause)
			return failedDescription(d.Provider(), cause)
		}
		logger.FromContext(ctx).WithError(err).Warn("Cloud description request failed")
		return erroredDescription(d.Provider(), err)
	}
	if len(resp.Choices) == 0 {
		return failedDescription(d.Provider(), "no choices in response")
	}

	logger.With(logger.Fields{
		logger.FieldProvider: d.Provider(),
		logger.FieldSize:     len(data),
	}).Since(start).Debug(ctx, "Generated cloud description")
	return describedText(d.Provider(), resp.Choices[0].Message.Content)
}
