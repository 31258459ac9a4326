package service

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/timmy/assetlens/internal/config"
	"github.com/timmy/assetlens/internal/domain"
	"github.com/timmy/assetlens/internal/logger"
	"github.com/timmy/assetlens/internal/prompts"
)

// Describer produces search-oriented text for an image.
//
// Available is decided once when the describer is built and never re-probed.
// Describe never fails: problems come back as a sentinel Description.
type Describer interface {
	Provider() string
	Available() bool
	Describe(ctx context.Context, img image.Image) domain.Description
}

// NewDescriber builds the describer selected by cfg.Provider.
// The local variant probes its model server before returning.
// Parameters:
//   - ctx: context bounding the availability probe.
//   - cfg: description configuration.
//   - log: logger used outside request context.
//
// Returns:
//   - Describer: never nil; an unknown provider yields one that is never available.
func NewDescriber(ctx context.Context, cfg *config.DescriptionConfig, log *logger.Logger) Describer {
	switch cfg.Provider {
	case config.DescriptionLocal:
		return NewOllamaDescriber(ctx, &OllamaDescriberConfig{
			BaseURL:      cfg.Local.BaseURL,
			Model:        cfg.Local.Model,
			MaxDimension: cfg.Local.MaxDimension,
			JPEGQuality:  cfg.JPEGQuality,
			Timeout:      cfg.Timeout,
			ProbeTimeout: cfg.ProbeTimeout,
			Logger:       log,
		})
	case config.DescriptionCloud:
		return NewOpenAIDescriber(&OpenAIDescriberConfig{
			APIKey:       cfg.Cloud.APIKey,
			BaseURL:      cfg.Cloud.BaseURL,
			Model:        cfg.Cloud.Model,
			MaxTokens:    cfg.Cloud.MaxTokens,
			MaxDimension: cfg.Cloud.MaxDimension,
			JPEGQuality:  cfg.JPEGQuality,
			Timeout:      cfg.Timeout,
			Logger:       log,
		})
	default:
		return disabledDescriber{provider: cfg.Provider}
	}
}

type disabledDescriber struct {
	provider string
}

func (d disabledDescriber) Provider() string { return d.provider }
func (d disabledDescriber) Available() bool  { return false }

func (d disabledDescriber) Describe(context.Context, image.Image) domain.Description {
	return unavailableDescription(d.provider)
}

func unavailableDescription(provider string) domain.Description {
	return domain.Description{
		Text:     fmt.Sprintf(prompts.UnavailableFormat, provider),
		Provider: provider,
		Status:   domain.DescriptionUnavailable,
	}
}

// failedDescription is used when the provider answered but gave no usable text.
func failedDescription(provider string, cause string) domain.Description {
	return domain.Description{
		Text:     prompts.GenerationFailed,
		Provider: provider,
		Status:   domain.DescriptionFailed,
		Error:    cause,
	}
}

// erroredDescription is used when the call itself failed.
func erroredDescription(provider string, err error) domain.Description {
	return domain.Description{
		Text:     fmt.Sprintf(prompts.ErrorFormat, err.Error()),
		Provider: provider,
		Status:   domain.DescriptionFailed,
		Error:    err.Error(),
	}
}

func describedText(provider, text string) domain.Description {
	text = strings.TrimSpace(text)
	if text == "" {
		return failedDescription(provider, "empty response")
	}
	return domain.Description{Text: text, Provider: provider, Status: domain.DescriptionOK}
}
