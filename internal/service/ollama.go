package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultProbeTimeout = 2 * time.Second

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// hasModel reports whether any installed model name contains model,
// so "llava" matches "llava:latest" and "llava:13b".
func (r *ollamaTagsResponse) hasModel(model string) bool {
	for _, m := range r.Models {
		if strings.Contains(m.Name, model) || strings.Contains(m.Model, model) {
			return true
		}
	}
	return false
}

// probeOllamaModel asks an Ollama server for its model catalog.
// Any failure, including a timeout, reports false.
func probeOllamaModel(ctx context.Context, client *resty.Client, baseURL, model string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var tags ollamaTagsResponse
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&tags).
		Get(baseURL + "/api/tags")
	if err != nil || !resp.IsSuccess() {
		return false
	}
	return tags.hasModel(model)
}
