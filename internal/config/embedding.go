package config

import (
	"fmt"
	"os"
	"time"
)

// Embedding providers.
const (
	EmbeddingOllama = "ollama"
	EmbeddingOpenAI = "openai"
	EmbeddingJina   = "jina"
)

// EmbeddingConfig configures the text embedding provider.
// The vector index is created with Dimensions, so changing the model
// requires a collection with a matching dimension.
type EmbeddingConfig struct {
	Name       string               `mapstructure:"name"`
	Provider   string               `mapstructure:"provider"` // ollama | openai | jina
	Model      string               `mapstructure:"model"`
	APIKey     string               `mapstructure:"api_key"` // set directly or via APIKeyEnv
	APIKeyEnv  string               `mapstructure:"api_key_env"`
	BaseURL    string               `mapstructure:"base_url"`
	BaseURLEnv string               `mapstructure:"base_url_env"`
	Dimensions int                  `mapstructure:"dimensions"`
	Timeout    time.Duration        `mapstructure:"timeout"`
	RateLimit  float64              `mapstructure:"rate_limit"` // requests per second, 0 disables
	Cache      EmbeddingCacheConfig `mapstructure:"cache"`
}

// EmbeddingCacheConfig enables the redis-backed embedding cache.
type EmbeddingCacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// ResolveEnvVars fills APIKey and BaseURL from the referenced environment
// variables. Values set directly take precedence.
func (c *EmbeddingConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	if c.BaseURLEnv != "" && c.BaseURL == "" {
		c.BaseURL = os.Getenv(c.BaseURLEnv)
	}
}

// Validate checks the fields every provider needs.
// It does not require an API key: a provider without one reports unavailable.
func (c *EmbeddingConfig) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("embedding %q: provider is required", c.Name)
	}
	if c.Model == "" {
		return fmt.Errorf("embedding %q: model is required", c.Name)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("embedding %q: dimensions must be positive", c.Name)
	}

	switch c.Provider {
	case EmbeddingOllama, EmbeddingOpenAI, EmbeddingJina:
	default:
		return fmt.Errorf("embedding %q: unknown provider %q", c.Name, c.Provider)
	}
	return nil
}

// RequiresAPIKey reports whether the provider is a hosted API.
func (c *EmbeddingConfig) RequiresAPIKey() bool {
	return c.Provider != EmbeddingOllama
}
