package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/timmy/assetlens/internal/domain"
	"github.com/timmy/assetlens/internal/logger"
	"golang.org/x/time/rate"
)

// EmbeddingCache stores vectors by key. A miss is (nil, false, nil).
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error
}

// CachedEmbedder serves repeated texts from an EmbeddingCache.
// Cache failures are logged and fall through to the wrapped embedder, so the
// embedder's own errors are still the only ones returned.
type CachedEmbedder struct {
	Embedder
	cache EmbeddingCache
	ttl   time.Duration
}

// NewCachedEmbedder wraps next with cache.
func NewCachedEmbedder(next Embedder, cache EmbeddingCache, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{Embedder: next, cache: cache, ttl: ttl}
}

// CacheKey derives the key for text under the wrapped model and dimension.
func (c *CachedEmbedder) CacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "assetlens:emb:" + c.Provider() + ":" + c.Model() + ":" +
		strconv.Itoa(c.Dimensions()) + ":" + hex.EncodeToString(sum[:])
}

// Embed returns the cached vector for text, or embeds and caches it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !c.Available() {
		return c.Embedder.Embed(ctx, text)
	}

	key := c.CacheKey(text)
	vec, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		logger.CtxWarn(ctx, "Embedding cache read failed: %v", err)
	case ok && len(vec) == c.Dimensions():
		return vec, nil
	}

	vec, err = c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, vec, c.ttl); err != nil {
		logger.CtxWarn(ctx, "Embedding cache write failed: %v", err)
	}
	return vec, nil
}

// RateLimitedEmbedder caps the request rate to a remote embedding API.
type RateLimitedEmbedder struct {
	Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder allows rps requests per second with a burst of one.
func NewRateLimitedEmbedder(next Embedder, rps float64) *RateLimitedEmbedder {
	return &RateLimitedEmbedder{
		Embedder: next,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Embed waits for a token, then delegates.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrEmbedding, err)
	}
	return r.Embedder.Embed(ctx, text)
}
