package repository

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	r "github.com/redis/go-redis/v9"
	"github.com/timmy/assetlens/internal/config"
)

// RedisEmbeddingCache stores embedding vectors as little-endian float32 blobs.
type RedisEmbeddingCache struct {
	client *r.Client
}

// NewRedisClient creates a go-redis client from configuration.
func NewRedisClient(cfg *config.RedisConfig) *r.Client {
	return r.NewClient(&r.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisEmbeddingCache wraps client and verifies it answers PING.
func NewRedisEmbeddingCache(ctx context.Context, client *r.Client) (*RedisEmbeddingCache, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisEmbeddingCache{client: client}, nil
}

// Get returns the cached vector for key. A miss is (nil, false, nil).
func (c *RedisEmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, r.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	vec, err := decodeVector(data)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set stores vec under key. ttl <= 0 keeps it without expiry.
func (c *RedisEmbeddingCache) Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, key, encodeVector(vec), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisEmbeddingCache) Close() error {
	return c.client.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector: %d bytes", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
