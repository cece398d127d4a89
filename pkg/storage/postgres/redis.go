package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kellnr/kellnr/pkg/index"
	"github.com/kellnr/kellnr/pkg/storage"
)

// RedisClient caches rendered Prefetch documents so repeated index
// resolutions for an unchanged package skip recomputation.
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to Redis using config.RedisURL, applying any
// config overrides on top of the parsed URL.
func NewRedisClient(config storage.Config) (*RedisClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := config.CacheTTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return &RedisClient{client: client, ttl: ttl}, nil
}

func prefetchKey(normalizedName string) string {
	return fmt.Sprintf("prefetch:%s", normalizedName)
}

// GetPrefetch returns the cached Prefetch for normalizedName, or nil on a
// cache miss.
func (c *RedisClient) GetPrefetch(ctx context.Context, normalizedName string) (*index.Prefetch, error) {
	data, err := c.client.Get(ctx, prefetchKey(normalizedName)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var p index.Prefetch
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		c.client.Del(ctx, prefetchKey(normalizedName))
		return nil, fmt.Errorf("failed to unmarshal cached prefetch: %w", err)
	}
	return &p, nil
}

// SetPrefetch caches p for normalizedName with the configured TTL.
func (c *RedisClient) SetPrefetch(ctx context.Context, normalizedName string, p index.Prefetch) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal prefetch: %w", err)
	}
	return c.client.Set(ctx, prefetchKey(normalizedName), data, c.ttl).Err()
}

// InvalidatePrefetch drops the cached document for normalizedName. Called
// after any commit that changes a package's etag (publish, yank, unyank,
// delete, update-docs-link).
func (c *RedisClient) InvalidatePrefetch(ctx context.Context, normalizedName string) error {
	return c.client.Del(ctx, prefetchKey(normalizedName)).Err()
}

// Ping checks Redis connectivity.
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}
