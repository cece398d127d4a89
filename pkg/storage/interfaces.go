// Package storage holds the narrow interfaces and shared configuration
// the registry core depends on for concerns it does not implement
// itself: tarball bytes and cache connectivity. The transactional data
// model lives in pkg/storage/postgres.
package storage

import (
	"context"
	"io"
	"time"
)

// BlobStore is the narrow interface the publish pipeline uses to persist
// and retrieve tarball bytes by content checksum. The registry core
// never inspects tarball content; it only stores the checksum string
// alongside a version row.
type BlobStore interface {
	Put(ctx context.Context, checksum string, content io.Reader) error
	Get(ctx context.Context, checksum string) (io.ReadCloser, error)
}

// HealthChecker defines health check operations.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds connectivity configuration for the storage backends the
// registry core depends on: the PostgreSQL primary (and optional read
// replicas) and the Redis prefetch-document cache.
type Config struct {
	PostgresURL         string
	PostgresReplicaURLs string // comma-separated list of replica URLs
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	CacheEnabled bool
	CacheTTL     time.Duration

	BlobRoot string
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     false,
		CacheTTL:         5 * time.Minute,
		BlobRoot:         "/tmp/registry/blobs",
	}
}
