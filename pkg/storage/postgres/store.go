// Package postgres implements the registry's transactional persistence
// layer: principals, sessions, packages, versions, download counters,
// the upstream mirror cache, and the documentation build queue.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/singleflight"

	"github.com/kellnr/kellnr/pkg/storage"
)

var tracer = otel.Tracer("registry/storage/postgres")

// Store is the registry's transactional data store. All exported
// methods are safe for concurrent use; every write executes inside its
// own transaction.
type Store struct {
	connManager *ConnectionManager
	db          *sql.DB
	cache       *PrefetchCache
	redis       *RedisClient
	config      storage.Config
	prefetchSF  singleflight.Group
}

// NewStore opens the primary connection (and any configured replicas),
// applies pending migrations, and wires the optional Redis/L1 prefetch
// cache.
func NewStore(config storage.Config) (*Store, error) {
	connConfig := ConnectionConfig{
		PrimaryURL:  config.PostgresURL,
		ReplicaURLs: ParseReplicaURLs(config.PostgresReplicaURLs),
		MaxConns:    config.PostgresMaxConns,
		MinConns:    config.PostgresMinConns,
		Timeout:     config.PostgresTimeout,
		MaxLifetime: 1 * time.Hour,
		MaxIdleTime: 10 * time.Minute,
	}

	connManager, err := NewConnectionManager(connConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}
	db := connManager.Primary()

	if err := RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	var redisClient *RedisClient
	if config.CacheEnabled && config.RedisURL != "" {
		redisClient, err = NewRedisClient(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
	}

	cache, err := NewPrefetchCache(1024, redisClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create prefetch cache: %w", err)
	}

	return &Store{
		connManager: connManager,
		db:          db,
		cache:       cache,
		redis:       redisClient,
		config:      config,
	}, nil
}

// Close releases the underlying connections.
func (s *Store) Close() error {
	if s.redis != nil {
		s.redis.Close()
	}
	return s.connManager.Close()
}

func (s *Store) primary() *sql.DB { return s.connManager.Primary() }
func (s *Store) replica() *sql.DB { return s.connManager.Replica() }

// DB returns the primary connection, for wiring into generic
// observability tooling (e.g. a dependency health checker) that only
// needs database/sql, not the full Store API.
func (s *Store) DB() *sql.DB { return s.connManager.Primary() }

// RawRedis returns the underlying go-redis client, or nil if no cache
// was configured. Same rationale as DB.
func (s *Store) RawRedis() *redis.Client {
	if s.redis == nil {
		return nil
	}
	return s.redis.client
}

// HealthCheck verifies the primary connection, every replica, and (when
// configured) Redis.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.connManager.HealthCheck(ctx); err != nil {
		return err
	}
	if s.redis != nil {
		return s.redis.Ping(ctx)
	}
	return nil
}

var _ storage.HealthChecker = (*Store)(nil)
