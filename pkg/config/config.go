package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kellnr/kellnr/pkg/observability"
	"github.com/kellnr/kellnr/pkg/storage"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// DocsCronSchedule drives pkg/docqueue.Janitor's drain interval.
	DocsCronSchedule string
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:             getEnv("REGISTRY_HOST", "0.0.0.0"),
		Port:             getEnv("REGISTRY_PORT", "8080"),
		ReadTimeout:      getEnvDuration("REGISTRY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:     getEnvDuration("REGISTRY_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:      getEnvDuration("REGISTRY_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:  getEnvDuration("REGISTRY_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:       getEnv("REGISTRY_HEALTH_PORT", "9090"),
		DocsCronSchedule: getEnv("REGISTRY_DOCS_CRON_SCHEDULE", "@every 1m"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("REGISTRY_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("REGISTRY_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("REGISTRY_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("REGISTRY_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("REGISTRY_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if blobRoot := getEnv("REGISTRY_BLOB_ROOT", ""); blobRoot != "" {
		cfg.BlobRoot = blobRoot
	}

	if redisURL := getEnv("REGISTRY_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("REGISTRY_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("REGISTRY_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("REGISTRY_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("REGISTRY_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	if cacheEnabled := getEnv("REGISTRY_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if cacheTTL := getEnvDuration("REGISTRY_CACHE_TTL", 0); cacheTTL > 0 {
		cfg.CacheTTL = cacheTTL
	}

	return cfg
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("REGISTRY_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("REGISTRY_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("REGISTRY_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("REGISTRY_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("REGISTRY_OTEL_SERVICE_NAME", "registry"),
		OTelServiceVersion: getEnv("REGISTRY_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("REGISTRY_OTEL_INSECURE", true),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.BlobRoot == "" {
		return fmt.Errorf("blob root is required")
	}
	if c.Storage.CacheEnabled && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required when cache is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
