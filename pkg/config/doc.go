// Package config loads and validates application configuration from
// environment variables, with sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	REGISTRY_HOST="0.0.0.0"
//	REGISTRY_PORT="8080"
//	REGISTRY_HEALTH_PORT="9090"
//	REGISTRY_READ_TIMEOUT="15s"
//	REGISTRY_WRITE_TIMEOUT="15s"
//	REGISTRY_DOCS_CRON_SCHEDULE="@every 1m"
//
// Storage settings:
//
//	REGISTRY_POSTGRES_URL="postgres://localhost/registry"
//	REGISTRY_POSTGRES_MAX_CONNS="20"
//	REGISTRY_BLOB_ROOT="/var/lib/registry/blobs"
//
// Cache settings:
//
//	REGISTRY_CACHE_ENABLED="true"
//	REGISTRY_REDIS_URL="redis://localhost:6379"
//	REGISTRY_REDIS_POOL_SIZE="10"
//	REGISTRY_CACHE_TTL="1h"
//
// Observability settings:
//
//	REGISTRY_LOG_LEVEL="info"  # debug, info, warn, error
//	REGISTRY_METRICS_ENABLED="true"
//	REGISTRY_OTEL_ENABLED="true"
//	REGISTRY_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
