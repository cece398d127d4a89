package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kellnr/kellnr/pkg/auth"
	"github.com/kellnr/kellnr/pkg/config"
	"github.com/kellnr/kellnr/pkg/docqueue"
	"github.com/kellnr/kellnr/pkg/observability"
	"github.com/kellnr/kellnr/pkg/regerr"
	"github.com/kellnr/kellnr/pkg/storage/postgres"
)

// noopDocBuilder satisfies docqueue.Consumer. Rendering rustdoc output
// from a tarball is outside this core's scope; wiring a real builder
// here is the next step for a deployment that wants docs served.
type noopDocBuilder struct {
	logger *observability.Logger
}

func (b noopDocBuilder) BuildDocs(e docqueue.Entry) error {
	b.logger.WithCrate(e.NormalizedName).WithVersion(e.Version).
		Warn("doc build requested but no doc builder is wired")
	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting registry core")

	ctx := context.Background()
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize OpenTelemetry")
	}

	store, err := postgres.NewStore(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to initialize storage: %v", err)
	}
	logger.Info("storage initialized, migrations applied")

	if _, err := store.AddUser(ctx, auth.BootstrapAdminName,
		auth.BootstrapAdminPassword, auth.BootstrapAdminSalt, true, false); err != nil {
		if regerr.Is(err, regerr.KindDuplicate) {
			logger.WithPrincipal(auth.BootstrapAdminName).Debug("bootstrap admin already present")
		} else {
			logger.WithPrincipal(auth.BootstrapAdminName).WithError(err).Error("failed to seed bootstrap admin")
		}
	} else {
		logger.WithPrincipal(auth.BootstrapAdminName).Info("seeded bootstrap admin")
	}

	healthChecker := observability.NewHealthChecker(store.DB(), store.RawRedis())

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	_ = metrics // exercised by callers embedding this core; no HTTP router lives here

	janitor := docqueue.NewJanitor(store, noopDocBuilder{logger: logger}, logger)
	if err := janitor.Start(cfg.Server.DocsCronSchedule); err != nil {
		logger.WithError(err).Error("failed to start doc queue janitor")
	} else {
		logger.Infof("doc queue janitor started on schedule %q", cfg.Server.DocsCronSchedule)
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, healthChecker)

	var healthHandler http.Handler = healthMux
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		logger.Info("metrics endpoint enabled at /metrics")
	}
	if cfg.Observability.OTelEnabled {
		healthHandler = otelhttp.NewHandler(healthHandler, "registry-health")
	}

	healthServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.HealthPort),
		Handler:      healthHandler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("starting health/metrics server on port %s", cfg.Server.HealthPort)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	shutdownManager := observability.NewShutdownManager(logger, healthServer, cfg.Server.ShutdownTimeout)

	shutdownManager.RegisterShutdownFunc(func(ctx context.Context) error {
		logger.Info("stopping doc queue janitor")
		janitor.Stop()
		return nil
	})

	shutdownManager.RegisterShutdownFunc(func(ctx context.Context) error {
		logger.Info("closing storage connections")
		return store.Close()
	})

	if otelProviders != nil {
		shutdownManager.RegisterShutdownFunc(func(ctx context.Context) error {
			logger.Info("shutting down OpenTelemetry")
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	logger.Info("registry core started, waiting for shutdown signal")
	if err := shutdownManager.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
