// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("org_id", orgID).Info("Organization created")
//
// Request handlers should log through FromContext, which adds the request,
// user and organization IDs and the active trace and span IDs.
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// Every Record method is a no-op on a nil *Metrics.
//
// # Health
//
// /healthz reports liveness only. /readyz is unhealthy when Postgres is
// down and degraded when only Redis is.
//
// # Tracing
//
// InitOTel installs OTLP gRPC trace and metric providers globally. When
// disabled, Tracer returns a no-op tracer and nothing needs shutting down.
package observability
