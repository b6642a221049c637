// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown for the intake service.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("customer_id", id).Info("customer created")
//
// Request-scoped loggers carry the request ID and, when a span is recording,
// the trace and span IDs:
//
//	observability.FromContext(ctx).WithError(err).Error("record store write failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveIntake("success")
//
// All Observe* helpers accept a nil *Metrics so components can run unmetered.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("record_store", true, store.HealthCheck)
//	observability.RegisterHealthRoutes(serveMux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer providers.Shutdown(ctx)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request ID, logging and recovery middleware
package observability
