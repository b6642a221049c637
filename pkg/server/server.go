package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/subscription-intake/pkg/billing"
	"github.com/platinummonkey/subscription-intake/pkg/config"
	"github.com/platinummonkey/subscription-intake/pkg/httputil"
	"github.com/platinummonkey/subscription-intake/pkg/intake"
	"github.com/platinummonkey/subscription-intake/pkg/observability"
	"github.com/platinummonkey/subscription-intake/pkg/storage"
)

// MaxBodyBytes caps intake request bodies
const MaxBodyBytes = 1 << 20

// Components are the long-lived dependencies shared by every request
type Components struct {
	Store     storage.RecordStore
	Processor billing.Processor
	Service   *intake.Service
}

// BuildComponents opens the record store and the Stripe client and wires
// the intake service. The caller owns Store and must Close it.
func BuildComponents(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*Components, error) {
	store, err := OpenRecordStore(ctx, cfg.Storage, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s record store: %w", cfg.Storage.Type, err)
	}

	processor, err := billing.NewStripeProcessor(billing.StripeConfig{
		SecretKey: cfg.Stripe.SecretKey,
		APIURL:    cfg.Stripe.APIURL,
		Timeout:   cfg.Stripe.Timeout,
	}, logger, metrics)
	if err != nil {
		store.Close()
		return nil, err
	}

	for _, warning := range cfg.Warnings() {
		logger.Warn(warning)
	}

	service := intake.NewService(processor, store, intake.Config{PriceID: cfg.Stripe.PriceID},
		intake.WithLogger(logger),
		intake.WithMetrics(metrics),
	)

	return &Components{
		Store:     store,
		Processor: processor,
		Service:   service,
	}, nil
}

// NewRouter builds the intake API handler. Middleware runs in order:
// request ID, recovery, logging, CORS, body limit, metrics. The body is
// decoded as JSON whatever its declared content type.
// The router is wrapped by otelhttp so every request gets a server span.
func NewRouter(service *intake.Service, logger *observability.Logger, metrics *observability.Metrics, corsOrigins []string) http.Handler {
	router := mux.NewRouter()

	router.Use(
		httputil.RequestIDMiddleware(logger),
		httputil.RecoveryMiddleware(intake.InternalErrorHandler),
		httputil.LoggingMiddleware,
		httputil.CORSMiddleware(corsOrigins),
		httputil.MaxBytesMiddleware(MaxBodyBytes),
	)
	if metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}

	intake.NewHandler(service).RegisterRoutes(router)

	return otelhttp.NewHandler(router, "subscription-intake")
}

// NewHealthMux serves /health, /health/live, /health/ready and, when
// gatherer is non-nil, /metrics.
func NewHealthMux(checker *observability.HealthChecker, gatherer prometheus.Gatherer) *http.ServeMux {
	serveMux := http.NewServeMux()
	observability.RegisterHealthRoutes(serveMux, checker)
	if gatherer != nil {
		observability.RegisterMetricsEndpoint(serveMux, gatherer)
	}
	return serveMux
}

// App is the HTTP deployment: an API server, a health/metrics server and
// the store monitor, stopped together by a ShutdownManager.
type App struct {
	config     *config.Config
	logger     *observability.Logger
	components *Components
	monitor    *StoreMonitor

	apiServer    *http.Server
	healthServer *http.Server
	shutdown     *observability.ShutdownManager
}

// NewApp wires already-built components into servers. otelProviders may be nil.
func NewApp(cfg *config.Config, logger *observability.Logger, components *Components, registry *prometheus.Registry, metrics *observability.Metrics, otelProviders *observability.OTelProviders, version string) (*App, error) {
	checker := observability.NewHealthChecker(version)
	checker.AddCheck("record_store", true, components.Store.HealthCheck)

	var gatherer prometheus.Gatherer
	if registry != nil {
		gatherer = registry
	}

	app := &App{
		config:     cfg,
		logger:     logger,
		components: components,
		apiServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:      NewRouter(components.Service, logger, metrics, cfg.Server.CORSOrigins),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		healthServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
			Handler:      NewHealthMux(checker, gatherer),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		shutdown: observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout),
	}

	if schedule := cfg.Server.StoreProbeSchedule; schedule != "" {
		monitor, err := NewStoreMonitor(components.Store, cfg.Storage.Type, schedule, logger, metrics)
		if err != nil {
			return nil, err
		}
		app.monitor = monitor
		app.shutdown.RegisterShutdownFunc("store monitor", monitor.Stop)
	}

	app.shutdown.AddServer(app.apiServer)
	app.shutdown.AddServer(app.healthServer)
	app.shutdown.RegisterShutdownFunc("opentelemetry", otelProviders.Shutdown)
	app.shutdown.RegisterShutdownFunc("record store", func(context.Context) error {
		return components.Store.Close()
	})

	return app, nil
}

// Build initializes telemetry, opens every dependency and returns a ready App
func Build(ctx context.Context, cfg *config.Config, logger *observability.Logger, version string) (*App, error) {
	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = observability.NewMetrics(registry)
	}

	components, err := BuildComponents(ctx, cfg, logger, metrics)
	if err != nil {
		otelProviders.Shutdown(ctx)
		return nil, err
	}

	app, err := NewApp(cfg, logger, components, registry, metrics, otelProviders, version)
	if err != nil {
		components.Store.Close()
		otelProviders.Shutdown(ctx)
		return nil, err
	}
	return app, nil
}

// Handler returns the API handler
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler
}

// HealthHandler returns the health/metrics handler
func (a *App) HealthHandler() http.Handler {
	return a.healthServer.Handler
}

// Run serves until ctx is cancelled or a server fails, then shuts
// everything down: servers first, then the monitor, telemetry and store.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.WithField("addr", a.apiServer.Addr).Info("Starting intake API server")
		return listen(a.apiServer)
	})
	g.Go(func() error {
		a.logger.WithField("addr", a.healthServer.Addr).Info("Starting health server")
		return listen(a.healthServer)
	})

	if a.monitor != nil {
		a.monitor.Start()
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down")
		return a.shutdown.Shutdown(ctx)
	})

	return g.Wait()
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server %s: %w", srv.Addr, err)
	}
	return nil
}
