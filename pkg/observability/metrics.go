package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Intake metrics
	IntakeRequestsTotal    *prometheus.CounterVec
	OrphanedCustomersTotal prometheus.Counter
	ProcessorCallsTotal    *prometheus.CounterVec
	ProcessorCallDuration  *prometheus.HistogramVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
	StoreUp                  *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intake_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intake_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 5),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intake_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 5),
			},
			[]string{"method", "path"},
		),

		IntakeRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_requests_total",
				Help: "Total number of subscription intake requests by outcome",
			},
			[]string{"outcome"},
		),
		OrphanedCustomersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "intake_orphaned_customers_total",
				Help: "Processor customers created without a persisted subscription record",
			},
		),
		ProcessorCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_processor_calls_total",
				Help: "Total number of payment processor calls",
			},
			[]string{"operation", "status"},
		),
		ProcessorCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intake_processor_call_duration_seconds",
				Help:    "Payment processor call duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_storage_operations_total",
				Help: "Total number of record store operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intake_storage_operation_duration_seconds",
				Help:    "Record store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),
		StoreUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "intake_store_up",
				Help: "Whether the last scheduled record store probe succeeded (1) or failed (0)",
			},
			[]string{"backend"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.IntakeRequestsTotal,
		m.OrphanedCustomersTotal,
		m.ProcessorCallsTotal,
		m.ProcessorCallDuration,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.StoreUp,
	)

	return m
}

// ObserveProcessorCall records one payment processor call. Safe on a nil receiver.
func (m *Metrics) ObserveProcessorCall(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.ProcessorCallsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
	m.ProcessorCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveStorageOperation records one record store operation. Safe on a nil receiver.
func (m *Metrics) ObserveStorageOperation(operation, backend string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.StorageOperationsTotal.WithLabelValues(operation, backend, statusLabel(err)).Inc()
	m.StorageOperationDuration.WithLabelValues(operation, backend).Observe(time.Since(start).Seconds())
}

// SetStoreUp records the result of a store probe. Safe on a nil receiver.
func (m *Metrics) SetStoreUp(backend string, up bool) {
	if m == nil {
		return
	}
	value := 0.0
	if up {
		value = 1
	}
	m.StoreUp.WithLabelValues(backend).Set(value)
}

// ObserveIntake records the outcome of one intake request. Safe on a nil receiver.
func (m *Metrics) ObserveIntake(outcome string) {
	if m == nil {
		return
	}
	m.IntakeRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveOrphanedCustomer counts a customer left behind by a later failure. Safe on a nil receiver.
func (m *Metrics) ObserveOrphanedCustomer() {
	if m == nil {
		return
	}
	m.OrphanedCustomersTotal.Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel prefers the mux route template so path labels stay bounded
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := routeLabel(r)

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
			}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(serveMux *http.ServeMux, gatherer prometheus.Gatherer) {
	serveMux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
