package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/subscription-intake/pkg/billing"
	"github.com/platinummonkey/subscription-intake/pkg/config"
	"github.com/platinummonkey/subscription-intake/pkg/intake"
	"github.com/platinummonkey/subscription-intake/pkg/observability"
	"github.com/platinummonkey/subscription-intake/pkg/storage"
)

type stubProcessor struct {
	mu    sync.Mutex
	calls int
}

func (p *stubProcessor) CreateCustomer(ctx context.Context, params *billing.CustomerParams) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return fmt.Sprintf("cus_%d", p.calls), nil
}

func (p *stubProcessor) CreateSubscription(ctx context.Context, customerID, priceID string) (string, error) {
	return "sub_" + strings.TrimPrefix(customerID, "cus_"), nil
}

type stubStore struct {
	mu      sync.Mutex
	records []storage.Record
	downErr error
	closed  bool
}

func (s *stubStore) PutRecord(ctx context.Context, rec *storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

func (s *stubStore) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downErr
}

func (s *stubStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubStore) setDown(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downErr = err
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:               "127.0.0.1",
			Port:               "0",
			HealthPort:         "0",
			ReadTimeout:        time.Second,
			WriteTimeout:       time.Second,
			ShutdownTimeout:    time.Second,
			CORSOrigins:        []string{"https://app.example.com"},
			StoreProbeSchedule: "@every 1h",
		},
		Stripe: config.StripeConfig{
			SecretKey: "sk_test",
			PriceID:   "price_123",
		},
		Storage: storage.Config{Type: storage.BackendSQLite, SQLite: storage.SQLiteConfig{Path: ":memory:"}},
	}
}

func newTestApp(t *testing.T, store *stubStore) (*App, *prometheus.Registry) {
	t.Helper()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	logger := observability.NopLogger()
	components := &Components{
		Store:     store,
		Processor: &stubProcessor{},
	}
	components.Service = intake.NewService(components.Processor, store, intake.Config{PriceID: "price_123"},
		intake.WithLogger(logger),
		intake.WithMetrics(metrics),
	)

	app, err := NewApp(testConfig(), logger, components, registry, metrics, nil, "test")
	require.NoError(t, err)
	return app, registry
}

const validBody = `{"token":"tok_visa","email":"a@b.com","name":"A B","userPhoneID":"u1"}`

func TestRouter_Subscribe(t *testing.T) {
	store := &stubStore{}
	app, _ := newTestApp(t, store)

	for _, path := range []string{"/", "/subscriptions"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(validBody))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			app.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			var body intake.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.True(t, body.Success)
			assert.NotEmpty(t, body.CustomerID)
			assert.NotEmpty(t, body.SubscriptionID)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}

	assert.Len(t, store.records, 2)
}

func TestRouter_AcceptsAnyContentType(t *testing.T) {
	store := &stubStore{}
	app, _ := newTestApp(t, store)

	for _, contentType := range []string{"", "text/plain", "application/x-www-form-urlencoded", "application/json; charset=utf-8"} {
		t.Run(contentType, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(validBody))
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
			rec := httptest.NewRecorder()

			app.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			var body intake.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.True(t, body.Success)
		})
	}

	assert.Len(t, store.records, 4)
}

func TestRouter_Rejections(t *testing.T) {
	app, _ := newTestApp(t, &stubStore{})

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		wantCode    int
	}{
		{"missing field", http.MethodPost, "/", "application/json", `{"token":"tok_visa"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/", "application/json", `{`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/subscriptions", "", "", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodPost, "/nope", "application/json", validBody, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()

			app.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	app, _ := newTestApp(t, &stubStore{})

	req := httptest.NewRequest(http.MethodOptions, "/subscriptions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	app.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthHandler(t *testing.T) {
	store := &stubStore{}
	app, _ := newTestApp(t, store)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		app.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/health/live").Code)
	assert.Equal(t, http.StatusOK, get("/health/ready").Code)

	store.setDown(errors.New("connection refused"))
	rec := get("/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status observability.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, observability.StatusUnhealthy, status.Dependencies["record_store"].Status)
	assert.Equal(t, "test", status.Version)

	// liveness ignores dependencies
	assert.Equal(t, http.StatusOK, get("/health/live").Code)
}

func TestHealthHandler_Metrics(t *testing.T) {
	app, _ := newTestApp(t, &stubStore{})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(validBody))
	req.Header.Set("Content-Type", "application/json")
	app.Handler().ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	app.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "intake_requests_total")
}

func TestNewHealthMux_NoMetrics(t *testing.T) {
	serveMux := NewHealthMux(observability.NewHealthChecker("v"), nil)

	rec := httptest.NewRecorder()
	serveMux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewApp_InvalidProbeSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Server.StoreProbeSchedule = "every so often"
	store := &stubStore{}
	components := &Components{Store: store, Processor: &stubProcessor{}}
	components.Service = intake.NewService(components.Processor, store, intake.Config{})

	_, err := NewApp(cfg, observability.NopLogger(), components, nil, nil, nil, "test")
	assert.Error(t, err)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	store := &stubStore{}
	app, _ := newTestApp(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.True(t, store.closed)
}

func TestOpenRecordStore(t *testing.T) {
	t.Run("sqlite in memory", func(t *testing.T) {
		cfg := storage.DefaultConfig()
		cfg.Type = storage.BackendSQLite
		cfg.SQLite.Path = ":memory:"

		store, err := OpenRecordStore(context.Background(), cfg, nil)
		require.NoError(t, err)
		defer store.Close()

		require.NoError(t, store.PutRecord(context.Background(), &storage.Record{
			UserPhoneID:    "u1",
			CustomerID:     "cus_1",
			SubscriptionID: "sub_1",
			Email:          "a@b.com",
			Name:           "A B",
			CreatedAt:      time.Now(),
		}))
		assert.NoError(t, store.HealthCheck(context.Background()))
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := storage.DefaultConfig()
		cfg.DynamoDB.Table = ""

		_, err := OpenRecordStore(context.Background(), cfg, nil)
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := storage.DefaultConfig()
		cfg.Type = "cassandra"

		_, err := OpenRecordStore(context.Background(), cfg, nil)
		assert.Error(t, err)
	})
}

func TestBuildComponents_SQLite(t *testing.T) {
	cfg := testConfig()

	components, err := BuildComponents(context.Background(), cfg, observability.NopLogger(), nil)
	require.NoError(t, err)
	defer components.Store.Close()

	assert.NotNil(t, components.Service)
	assert.NotNil(t, components.Processor)
}

func TestStoreMonitor_Probe(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	store := &stubStore{}

	monitor, err := NewStoreMonitor(store, storage.BackendSQLite, "@every 1h", observability.NopLogger(), metrics)
	require.NoError(t, err)

	monitor.Probe()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StoreUp.WithLabelValues(storage.BackendSQLite)))

	store.setDown(errors.New("timeout"))
	monitor.Probe()
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.StoreUp.WithLabelValues(storage.BackendSQLite)))
}

func TestStoreMonitor_StartStop(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	monitor, err := NewStoreMonitor(&stubStore{}, storage.BackendRedis, "@every 1h", observability.NopLogger(), metrics)
	require.NoError(t, err)

	monitor.Start()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StoreUp.WithLabelValues(storage.BackendRedis)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, monitor.Stop(ctx))
}

func TestStoreMonitor_LogsTransitionsOnly(t *testing.T) {
	var buf bytes.Buffer
	store := &stubStore{}

	monitor, err := NewStoreMonitor(store, storage.BackendSQLite, "@every 1h", observability.NewLogger(observability.InfoLevel, &buf), nil)
	require.NoError(t, err)

	monitor.Probe()
	monitor.Probe()
	store.setDown(errors.New("timeout"))
	monitor.Probe()
	monitor.Probe()

	assert.Equal(t, 1, strings.Count(buf.String(), "record store reachable"))
	assert.Equal(t, 1, strings.Count(buf.String(), "record store unreachable"))
}
