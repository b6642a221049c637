package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/subscription-intake/pkg/observability"
	"github.com/platinummonkey/subscription-intake/pkg/storage"
)

const probeTimeout = 5 * time.Second

// StoreMonitor probes the record store on a cron schedule and publishes the
// result as intake_store_up. It logs only when the state changes.
type StoreMonitor struct {
	cron    *cron.Cron
	store   storage.RecordStore
	backend string
	logger  *observability.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	lastSeen *bool
}

// NewStoreMonitor schedules Probe on schedule ("@every 30s", "*/1 * * * *", ...)
func NewStoreMonitor(store storage.RecordStore, backend, schedule string, logger *observability.Logger, metrics *observability.Metrics) (*StoreMonitor, error) {
	m := &StoreMonitor{
		cron:    cron.New(),
		store:   store,
		backend: backend,
		logger:  logger.WithField("component", "store_monitor").WithField("backend", backend),
		metrics: metrics,
	}

	if _, err := m.cron.AddFunc(schedule, m.Probe); err != nil {
		return nil, fmt.Errorf("invalid store probe schedule %q: %w", schedule, err)
	}
	return m, nil
}

// Start runs an initial probe and starts the scheduler
func (m *StoreMonitor) Start() {
	m.Probe()
	m.cron.Start()
}

// Stop stops the scheduler and waits for a running probe to finish
func (m *StoreMonitor) Stop(ctx context.Context) error {
	select {
	case <-m.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Probe runs one health check and records the result
func (m *StoreMonitor) Probe() {
	defer observability.RecoverPanic(m.logger, "store probe")

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	err := m.store.HealthCheck(ctx)
	up := err == nil
	m.metrics.SetStoreUp(m.backend, up)

	m.mu.Lock()
	changed := m.lastSeen == nil || *m.lastSeen != up
	m.lastSeen = &up
	m.mu.Unlock()

	if !changed {
		return
	}
	if up {
		m.logger.Info("record store reachable")
	} else {
		m.logger.WithError(err).Warn("record store unreachable")
	}
}
