// Package sqlstore persists subscription records in a SQL table. PostgreSQL
// (lib/pq) is the production dialect; SQLite (go-sqlite3) serves local
// development and tests.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/subscription-intake/pkg/observability"
	"github.com/platinummonkey/subscription-intake/pkg/storage"
)

// Dialect captures the driver and SQL differences between backends
type Dialect struct {
	Backend    string
	DriverName string
	schema     string
	upsert     string
}

// Postgres is the PostgreSQL dialect
var Postgres = Dialect{
	Backend:    storage.BackendPostgres,
	DriverName: "postgres",
	schema: `
		CREATE TABLE IF NOT EXISTS subscription_records (
			user_phone_id   TEXT PRIMARY KEY,
			customer_id     TEXT NOT NULL,
			subscription_id TEXT NOT NULL,
			email           TEXT NOT NULL,
			name            TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL
		)`,
	upsert: `
		INSERT INTO subscription_records (user_phone_id, customer_id, subscription_id, email, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_phone_id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			subscription_id = EXCLUDED.subscription_id,
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			created_at = EXCLUDED.created_at`,
}

// SQLite is the SQLite dialect; created_at is stored as ISO-8601 text
var SQLite = Dialect{
	Backend:    storage.BackendSQLite,
	DriverName: "sqlite3",
	schema: `
		CREATE TABLE IF NOT EXISTS subscription_records (
			user_phone_id   TEXT PRIMARY KEY,
			customer_id     TEXT NOT NULL,
			subscription_id TEXT NOT NULL,
			email           TEXT NOT NULL,
			name            TEXT NOT NULL,
			created_at      TEXT NOT NULL
		)`,
	upsert: `
		INSERT INTO subscription_records (user_phone_id, customer_id, subscription_id, email, name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_phone_id) DO UPDATE SET
			customer_id = excluded.customer_id,
			subscription_id = excluded.subscription_id,
			email = excluded.email,
			name = excluded.name,
			created_at = excluded.created_at`,
}

// Store is a storage.RecordStore backed by database/sql
type Store struct {
	db      *sql.DB
	dialect Dialect
	metrics *observability.Metrics
}

// OpenPostgres connects to PostgreSQL, verifies the connection and ensures the table exists
func OpenPostgres(ctx context.Context, cfg storage.PostgresConfig, metrics *observability.Metrics) (*Store, error) {
	db, err := sql.Open(Postgres.DriverName, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return open(ctx, db, Postgres, cfg.Timeout, metrics)
}

// OpenSQLite opens (creating if needed) a SQLite database file. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, cfg storage.SQLiteConfig, metrics *observability.Metrics) (*Store, error) {
	db, err := sql.Open(SQLite.DriverName, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers, and each ":memory:" connection is its own database
	db.SetMaxOpenConns(1)

	return open(ctx, db, SQLite, 5*time.Second, metrics)
}

func open(ctx context.Context, db *sql.DB, dialect Dialect, timeout time.Duration, metrics *observability.Metrics) (*Store, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewWithDB(db, dialect, metrics)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB wraps an existing connection without touching the schema
func NewWithDB(db *sql.DB, dialect Dialect, metrics *observability.Metrics) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		metrics: metrics,
	}
}

// Migrate creates the subscription_records table if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("failed to create subscription_records table: %w", err)
	}
	return nil
}

// PutRecord upserts the record keyed by user_phone_id
func (s *Store) PutRecord(ctx context.Context, rec *storage.Record) (err error) {
	if err := rec.Validate(); err != nil {
		return err
	}

	start := time.Now()
	defer func() { s.metrics.ObserveStorageOperation("put_record", s.dialect.Backend, start, err) }()

	ctx, span := observability.Tracer().Start(ctx, "SQL.PutRecord",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", s.dialect.Backend),
			attribute.String("db.sql.table", "subscription_records"),
		),
	)
	defer span.End()

	_, err = s.db.ExecContext(ctx, s.dialect.upsert,
		rec.UserPhoneID,
		rec.CustomerID,
		rec.SubscriptionID,
		rec.Email,
		rec.Name,
		rec.CreatedAtISO(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upsert record")
		return fmt.Errorf("failed to upsert subscription record: %w", err)
	}

	span.SetStatus(codes.Ok, "record upserted")
	return nil
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", s.dialect.Backend, err)
	}
	return nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

var _ storage.RecordStore = (*Store)(nil)
