// Package redisstore persists subscription records as Redis hashes under
// <prefix><userPhoneID>.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/subscription-intake/pkg/observability"
	"github.com/platinummonkey/subscription-intake/pkg/storage"
)

// Store is a storage.RecordStore backed by Redis hashes
type Store struct {
	client  *redis.Client
	prefix  string
	metrics *observability.Metrics
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, cfg storage.RedisConfig, metrics *observability.Metrics) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	// go-redis treats 0 as "use the default of 3"; -1 disables retries
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	} else {
		opts.MaxRetries = -1
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{
		client:  client,
		prefix:  cfg.KeyPrefix,
		metrics: metrics,
	}, nil
}

// Key returns the hash key for a userPhoneID
func (s *Store) Key(userPhoneID string) string {
	return s.prefix + userPhoneID
}

// PutRecord writes the record's fields into its hash, replacing earlier values
func (s *Store) PutRecord(ctx context.Context, rec *storage.Record) (err error) {
	if err := rec.Validate(); err != nil {
		return err
	}

	start := time.Now()
	defer func() { s.metrics.ObserveStorageOperation("put_record", storage.BackendRedis, start, err) }()

	key := s.Key(rec.UserPhoneID)
	ctx, span := observability.Tracer().Start(ctx, "Redis.HSet",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("redis.key", key),
		),
	)
	defer span.End()

	err = s.client.HSet(ctx, key, map[string]interface{}{
		"userPhoneID":    rec.UserPhoneID,
		"customerId":     rec.CustomerID,
		"subscriptionId": rec.SubscriptionID,
		"email":          rec.Email,
		"name":           rec.Name,
		"createdAt":      rec.CreatedAtISO(),
	}).Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write hash")
		return fmt.Errorf("redis hset failed: %w", err)
	}

	span.SetStatus(codes.Ok, "record written")
	return nil
}

// HealthCheck pings Redis
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *Store) Close() error {
	return s.client.Close()
}

var _ storage.RecordStore = (*Store)(nil)
