package server

import (
	"context"
	"fmt"

	"github.com/platinummonkey/subscription-intake/pkg/observability"
	"github.com/platinummonkey/subscription-intake/pkg/storage"
	"github.com/platinummonkey/subscription-intake/pkg/storage/dynamostore"
	"github.com/platinummonkey/subscription-intake/pkg/storage/redisstore"
	"github.com/platinummonkey/subscription-intake/pkg/storage/s3store"
	"github.com/platinummonkey/subscription-intake/pkg/storage/sqlstore"
)

// OpenRecordStore opens the backend selected by cfg.Type
func OpenRecordStore(ctx context.Context, cfg storage.Config, metrics *observability.Metrics) (storage.RecordStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case storage.BackendDynamoDB:
		return dynamostore.New(ctx, cfg.DynamoDB, metrics)
	case storage.BackendPostgres:
		return sqlstore.OpenPostgres(ctx, cfg.Postgres, metrics)
	case storage.BackendSQLite:
		return sqlstore.OpenSQLite(ctx, cfg.SQLite, metrics)
	case storage.BackendRedis:
		return redisstore.New(ctx, cfg.Redis, metrics)
	case storage.BackendS3:
		return s3store.New(ctx, cfg.S3, metrics)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
