package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the ISO-8601 form used for createdAt in every backend
// that stores it as text (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Backend identifiers accepted in Config.Type
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendS3       = "s3"
)

// ErrInvalidRecord is returned when a record lacks its partition key
var ErrInvalidRecord = errors.New("invalid subscription record")

// Record is the denormalized result of one successful intake, keyed by the
// caller's userPhoneID. Writes are upserts.
type Record struct {
	UserPhoneID    string
	CustomerID     string
	SubscriptionID string
	Email          string
	Name           string
	CreatedAt      time.Time
}

// CreatedAtISO formats CreatedAt with TimestampLayout
func (r *Record) CreatedAtISO() string {
	return r.CreatedAt.UTC().Format(TimestampLayout)
}

// Validate checks that the record can be keyed
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if r.UserPhoneID == "" {
		return fmt.Errorf("%w: userPhoneID is required", ErrInvalidRecord)
	}
	return nil
}

type recordJSON struct {
	UserPhoneID    string `json:"userPhoneID"`
	CustomerID     string `json:"customerId"`
	SubscriptionID string `json:"subscriptionId"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	CreatedAt      string `json:"createdAt"`
}

// MarshalJSON encodes the record with the stored attribute names
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		UserPhoneID:    r.UserPhoneID,
		CustomerID:     r.CustomerID,
		SubscriptionID: r.SubscriptionID,
		Email:          r.Email,
		Name:           r.Name,
		CreatedAt:      r.CreatedAtISO(),
	})
}

// UnmarshalJSON decodes the form produced by MarshalJSON
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	createdAt, err := time.Parse(TimestampLayout, raw.CreatedAt)
	if err != nil {
		return fmt.Errorf("invalid createdAt: %w", err)
	}
	*r = Record{
		UserPhoneID:    raw.UserPhoneID,
		CustomerID:     raw.CustomerID,
		SubscriptionID: raw.SubscriptionID,
		Email:          raw.Email,
		Name:           raw.Name,
		CreatedAt:      createdAt,
	}
	return nil
}

// RecordStore persists subscription records
type RecordStore interface {
	// PutRecord upserts the record under its UserPhoneID
	PutRecord(ctx context.Context, rec *Record) error

	// HealthCheck verifies the backend is reachable
	HealthCheck(ctx context.Context) error

	// Close releases connections held by the store
	Close() error
}

// Config selects and configures the record store backend
type Config struct {
	Type string `koanf:"type" yaml:"type"`

	DynamoDB DynamoDBConfig `koanf:"dynamodb" yaml:"dynamodb"`
	Postgres PostgresConfig `koanf:"postgres" yaml:"postgres"`
	SQLite   SQLiteConfig   `koanf:"sqlite" yaml:"sqlite"`
	Redis    RedisConfig    `koanf:"redis" yaml:"redis"`
	S3       S3Config       `koanf:"s3" yaml:"s3"`
}

// DynamoDBConfig configures the DynamoDB backend
type DynamoDBConfig struct {
	Table     string `koanf:"table" yaml:"table"`
	Region    string `koanf:"region" yaml:"region"`
	Endpoint  string `koanf:"endpoint" yaml:"endpoint"` // DynamoDB Local or LocalStack
	AccessKey string `koanf:"access_key" yaml:"access_key"`
	SecretKey string `koanf:"secret_key" yaml:"secret_key"`
}

// PostgresConfig configures the PostgreSQL backend
type PostgresConfig struct {
	URL      string        `koanf:"url" yaml:"url"`
	MaxConns int           `koanf:"max_conns" yaml:"max_conns"`
	MinConns int           `koanf:"min_conns" yaml:"min_conns"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout"`
}

// SQLiteConfig configures the SQLite backend used for local development
type SQLiteConfig struct {
	Path string `koanf:"path" yaml:"path"`
}

// RedisConfig configures the Redis backend
type RedisConfig struct {
	URL        string `koanf:"url" yaml:"url"`
	Password   string `koanf:"password" yaml:"password"`
	DB         int    `koanf:"db" yaml:"db"`
	KeyPrefix  string `koanf:"key_prefix" yaml:"key_prefix"`
	PoolSize   int    `koanf:"pool_size" yaml:"pool_size"`
	MaxRetries int    `koanf:"max_retries" yaml:"max_retries"` // 0 disables retries
}

// S3Config configures the S3 backend
type S3Config struct {
	Bucket       string `koanf:"bucket" yaml:"bucket"`
	Prefix       string `koanf:"prefix" yaml:"prefix"`
	Region       string `koanf:"region" yaml:"region"`
	Endpoint     string `koanf:"endpoint" yaml:"endpoint"`
	AccessKey    string `koanf:"access_key" yaml:"access_key"`
	SecretKey    string `koanf:"secret_key" yaml:"secret_key"`
	UsePathStyle bool   `koanf:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the defaults: DynamoDB in eu-north-1
func DefaultConfig() Config {
	return Config{
		Type: BackendDynamoDB,
		DynamoDB: DynamoDBConfig{
			Region: "eu-north-1",
		},
		Postgres: PostgresConfig{
			MaxConns: 10,
			MinConns: 2,
			Timeout:  5 * time.Second,
		},
		SQLite: SQLiteConfig{
			Path: "subscriptions.db",
		},
		Redis: RedisConfig{
			KeyPrefix:  "subscription:",
			PoolSize:   10,
			MaxRetries: 0,
		},
		S3: S3Config{
			Prefix: "subscriptions/",
			Region: "eu-north-1",
		},
	}
}

// Validate checks the settings required by the selected backend
func (c Config) Validate() error {
	switch c.Type {
	case BackendDynamoDB:
		if c.DynamoDB.Table == "" {
			return fmt.Errorf("dynamodb table is required for dynamodb storage")
		}
		if c.DynamoDB.Region == "" {
			return fmt.Errorf("dynamodb region is required for dynamodb storage")
		}
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for redis storage")
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %q (must be dynamodb, postgres, sqlite, redis, or s3)", c.Type)
	}
	return nil
}
