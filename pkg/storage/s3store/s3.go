// Package s3store persists subscription records as JSON objects, one per
// userPhoneID. Writing the same userPhoneID again overwrites the object.
package s3store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/subscription-intake/pkg/observability"
	"github.com/platinummonkey/subscription-intake/pkg/storage"
	"github.com/platinummonkey/subscription-intake/pkg/storage/awsutil"
)

const contentType = "application/json"

// API is the subset of the S3 client used by Store
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Store is a storage.RecordStore backed by an S3 bucket
type Store struct {
	client  API
	bucket  string
	prefix  string
	metrics *observability.Metrics
}

// New builds a Store from configuration. Endpoint and UsePathStyle allow
// MinIO or LocalStack in development.
func New(ctx context.Context, cfg storage.S3Config, metrics *observability.Metrics) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg, err := awsutil.LoadConfig(ctx, cfg.Region, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg.Bucket, cfg.Prefix, metrics), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client API, bucket, prefix string, metrics *observability.Metrics) *Store {
	return &Store{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		metrics: metrics,
	}
}

// Key returns the object key for a userPhoneID
func (s *Store) Key(userPhoneID string) string {
	return s.prefix + userPhoneID + ".json"
}

// PutRecord uploads the record as JSON with a sha256 checksum in its metadata
func (s *Store) PutRecord(ctx context.Context, rec *storage.Record) (err error) {
	if err := rec.Validate(); err != nil {
		return err
	}

	start := time.Now()
	defer func() { s.metrics.ObserveStorageOperation("put_record", storage.BackendS3, start, err) }()

	key := s.Key(rec.UserPhoneID)
	ctx, span := observability.Tracer().Start(ctx, "S3.PutObject",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("s3.operation", "PutObject"),
			attribute.String("s3.bucket", s.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	data, err := json.Marshal(rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal record")
		return fmt.Errorf("failed to marshal subscription record: %w", err)
	}
	span.SetAttributes(attribute.Int("content.size", len(data)))

	hash := sha256.Sum256(data)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload to s3")
		return fmt.Errorf("failed to upload subscription record to s3: %w", err)
	}

	span.SetStatus(codes.Ok, "object uploaded")
	return nil
}

// HealthCheck verifies the bucket is reachable
func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

var _ storage.RecordStore = (*Store)(nil)
