// Package dynamostore persists subscription records as DynamoDB items keyed
// by userPhoneID.
package dynamostore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/subscription-intake/pkg/observability"
	"github.com/platinummonkey/subscription-intake/pkg/storage"
	"github.com/platinummonkey/subscription-intake/pkg/storage/awsutil"
)

// API is the subset of the DynamoDB client used by Store
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// item is the stored shape; attribute names match the JSON record
type item struct {
	UserPhoneID    string `dynamodbav:"userPhoneID"`
	CustomerID     string `dynamodbav:"customerId"`
	SubscriptionID string `dynamodbav:"subscriptionId"`
	Email          string `dynamodbav:"email"`
	Name           string `dynamodbav:"name"`
	CreatedAt      string `dynamodbav:"createdAt"`
}

func newItem(rec *storage.Record) item {
	return item{
		UserPhoneID:    rec.UserPhoneID,
		CustomerID:     rec.CustomerID,
		SubscriptionID: rec.SubscriptionID,
		Email:          rec.Email,
		Name:           rec.Name,
		CreatedAt:      rec.CreatedAtISO(),
	}
}

// Store is a storage.RecordStore backed by one DynamoDB table
type Store struct {
	client  API
	table   string
	metrics *observability.Metrics
}

// New builds a Store from configuration, resolving AWS credentials the
// default way unless static keys are configured.
func New(ctx context.Context, cfg storage.DynamoDBConfig, metrics *observability.Metrics) (*Store, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("dynamodb table is required")
	}

	awsCfg, err := awsutil.LoadConfig(ctx, cfg.Region, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewWithClient(client, cfg.Table, metrics), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client API, table string, metrics *observability.Metrics) *Store {
	return &Store{
		client:  client,
		table:   table,
		metrics: metrics,
	}
}

// PutRecord writes the record, replacing any item with the same userPhoneID
func (s *Store) PutRecord(ctx context.Context, rec *storage.Record) (err error) {
	if err := rec.Validate(); err != nil {
		return err
	}

	start := time.Now()
	defer func() { s.metrics.ObserveStorageOperation("put_record", storage.BackendDynamoDB, start, err) }()

	ctx, span := observability.Tracer().Start(ctx, "DynamoDB.PutItem",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "dynamodb"),
			attribute.String("aws.dynamodb.table_names", s.table),
		),
	)
	defer span.End()

	av, err := attributevalue.MarshalMap(newItem(rec))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal item")
		return fmt.Errorf("failed to marshal subscription record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put item")
		return fmt.Errorf("failed to put subscription record: %w", err)
	}

	span.SetStatus(codes.Ok, "item written")
	return nil
}

// HealthCheck verifies the table is reachable
func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err != nil {
		return fmt.Errorf("dynamodb health check failed: %w", err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no connections that need releasing
func (s *Store) Close() error {
	return nil
}

var _ storage.RecordStore = (*Store)(nil)
