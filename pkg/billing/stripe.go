package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/subscription-intake/pkg/observability"
)

// DefaultStripeTimeout bounds a single Stripe API request
const DefaultStripeTimeout = 30 * time.Second

// StripeConfig configures the Stripe client
type StripeConfig struct {
	SecretKey string
	// APIURL overrides https://api.stripe.com (stripe-mock, tests)
	APIURL  string
	Timeout time.Duration
}

// StripeProcessor implements Processor against the Stripe API. Network
// retries are disabled: a retried customer create is a second customer.
type StripeProcessor struct {
	client  *stripe.Client
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewStripeProcessor builds a Stripe client from cfg
func NewStripeProcessor(cfg StripeConfig, logger *observability.Logger, metrics *observability.Metrics) (*StripeProcessor, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultStripeTimeout
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		LeveledLogger:     logger.WithField("component", "stripe"),
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.APIURL != "" {
		backendConfig.URL = stripe.String(cfg.APIURL)
	}

	client := stripe.NewClient(cfg.SecretKey,
		stripe.WithBackends(stripe.NewBackendsWithConfig(backendConfig)),
	)

	return &StripeProcessor{
		client:  client,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// CreateCustomer creates a Stripe customer with params.Source attached
func (p *StripeProcessor) CreateCustomer(ctx context.Context, params *CustomerParams) (id string, err error) {
	start := time.Now()
	defer func() { p.metrics.ObserveProcessorCall(OpCreateCustomer, start, err) }()

	ctx, span := observability.Tracer().Start(ctx, "Stripe.CreateCustomer",
		trace.WithAttributes(attribute.String("billing.operation", OpCreateCustomer)),
	)
	defer span.End()

	customerParams := &stripe.CustomerCreateParams{
		Email:  stripe.String(params.Email),
		Name:   stripe.String(params.Name),
		Source: stripe.String(params.Source),
	}
	for k, v := range params.Metadata {
		customerParams.AddMetadata(k, v)
	}

	customer, err := p.client.V1Customers.Create(ctx, customerParams)
	if err != nil {
		err = wrapStripeError(OpCreateCustomer, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create customer")
		return "", err
	}

	span.SetAttributes(attribute.String("stripe.customer_id", customer.ID))
	span.SetStatus(codes.Ok, "customer created")
	return customer.ID, nil
}

// CreateSubscription creates a single-item subscription for customerID
func (p *StripeProcessor) CreateSubscription(ctx context.Context, customerID, priceID string) (id string, err error) {
	start := time.Now()
	defer func() { p.metrics.ObserveProcessorCall(OpCreateSubscription, start, err) }()

	ctx, span := observability.Tracer().Start(ctx, "Stripe.CreateSubscription",
		trace.WithAttributes(
			attribute.String("billing.operation", OpCreateSubscription),
			attribute.String("stripe.customer_id", customerID),
			attribute.String("stripe.price_id", priceID),
		),
	)
	defer span.End()

	subscriptionParams := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{Price: stripe.String(priceID)},
		},
	}

	subscription, err := p.client.V1Subscriptions.Create(ctx, subscriptionParams)
	if err != nil {
		err = wrapStripeError(OpCreateSubscription, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create subscription")
		return "", err
	}

	span.SetAttributes(attribute.String("stripe.subscription_id", subscription.ID))
	span.SetStatus(codes.Ok, "subscription created")
	return subscription.ID, nil
}

func wrapStripeError(op string, err error) error {
	billingErr := &Error{Op: op, Err: err}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		billingErr.Type = string(stripeErr.Type)
		billingErr.Code = string(stripeErr.Code)
		billingErr.RequestID = stripeErr.RequestID
		billingErr.StatusCode = stripeErr.HTTPStatusCode
	}
	return billingErr
}

var _ Processor = (*StripeProcessor)(nil)
