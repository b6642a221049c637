package intake

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/subscription-intake/pkg/billing"
	"github.com/platinummonkey/subscription-intake/pkg/observability"
	"github.com/platinummonkey/subscription-intake/pkg/storage"
)

// Config is the resolved configuration the intake needs at call time
type Config struct {
	// PriceID is the processor price every new subscription is created on.
	// It is checked after the customer is created, not at startup.
	PriceID string
}

// Service runs the intake workflow: validate, create customer, create
// subscription, persist the record. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	processor billing.Processor
	store     storage.RecordStore
	config    Config
	logger    *observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the fallback logger used when the context carries none
func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithClock overrides the clock used for createdAt
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates an intake Service
func NewService(processor billing.Processor, store storage.RecordStore, config Config, opts ...Option) *Service {
	s := &Service{
		processor: processor,
		store:     store,
		config:    config,
		logger:    observability.NopLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe runs one intake. Validation happens before any remote call.
// The three remote calls run strictly in sequence, and a record is written
// only if both the customer and the subscription were created. Nothing is
// compensated: a failure after the customer exists leaves it orphaned.
func (s *Service) Subscribe(ctx context.Context, req *Request) (out *Outcome, err error) {
	ctx = observability.WithLogger(ctx, s.contextLogger(ctx))

	ctx, span := observability.Tracer().Start(ctx, "Intake.Subscribe")
	defer span.End()

	logger := observability.FromContext(ctx)

	var customerID string
	defer func() {
		if perr := observability.MustRecover(recover()); perr != nil {
			observability.LogPanic(logger, "intake.Subscribe", perr)
			out, err = nil, &Error{Kind: KindInternalError, Op: "subscribe", CustomerID: customerID, Err: perr}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(KindOf(err)))
			s.logFailure(logger, err)
		} else {
			span.SetStatus(codes.Ok, "subscribed")
		}
		s.metrics.ObserveIntake(outcomeLabel(err))
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("intake.user_phone_id", req.UserPhoneID))

	customerID, err = s.processor.CreateCustomer(ctx, &billing.CustomerParams{
		Email:    req.Email,
		Name:     req.FullName,
		Source:   req.PaymentToken,
		Metadata: map[string]string{"userPhoneID": req.UserPhoneID},
	})
	if err != nil {
		return nil, &Error{Kind: KindProcessorError, Op: billing.OpCreateCustomer, Err: err}
	}
	logger.WithField("customer_id", customerID).Info("customer created")

	if s.config.PriceID == "" {
		return nil, &Error{Kind: KindConfigurationMissing, Op: billing.OpCreateSubscription, CustomerID: customerID, Err: ErrPriceNotConfigured}
	}

	subscriptionID, err := s.processor.CreateSubscription(ctx, customerID, s.config.PriceID)
	if err != nil {
		return nil, &Error{Kind: KindProcessorError, Op: billing.OpCreateSubscription, CustomerID: customerID, Err: err}
	}
	logger.WithFields(map[string]interface{}{
		"customer_id":     customerID,
		"subscription_id": subscriptionID,
	}).Info("subscription created")

	rec := &storage.Record{
		UserPhoneID:    req.UserPhoneID,
		CustomerID:     customerID,
		SubscriptionID: subscriptionID,
		Email:          req.Email,
		Name:           req.FullName,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.PutRecord(ctx, rec); err != nil {
		return nil, &Error{Kind: KindStoreError, Op: "put_record", CustomerID: customerID, Err: err}
	}
	logger.WithField("user_phone_id", req.UserPhoneID).Info("record saved")

	return &Outcome{CustomerID: customerID, SubscriptionID: subscriptionID}, nil
}

// contextLogger keeps a logger already placed in ctx by the HTTP middleware
func (s *Service) contextLogger(ctx context.Context) *observability.Logger {
	if logger, ok := ctx.Value(observability.LoggerKey).(*observability.Logger); ok {
		return logger
	}
	return s.logger
}

func (s *Service) logFailure(logger *observability.Logger, err error) {
	var intakeErr *Error
	if !errors.As(err, &intakeErr) {
		logger.WithError(err).Error("intake failed")
		return
	}

	entry := logger.WithError(err).WithFields(map[string]interface{}{
		"kind": string(intakeErr.Kind),
		"op":   intakeErr.Op,
	})
	var billingErr *billing.Error
	if errors.As(err, &billingErr) {
		entry = entry.WithFields(billingErr.LogFields())
	}

	if intakeErr.Kind == KindValidationFailed {
		entry.Warn("intake rejected")
		return
	}
	entry.Error("intake failed")

	if intakeErr.CustomerID != "" {
		logger.WithField("customer_id", intakeErr.CustomerID).Warn("customer orphaned")
		s.metrics.ObserveOrphanedCustomer()
	}
}

// reject records a request that never reached Subscribe
func (s *Service) reject(ctx context.Context, err error) {
	logger := observability.FromContext(observability.WithLogger(ctx, s.contextLogger(ctx)))
	logger.WithError(err).Warn("intake rejected")
	s.metrics.ObserveIntake(outcomeLabel(err))
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(KindOf(err))
}
