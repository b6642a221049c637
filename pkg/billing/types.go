package billing

import (
	"context"
	"fmt"
)

// Processor creates customers and subscriptions at the payment processor
type Processor interface {
	// CreateCustomer registers a customer with a tokenized payment source
	// and returns the processor's customer ID.
	CreateCustomer(ctx context.Context, params *CustomerParams) (string, error)

	// CreateSubscription subscribes the customer to priceID and returns
	// the processor's subscription ID.
	CreateSubscription(ctx context.Context, customerID, priceID string) (string, error)
}

// CustomerParams describes a customer to create
type CustomerParams struct {
	Email string
	Name  string
	// Source is the single-use payment token produced by the client SDK
	Source   string
	Metadata map[string]string
}

// Operation names used in errors, spans and metrics
const (
	OpCreateCustomer     = "create_customer"
	OpCreateSubscription = "create_subscription"
)

// Error is a failed processor call. Type, Code and RequestID are filled in
// when the processor returned a structured error.
type Error struct {
	Op         string
	Type       string
	Code       string
	RequestID  string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("billing %s failed (%s/%s): %v", e.Op, e.Type, e.Code, e.Err)
	}
	return fmt.Sprintf("billing %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// LogFields returns the structured fields worth logging for this error
func (e *Error) LogFields() map[string]interface{} {
	fields := map[string]interface{}{
		"billing_op": e.Op,
	}
	if e.Type != "" {
		fields["stripe_error_type"] = e.Type
	}
	if e.Code != "" {
		fields["stripe_error_code"] = e.Code
	}
	if e.RequestID != "" {
		fields["stripe_request_id"] = e.RequestID
	}
	if e.StatusCode != 0 {
		fields["stripe_status"] = e.StatusCode
	}
	return fields
}
