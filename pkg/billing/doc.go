// Package billing talks to the payment processor.
//
// # Overview
//
// The intake workflow needs two processor calls, in order: create a
// customer with the tokenized card attached, then subscribe that customer
// to the configured price. Processor is that port; StripeProcessor is the
// production implementation on stripe-go.
//
// # Usage Example
//
//	processor, err := billing.NewStripeProcessor(billing.StripeConfig{
//		SecretKey: cfg.Stripe.SecretKey,
//		Timeout:   30 * time.Second,
//	}, logger, metrics)
//
//	customerID, err := processor.CreateCustomer(ctx, &billing.CustomerParams{
//		Email:    "a@b.com",
//		Name:     "A B",
//		Source:   "tok_visa",
//		Metadata: map[string]string{"userPhoneID": "u1"},
//	})
//	subscriptionID, err := processor.CreateSubscription(ctx, customerID, priceID)
//
// # Errors
//
// Failed calls return *Error. When Stripe answered with a structured error
// the Stripe type, code, request ID and HTTP status are copied onto it so
// they can be logged; they are never shown to the end user.
//
// # Retries
//
// The Stripe client is built with zero network retries and no idempotency
// keys, so a request that fails mid-flight is reported rather than
// replayed.
package billing
