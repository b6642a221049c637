package intake

import (
	"context"
	"fmt"
	"sync"

	"github.com/platinummonkey/subscription-intake/pkg/billing"
	"github.com/platinummonkey/subscription-intake/pkg/storage"
)

// fakeProcessor hands out sequential IDs starting at cus_1/sub_1
type fakeProcessor struct {
	mu            sync.Mutex
	customers     []*billing.CustomerParams
	subscriptions [][2]string
	customerErr   error
	subErr        error
	panicOn       string
}

func (f *fakeProcessor) CreateCustomer(ctx context.Context, params *billing.CustomerParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == billing.OpCreateCustomer {
		panic("processor exploded")
	}
	if f.customerErr != nil {
		return "", f.customerErr
	}
	f.customers = append(f.customers, params)
	return fmt.Sprintf("cus_%d", len(f.customers)), nil
}

func (f *fakeProcessor) CreateSubscription(ctx context.Context, customerID, priceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == billing.OpCreateSubscription {
		panic("processor exploded")
	}
	if f.subErr != nil {
		return "", f.subErr
	}
	f.subscriptions = append(f.subscriptions, [2]string{customerID, priceID})
	return fmt.Sprintf("sub_%d", len(f.subscriptions)), nil
}

func (f *fakeProcessor) customerCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.customers)
}

func (f *fakeProcessor) subscriptionCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscriptions)
}

type fakeStore struct {
	mu      sync.Mutex
	records []storage.Record
	err     error
}

func (f *fakeStore) PutRecord(ctx context.Context, rec *storage.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeStore) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) written() []storage.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.Record(nil), f.records...)
}
