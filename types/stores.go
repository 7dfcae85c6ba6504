package types

import (
	"context"
	"encoding/json"
)

// KVStore keeps JSON records grouped in named collections.
// Get returns nil, nil when the key is absent.
type KVStore interface {
	Get(ctx context.Context, collection, key string) (json.RawMessage, error)
	Put(ctx context.Context, collection, key string, value json.RawMessage) error
	Delete(ctx context.Context, collection, key string) error
	GetAll(ctx context.Context, collection string) (map[string]json.RawMessage, error)
	Close() error
}

type PaymentStore interface {
	GetPayment(ctx context.Context, key AccountKey) (*PaymentRecord, error)
	PutPayment(ctx context.Context, rec *PaymentRecord) error
	ListPayments(ctx context.Context) ([]*PaymentRecord, error)
}

type DemoUsageStore interface {
	GetDemoUsage(ctx context.Context, key AccountKey) (*DemoUsageRecord, error)
	PutDemoUsage(ctx context.Context, key AccountKey, rec *DemoUsageRecord) error
	DeleteDemoUsage(ctx context.Context, key AccountKey) error
}
