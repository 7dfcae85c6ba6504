package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/BatmanBruc/dmg-bot/types"
)

// Records is the typed view over a KVStore used by the payment and demo
// components.
type Records struct {
	kv types.KVStore
}

func NewRecords(kv types.KVStore) *Records {
	return &Records{kv: kv}
}

func (r *Records) GetPayment(ctx context.Context, key types.AccountKey) (*types.PaymentRecord, error) {
	raw, err := r.kv.Get(ctx, types.CollectionPayments, key.String())
	if err != nil || raw == nil {
		return nil, err
	}
	var rec types.PaymentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode payment %s: %w", key, err)
	}
	return &rec, nil
}

func (r *Records) PutPayment(ctx context.Context, rec *types.PaymentRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.kv.Put(ctx, types.CollectionPayments, rec.Key().String(), data)
}

// ListPayments returns all payment records ordered by key. Entries that fail
// to decode are skipped.
func (r *Records) ListPayments(ctx context.Context) ([]*types.PaymentRecord, error) {
	all, err := r.kv.GetAll(ctx, types.CollectionPayments)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*types.PaymentRecord, 0, len(all))
	for _, k := range keys {
		var rec types.PaymentRecord
		if err := json.Unmarshal(all[k], &rec); err != nil {
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (r *Records) GetDemoUsage(ctx context.Context, key types.AccountKey) (*types.DemoUsageRecord, error) {
	raw, err := r.kv.Get(ctx, types.CollectionDemoUsage, key.String())
	if err != nil || raw == nil {
		return nil, err
	}
	var rec types.DemoUsageRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode demo usage %s: %w", key, err)
	}
	return &rec, nil
}

func (r *Records) PutDemoUsage(ctx context.Context, key types.AccountKey, rec *types.DemoUsageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.kv.Put(ctx, types.CollectionDemoUsage, key.String(), data)
}

func (r *Records) DeleteDemoUsage(ctx context.Context, key types.AccountKey) error {
	return r.kv.Delete(ctx, types.CollectionDemoUsage, key.String())
}
