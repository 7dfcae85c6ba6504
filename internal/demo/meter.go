package demo

import (
	"context"
	"time"

	"github.com/BatmanBruc/dmg-bot/internal/keylock"
	"github.com/BatmanBruc/dmg-bot/types"
	"go.uber.org/zap"
)

const DefaultQuota = 3

// Meter counts free invocations of gated commands per member and guild.
type Meter struct {
	store types.DemoUsageStore
	quota int
	log   *zap.Logger
	now   func() time.Time

	locks keylock.Map
}

func NewMeter(store types.DemoUsageStore, quota int, log *zap.Logger) *Meter {
	if quota <= 0 {
		quota = DefaultQuota
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Meter{
		store: store,
		quota: quota,
		log:   log.Named("demo"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *Meter) Quota() int {
	return m.quota
}

// GetUsage never creates a record. Read failures are logged and reported as
// an untouched allotment.
func (m *Meter) GetUsage(ctx context.Context, key types.AccountKey) types.DemoUsageRecord {
	rec, err := m.store.GetDemoUsage(ctx, key)
	if err != nil {
		m.log.Error("read demo usage failed", zap.String("key", key.String()), zap.Error(err))
		return types.DemoUsageRecord{Max: m.quota}
	}
	if rec == nil {
		return types.DemoUsageRecord{Max: m.quota}
	}
	out := *rec
	// The configured quota wins over whatever was stored with the record.
	out.Max = m.quota
	return out
}

// Increment records one successful demo use of command. Call it only after
// the feature produced its output. Increments for one key are serialised.
func (m *Meter) Increment(ctx context.Context, key types.AccountKey, command string) (types.DemoUsageRecord, error) {
	unlock := m.locks.Lock(key.String())
	defer unlock()

	now := m.now()
	rec := m.GetUsage(ctx, key)
	if rec.FirstUsed == nil {
		rec.FirstUsed = &now
	}
	rec.Used++
	if rec.Commands == nil {
		rec.Commands = make(map[string]int)
	}
	rec.Commands[command]++
	rec.LastUsed = &now

	if err := m.store.PutDemoUsage(ctx, key, &rec); err != nil {
		m.log.Error("write demo usage failed", zap.String("key", key.String()), zap.String("command", command), zap.Error(err))
		return rec, err
	}
	return rec, nil
}

func (m *Meter) Reset(ctx context.Context, key types.AccountKey) error {
	unlock := m.locks.Lock(key.String())
	defer unlock()

	if err := m.store.DeleteDemoUsage(ctx, key); err != nil {
		m.log.Error("reset demo usage failed", zap.String("key", key.String()), zap.Error(err))
		return err
	}
	return nil
}
