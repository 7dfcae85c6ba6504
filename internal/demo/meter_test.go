package demo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BatmanBruc/dmg-bot/store"
	"github.com/BatmanBruc/dmg-bot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMeter(quota int) (*Meter, *store.MemoryStore) {
	kv := store.NewMemoryStore()
	return NewMeter(store.NewRecords(kv), quota, zap.NewNop()), kv
}

func TestGetUsageDoesNotCreateRecord(t *testing.T) {
	m, kv := newTestMeter(3)
	key := types.NewAccountKey("u", "g")

	usage := m.GetUsage(context.Background(), key)
	assert.Equal(t, 0, usage.Used)
	assert.Equal(t, 3, usage.Max)

	all, err := kv.GetAll(context.Background(), types.CollectionDemoUsage)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestIncrementIsMonotonic(t *testing.T) {
	m, _ := newTestMeter(3)
	ctx := context.Background()
	key := types.NewAccountKey("u", "g")

	for i := 1; i <= 5; i++ {
		rec, err := m.Increment(ctx, key, "chat")
		require.NoError(t, err)
		assert.Equal(t, i, rec.Used)
	}

	usage := m.GetUsage(ctx, key)
	assert.Equal(t, 5, usage.Used)
	assert.Equal(t, 5, usage.Commands["chat"])
	require.NotNil(t, usage.FirstUsed)
	require.NotNil(t, usage.LastUsed)
	assert.False(t, usage.LastUsed.Before(*usage.FirstUsed))
}

func TestIncrementTracksCommandsSeparately(t *testing.T) {
	m, _ := newTestMeter(3)
	ctx := context.Background()
	key := types.NewAccountKey("u", "g")

	_, err := m.Increment(ctx, key, "chat")
	require.NoError(t, err)
	rec, err := m.Increment(ctx, key, "imagine")
	require.NoError(t, err)

	assert.Equal(t, 2, rec.Used)
	assert.Equal(t, map[string]int{"chat": 1, "imagine": 1}, rec.Commands)
}

func TestResetZeroesUsage(t *testing.T) {
	m, _ := newTestMeter(3)
	ctx := context.Background()
	key := types.NewAccountKey("u", "g")

	_, err := m.Increment(ctx, key, "chat")
	require.NoError(t, err)
	require.NoError(t, m.Reset(ctx, key))

	assert.Equal(t, 0, m.GetUsage(ctx, key).Used)
}

func TestUsageIsPerGuild(t *testing.T) {
	m, _ := newTestMeter(3)
	ctx := context.Background()

	_, err := m.Increment(ctx, types.NewAccountKey("u", "g1"), "chat")
	require.NoError(t, err)

	assert.Equal(t, 1, m.GetUsage(ctx, types.NewAccountKey("u", "g1")).Used)
	assert.Equal(t, 0, m.GetUsage(ctx, types.NewAccountKey("u", "g2")).Used)
}

type failingUsageStore struct{}

func (failingUsageStore) GetDemoUsage(context.Context, types.AccountKey) (*types.DemoUsageRecord, error) {
	return nil, errors.New("disk on fire")
}

func (failingUsageStore) PutDemoUsage(context.Context, types.AccountKey, *types.DemoUsageRecord) error {
	return errors.New("disk on fire")
}

func (failingUsageStore) DeleteDemoUsage(context.Context, types.AccountKey) error {
	return errors.New("disk on fire")
}

func TestReadFailureFallsBackToDefault(t *testing.T) {
	m := NewMeter(failingUsageStore{}, 0, nil)
	usage := m.GetUsage(context.Background(), types.NewAccountKey("u", "g"))
	assert.Equal(t, types.DemoUsageRecord{Max: DefaultQuota}, usage)

	_, err := m.Increment(context.Background(), types.NewAccountKey("u", "g"), "chat")
	assert.Error(t, err)
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	kv, err := store.NewJSONStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	m := NewMeter(store.NewRecords(kv), 3, zap.NewNop())
	ctx := context.Background()
	key := types.NewAccountKey("664", "120")

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Increment(ctx, key, "chat")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	usage := m.GetUsage(ctx, key)
	assert.Equal(t, n, usage.Used)
	assert.Equal(t, n, usage.Commands["chat"])
}
