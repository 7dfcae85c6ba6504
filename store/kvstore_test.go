package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/BatmanBruc/dmg-bot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Redis and Postgres run only when TEST_REDIS_ADDR / TEST_POSTGRES_DSN point
// at a live server.
func kvBackends() []struct {
	name string
	open func(t *testing.T) types.KVStore
} {
	return []struct {
		name string
		open func(t *testing.T) types.KVStore
	}{
		{"memory", func(t *testing.T) types.KVStore {
			return NewMemoryStore()
		}},
		{"json", func(t *testing.T) types.KVStore {
			s, err := NewJSONStore(t.TempDir(), zap.NewNop())
			require.NoError(t, err)
			return s
		}},
		{"redis", func(t *testing.T) types.KVStore {
			addr := os.Getenv("TEST_REDIS_ADDR")
			if addr == "" {
				t.Skip("TEST_REDIS_ADDR not set")
			}
			prefix := fmt.Sprintf("dmg_bot_test_%d", time.Now().UnixNano())
			client, err := NewRedisClient(context.Background(), addr, os.Getenv("TEST_REDIS_PASSWORD"), 0, prefix)
			require.NoError(t, err)
			return NewRedisKVStore(client)
		}},
		{"postgres", func(t *testing.T) types.KVStore {
			dsn := os.Getenv("TEST_POSTGRES_DSN")
			if dsn == "" {
				t.Skip("TEST_POSTGRES_DSN not set")
			}
			s, err := NewPostgresStore(context.Background(), dsn)
			require.NoError(t, err)
			return s
		}},
	}
}

func TestKVStoreContract(t *testing.T) {
	for _, b := range kvBackends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			t.Cleanup(func() { _ = s.Close() })
			ctx := context.Background()
			// Unique per run so shared servers start from an empty collection.
			coll := fmt.Sprintf("contract_%d", time.Now().UnixNano())

			v, err := s.Get(ctx, coll, "664-120")
			require.NoError(t, err)
			assert.Nil(t, v)

			all, err := s.GetAll(ctx, coll)
			require.NoError(t, err)
			assert.Empty(t, all)

			require.NoError(t, s.Delete(ctx, coll, "664-120"))

			require.NoError(t, s.Put(ctx, coll, "664-120", json.RawMessage(`{"status":"pending","amount":"25.00"}`)))
			require.NoError(t, s.Put(ctx, coll, "664-121", json.RawMessage(`{"status":"completed"}`)))
			require.NoError(t, s.Put(ctx, coll, "664-120", json.RawMessage(`{"status":"completed","amount":"25.00"}`)))

			v, err = s.Get(ctx, coll, "664-120")
			require.NoError(t, err)
			assert.JSONEq(t, `{"status":"completed","amount":"25.00"}`, string(v))

			other, err := s.GetAll(ctx, coll+"_other")
			require.NoError(t, err)
			assert.Empty(t, other)

			all, err = s.GetAll(ctx, coll)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.JSONEq(t, `{"status":"completed"}`, string(all["664-121"]))

			require.NoError(t, s.Delete(ctx, coll, "664-120"))
			v, err = s.Get(ctx, coll, "664-120")
			require.NoError(t, err)
			assert.Nil(t, v)

			require.NoError(t, s.Delete(ctx, coll, "664-121"))
			all, err = s.GetAll(ctx, coll)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Backend: "memory"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Options{Backend: " JSON ", DataDir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, s)

	_, err = Open(ctx, Options{Backend: "sqlite"}, zap.NewNop())
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestBuildPostgresDSNFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("POSTGRES_DB", "bot")
	t.Setenv("POSTGRES_USER", "svc")
	t.Setenv("POSTGRES_PASSWORD", "p@ss:w/rd")

	dsn := buildPostgresDSNFromEnv()
	assert.Equal(t, "postgres://svc:p%40ss%3Aw%2Frd@db:6543/bot?sslmode=disable", dsn)
	assert.False(t, strings.Contains(dsn, "p@ss"))
}

func TestRedisKeyLayout(t *testing.T) {
	r := &RedisClient{prefix: "dmg_bot"}
	assert.Equal(t, "dmg_bot:payments", r.generateKey(types.CollectionPayments))
	assert.Equal(t, "dmg_bot:demo_usage", r.generateKey(types.CollectionDemoUsage))
}
