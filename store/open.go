package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/BatmanBruc/dmg-bot/types"
	"go.uber.org/zap"
)

type Options struct {
	Backend       string
	DataDir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	PostgresDSN   string
}

// Open builds the KVStore selected by opts.Backend ("json", "redis", "postgres" or "memory").
func Open(ctx context.Context, opts Options, log *zap.Logger) (types.KVStore, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "memory":
		return NewMemoryStore(), nil
	case "", "json":
		return NewJSONStore(opts.DataDir, log)
	case "redis":
		client, err := NewRedisClient(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return NewRedisKVStore(client), nil
	case "postgres":
		return NewPostgresStore(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
