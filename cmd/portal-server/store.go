package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/carepoint/portal/internal/config"
	"github.com/carepoint/portal/internal/domain/identity"
	"github.com/carepoint/portal/internal/platform/db"
	"github.com/carepoint/portal/internal/platform/kv"
)

// storeBackend bundles the persistence chosen by STORE_BACKEND.
type storeBackend struct {
	kv      kv.Store
	users   identity.UserRepository
	checks  map[string]db.Check
	closers []func()
}

func (b *storeBackend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func memoryBackend() *storeBackend {
	store := kv.NewMemoryStore()
	return &storeBackend{
		kv:     store,
		users:  identity.NewUserRepoKV(store),
		checks: map[string]db.Check{},
	}
}

func openBackend(ctx context.Context, cfg *config.Config) (*storeBackend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memoryBackend(), nil

	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		store := kv.NewRedisStore(client, "portal:")
		return &storeBackend{
			kv:    store,
			users: identity.NewUserRepoKV(store),
			checks: map[string]db.Check{
				"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
			},
			closers: []func(){func() { client.Close() }},
		}, nil

	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return nil, err
		}
		if _, err := db.NewMigrator(pool, db.EmbeddedMigrations()).Up(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		return &storeBackend{
			kv:      kv.NewPGStore(pool),
			users:   identity.NewUserRepoPG(pool),
			checks:  map[string]db.Check{"postgres": pool.Ping},
			closers: []func(){pool.Close},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
