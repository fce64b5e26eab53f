package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"mastery-quiz/internal/app"
	"mastery-quiz/internal/config"
	"mastery-quiz/internal/infra/memory"
	"mastery-quiz/internal/infra/postgres"
	redisstore "mastery-quiz/internal/infra/redis"
	"mastery-quiz/internal/infra/sqlite"
	"mastery-quiz/internal/kv"
)

// backend bundles the persistence chosen by storage.backend with the
// session repository. Sessions go to Redis whenever redis.addr is set.
type backend struct {
	kv       kv.Store
	sessions app.SessionRepository
	closers  []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		b.kv = memory.NewKVStore()
	case config.BackendSQLite:
		store, err := sqlite.NewKVStore(cfg.Storage.SQLite.Path)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = store.Close() })
		b.kv = store
	case config.BackendRedis:
		if redisClient == nil {
			return nil, errors.New("redis backend requires redis.addr")
		}
		b.kv = redisstore.NewKVStore(redisClient, cfg.Storage.Namespace)
	case config.BackendPostgres:
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			b.Close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		b.kv = postgres.NewKVStore(pool)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	sessionTTL := config.TTLDuration(cfg.Redis.SessionTTL, 2*time.Hour)
	if redisClient != nil {
		b.sessions = redisstore.NewSessionStore(redisClient, cfg.Storage.Namespace, sessionTTL)
	} else {
		b.sessions = memory.NewSessionStore(sessionTTL)
	}
	logger.Info("storage ready", "backend", cfg.Storage.Backend, "redis_sessions", redisClient != nil)
	return b, nil
}
