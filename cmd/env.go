package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sells-group/taxpoint/internal/db"
	"github.com/sells-group/taxpoint/internal/storage"
)

// env bundles the long-lived backends commands share.
type env struct {
	pool    *pgxpool.Pool
	rdb     *redis.Client
	storage *storage.Client
}

func initEnv(ctx context.Context) (*env, error) {
	pool, err := db.NewPool(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	st, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, err
	}

	return &env{pool: pool, rdb: rdb, storage: st}, nil
}

func (e *env) Close() {
	e.pool.Close()
	if err := e.rdb.Close(); err != nil {
		zap.L().Warn("close redis", zap.Error(err))
	}
}
