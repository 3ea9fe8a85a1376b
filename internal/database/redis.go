package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/config"
)

// NewRedisClient connects the client holding hot session snapshots and the
// save and progress queues.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.RedisPoolSize > 0 {
		opt.PoolSize = cfg.RedisPoolSize
	}
	// Request deadlines bound Redis calls made on behalf of a command.
	opt.ContextTimeoutEnabled = true

	rdb := redis.NewClient(opt)

	err = retry(ctx, cfg.ConnectAttempts, log.With().Str("target", "redis").Logger(), func(ctx context.Context) error {
		return PingRedis(ctx, rdb)
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Int("pool_size", opt.PoolSize).
		Msg("Redis connected")

	return rdb, nil
}

// PingRedis adapts the Redis ping to the plain error form Probe expects.
func PingRedis(ctx context.Context, rdb *redis.Client) error {
	return rdb.Ping(ctx).Err()
}
