package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/config"
)

const connectBackoff = 2 * time.Second

// NewPostgresPool connects the pool that backs the question bank, durable
// session copies and progress counters. The first ping is retried so the
// server can start alongside its database.
func NewPostgresPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	applyPoolLimits(poolCfg, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	err = retry(ctx, cfg.ConnectAttempts, log.With().Str("target", "postgres").Logger(), pool.Ping)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().
		Str("host", poolCfg.ConnConfig.Host).
		Str("database", poolCfg.ConnConfig.Database).
		Int32("min_conns", poolCfg.MinConns).
		Int32("max_conns", poolCfg.MaxConns).
		Dur("max_conn_idle", poolCfg.MaxConnIdleTime).
		Msg("PostgreSQL connected")

	return pool, nil
}

func applyPoolLimits(poolCfg *pgxpool.Config, cfg *config.Config) {
	if cfg.MaxDBConns > 0 {
		poolCfg.MaxConns = cfg.MaxDBConns
	}
	if cfg.MinDBConns > 0 {
		poolCfg.MinConns = min(cfg.MinDBConns, poolCfg.MaxConns)
	}
	if cfg.DBMaxConnIdle > 0 {
		poolCfg.MaxConnIdleTime = cfg.DBMaxConnIdle
	}
}

// retry calls ping until it succeeds, attempts run out or ctx ends.
func retry(ctx context.Context, attempts int, log zerolog.Logger, ping func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Warn().Err(err).Int("attempt", i).Int("of", attempts).Msg("Connection not ready, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	return err
}
