package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/examsim-backend/internal/config"
)

func TestProbe(t *testing.T) {
	ok := Probe(context.Background(), func(context.Context) error { return nil })
	assert.True(t, ok.OK())
	assert.Empty(t, ok.Error)

	down := Probe(context.Background(), func(context.Context) error { return errors.New("connection refused") })
	assert.False(t, down.OK())
	assert.Equal(t, "down", down.Status)
	assert.Equal(t, "connection refused", down.Error)

	assert.Equal(t, "disabled", Probe(context.Background(), nil).Status)
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, zerolog.Nop(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryGivesUpOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := retry(ctx, 5, zerolog.Nop(), func(context.Context) error { return errors.New("not ready") })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), connectBackoff)
}

func TestApplyPoolLimits(t *testing.T) {
	poolCfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/examsim")
	require.NoError(t, err)

	applyPoolLimits(poolCfg, &config.Config{MaxDBConns: 4, MinDBConns: 10, DBMaxConnIdle: time.Minute})
	assert.Equal(t, int32(4), poolCfg.MaxConns)
	assert.Equal(t, int32(4), poolCfg.MinConns, "min never exceeds max")
	assert.Equal(t, time.Minute, poolCfg.MaxConnIdleTime)
}
