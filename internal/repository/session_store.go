package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/config"
	"github.com/stemsi/examsim-backend/internal/engine"
	"github.com/stemsi/examsim-backend/internal/model"
)

// SessionStore persists snapshots to Redis synchronously and queues the
// durable Postgres write for the autosave worker.
type SessionStore struct {
	cache *SessionCache
	repo  *ExamSessionRepository
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(cache *SessionCache, repo *ExamSessionRepository, rdb *redis.Client, log zerolog.Logger) *SessionStore {
	return &SessionStore{
		cache: cache,
		repo:  repo,
		rdb:   rdb,
		log:   log.With().Str("component", "session_store").Logger(),
	}
}

// Save implements engine.Persister.
func (s *SessionStore) Save(ctx context.Context, session *model.ExamSession) error {
	if err := s.cache.Set(ctx, session); err != nil {
		return fmt.Errorf("cache snapshot: %w", err)
	}
	return s.enqueue(ctx, session.ID)
}

// enqueue schedules a durable write. The pending set keeps at most one queue
// entry per session; the worker always writes the latest cached snapshot.
func (s *SessionStore) enqueue(ctx context.Context, id uuid.UUID) error {
	added, err := s.rdb.SAdd(ctx, config.WorkerKey.PersistSessionsPending, id.String()).Result()
	if err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}
	if added == 0 {
		return nil
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistSessionsQueue, id.String()).Err(); err != nil {
		s.rdb.SRem(ctx, config.WorkerKey.PersistSessionsPending, id.String())
		return fmt.Errorf("queue durable write: %w", err)
	}
	return nil
}

// Load implements engine.Persister. A Redis miss falls back to Postgres and
// re-warms the cache.
func (s *SessionStore) Load(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	snap, err := s.cache.Get(ctx, id)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Cache read failed, falling back to database")
	}

	snap, err = s.repo.GetSnapshot(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, engine.ErrSessionNotFound
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	if err := s.cache.Set(ctx, snap); err != nil {
		s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Cache re-warm failed")
	}
	return snap, nil
}
