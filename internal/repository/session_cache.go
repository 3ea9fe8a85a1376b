package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/examsim-backend/internal/config"
	"github.com/stemsi/examsim-backend/internal/model"
)

// SessionCache keeps the hot copy of session snapshots in Redis.
type SessionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionCache creates a new SessionCache.
func NewSessionCache(rdb *redis.Client, ttl time.Duration) *SessionCache {
	return &SessionCache{rdb: rdb, ttl: ttl}
}

// Set stores the snapshot and refreshes its TTL.
func (c *SessionCache) Set(ctx context.Context, s *model.ExamSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return c.rdb.Set(ctx, config.CacheKey.SessionSnapshotKey(s.ID.String()), raw, c.ttl).Err()
}

// Get returns the cached snapshot, or redis.Nil on a miss.
func (c *SessionCache) Get(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	raw, err := c.rdb.Get(ctx, config.CacheKey.SessionSnapshotKey(id.String())).Bytes()
	if err != nil {
		return nil, err
	}

	var s model.ExamSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}
