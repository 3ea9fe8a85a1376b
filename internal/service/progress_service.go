package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/config"
	"github.com/stemsi/examsim-backend/internal/model"
)

type progressLister interface {
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.ProgressAggregate, error)
}

// ProgressService publishes answer events to the progress queue and reads the
// aggregated history back.
type ProgressService struct {
	rdb  *redis.Client
	repo progressLister
	log  zerolog.Logger
}

// NewProgressService creates a new ProgressService.
func NewProgressService(rdb *redis.Client, repo progressLister, log zerolog.Logger) *ProgressService {
	return &ProgressService{
		rdb:  rdb,
		repo: repo,
		log:  log.With().Str("component", "progress_service").Logger(),
	}
}

// ReportProgress implements engine.ProgressReporter.
func (s *ProgressService) ReportProgress(ctx context.Context, event model.ProgressEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode progress event: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.ProgressEventsQueue, raw).Err(); err != nil {
		return fmt.Errorf("queue progress event: %w", err)
	}
	return nil
}

// History returns an owner's per-question progress, most recent first.
func (s *ProgressService) History(ctx context.Context, ownerID string, limit int) ([]model.ProgressAggregate, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.repo.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.ProgressAggregate{}
	}
	return rows, nil
}
