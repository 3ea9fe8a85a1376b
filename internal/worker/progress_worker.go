package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/config"
	"github.com/stemsi/examsim-backend/internal/model"
)

const (
	ProgressBatchSize    = 100
	ProgressBatchTimeout = 2 * time.Second
	ProgressPollTimeout  = 1 * time.Second
)

// ProgressStore is the durable sink for aggregated answer events.
type ProgressStore interface {
	BulkRecord(ctx context.Context, rows []model.ProgressAggregate) error
	Record(ctx context.Context, row model.ProgressAggregate) error
}

type ProgressWorker struct {
	store ProgressStore
	rdb   *redis.Client
	log   zerolog.Logger
}

func NewProgressWorker(store ProgressStore, rdb *redis.Client, log zerolog.Logger) *ProgressWorker {
	return &ProgressWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "progress_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ProgressWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ProgressWorker started")

	batch := make([]model.ProgressEvent, 0, ProgressBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ProgressBatchSize || time.Since(lastFlush) >= ProgressBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ProgressPollTimeout, config.WorkerKey.ProgressEventsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var e model.ProgressEvent
			if err := json.Unmarshal([]byte(item[1]), &e); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, e)
		}
	}
}

// ----------------------------------------------------------------
// Batch write with per-row fallback
// ----------------------------------------------------------------

func (w *ProgressWorker) flushSafe(ctx context.Context, batch []model.ProgressEvent) {
	if len(batch) == 0 {
		return
	}

	rows := aggregateProgress(batch)
	if err := w.store.BulkRecord(ctx, rows); err != nil {
		w.log.Warn().Err(err).Msg("bulk progress write failed, using fallback")

		for _, row := range rows {
			if err := w.store.Record(ctx, row); err != nil {
				w.log.Error().Err(err).
					Str("owner_id", row.OwnerID).
					Str("question_id", row.QuestionID).
					Msg("progress write failed, dropping")
			}
		}
		return
	}

	w.log.Debug().Int("events", len(batch)).Int("rows", len(rows)).Msg("Progress batch written")
}

// aggregateProgress folds events into one row per owner and question, keeping
// first-seen order. The latest answer wins for the "last" fields.
func aggregateProgress(events []model.ProgressEvent) []model.ProgressAggregate {
	type key struct{ owner, question string }

	index := make(map[key]int, len(events))
	out := make([]model.ProgressAggregate, 0, len(events))

	for _, e := range events {
		k := key{e.OwnerID, e.QuestionID}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, model.ProgressAggregate{OwnerID: e.OwnerID, QuestionID: e.QuestionID})
		}

		agg := &out[i]
		agg.Attempts++
		if e.IsCorrect {
			agg.Correct++
		}
		if !e.AnsweredAt.Before(agg.LastAnsweredAt) {
			agg.LastAnsweredAt = e.AnsweredAt
			agg.LastCorrect = e.IsCorrect
			agg.LastConfidence = e.Confidence
		}
	}
	return out
}
