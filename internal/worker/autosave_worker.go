package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/config"
	"github.com/stemsi/examsim-backend/internal/model"
)

// SnapshotReader reads the hot copy of a session.
type SnapshotReader interface {
	Get(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
}

// SnapshotWriter writes the durable copy of a session.
type SnapshotWriter interface {
	Upsert(ctx context.Context, s *model.ExamSession) (bool, error)
}

// AutosaveWorker consumes persist_sessions_queue and UPSERTs the latest cached
// snapshot of each queued session to PostgreSQL.
type AutosaveWorker struct {
	cache      SnapshotReader
	repo       SnapshotWriter
	rdb        *redis.Client
	log        zerolog.Logger
	retryDelay time.Duration
	onResult   func(err error)
}

// NewAutosaveWorker creates a new AutosaveWorker. onResult may be nil.
func NewAutosaveWorker(cache SnapshotReader, repo SnapshotWriter, rdb *redis.Client, log zerolog.Logger, onResult func(err error)) *AutosaveWorker {
	return &AutosaveWorker{
		cache:      cache,
		repo:       repo,
		rdb:        rdb,
		log:        log.With().Str("component", "autosave_worker").Logger(),
		retryDelay: 5 * time.Second,
		onResult:   onResult,
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistSessionsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	if err := w.persist(ctx, result[1]); err != nil {
		w.log.Error().Err(err).
			Str("session_id", result[1]).
			Msg("Persist error, retrying")
		// Push back to queue for retry.
		w.requeue(ctx, result[1])
		select {
		case <-ctx.Done():
		case <-time.After(w.retryDelay):
		}
	}
}

func (w *AutosaveWorker) persist(ctx context.Context, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		w.log.Error().Err(err).Str("value", rawID).Msg("Invalid session id in queue")
		w.rdb.SRem(ctx, config.WorkerKey.PersistSessionsPending, rawID)
		return nil
	}

	// Clear the pending mark before reading, so a save racing with this write
	// queues the session again instead of being lost.
	if err := w.rdb.SRem(ctx, config.WorkerKey.PersistSessionsPending, rawID).Err(); err != nil {
		return err
	}

	snap, err := w.cache.Get(ctx, id)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired from cache; nothing newer than the durable copy exists.
			return nil
		}
		return err
	}

	written, err := w.repo.Upsert(ctx, snap)
	if w.onResult != nil {
		w.onResult(err)
	}
	if err != nil {
		return err
	}

	w.log.Debug().
		Str("session_id", rawID).
		Int64("version", snap.Version).
		Bool("written", written).
		Msg("Session persisted")
	return nil
}

func (w *AutosaveWorker) requeue(ctx context.Context, rawID string) {
	added, err := w.rdb.SAdd(ctx, config.WorkerKey.PersistSessionsPending, rawID).Result()
	if err != nil || added == 0 {
		// Either Redis is down (the next save re-queues) or a newer entry exists.
		return
	}
	w.rdb.RPush(ctx, config.WorkerKey.PersistSessionsQueue, rawID)
}

// drain processes all remaining items in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistSessionsQueue).Result()
		if err != nil {
			break
		}

		if err := w.persist(ctx, result); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.requeue(ctx, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
