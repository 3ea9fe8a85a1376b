package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/model"
)

// Persister loads and saves full session snapshots keyed by session id.
// Load returns ErrSessionNotFound when nothing is stored.
type Persister interface {
	Save(ctx context.Context, session *model.ExamSession) error
	Load(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
}

// ProgressReporter receives fire-and-forget answer notifications.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, event model.ProgressEvent) error
}

// AutosaveOptions tunes an Autosaver.
type AutosaveOptions struct {
	SaveTimeout time.Duration
	RetryDelay  time.Duration
	// OnResult observes every save attempt.
	OnResult func(err error)
}

// Autosaver persists session snapshots off the mutation path. Change signals
// coalesce, so a burst of mutations produces one save of the latest state.
// Saves are whole snapshots, so retrying a failed save never replays a
// mutation.
type Autosaver struct {
	session *Session
	store   Persister
	opts    AutosaveOptions
	log     zerolog.Logger

	signal chan struct{}

	saveMu sync.Mutex
	saved  int64
}

// NewAutosaver creates an autosaver. savedVersion is the version already
// known to be persisted.
func NewAutosaver(session *Session, store Persister, savedVersion int64, opts AutosaveOptions, log zerolog.Logger) *Autosaver {
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 3 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	return &Autosaver{
		session: session,
		store:   store,
		opts:    opts,
		log:     log.With().Str("component", "autosaver").Logger(),
		signal:  make(chan struct{}, 1),
		saved:   savedVersion,
	}
}

// Notify marks the session dirty. It never blocks.
func (a *Autosaver) Notify() {
	select {
	case a.signal <- struct{}{}:
	default:
	}
}

// SavedVersion returns the last version confirmed by the store.
func (a *Autosaver) SavedVersion() int64 {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()
	return a.saved
}

// Run processes change signals until ctx is cancelled. Call in a goroutine.
func (a *Autosaver) Run(ctx context.Context) {
	var retry <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.signal:
		case <-retry:
		}

		retry = nil
		if err := a.save(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			retry = time.After(a.opts.RetryDelay)
		}
	}
}

// Flush synchronously saves the latest state if it is newer than the last
// successful save.
func (a *Autosaver) Flush(ctx context.Context) error {
	return a.save(ctx)
}

func (a *Autosaver) save(ctx context.Context) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	snap := a.session.Snapshot()
	if snap.Version <= a.saved {
		return nil
	}

	saveCtx, cancel := context.WithTimeout(ctx, a.opts.SaveTimeout)
	defer cancel()

	err := a.store.Save(saveCtx, snap)
	if a.opts.OnResult != nil {
		a.opts.OnResult(err)
	}
	if err != nil {
		a.log.Warn().Err(err).
			Str("session_id", snap.ID.String()).
			Int64("version", snap.Version).
			Msg("Session save failed, will retry")
		return err
	}

	a.saved = snap.Version
	return nil
}
