package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/engine"
	"github.com/stemsi/examsim-backend/internal/metrics"
	"github.com/stemsi/examsim-backend/internal/model"
	"github.com/stemsi/examsim-backend/internal/response"
)

// ErrPersistence reports that a session could not be flushed to storage.
var ErrPersistence = errors.New("session could not be persisted")

const (
	progressTimeout = 2 * time.Second
	// commandAttempts bounds how often a command chases a session that left
	// memory between lookup and execution.
	commandAttempts = 3
)

// SessionOptions tunes the session service.
type SessionOptions struct {
	TickInterval time.Duration
	SaveTimeout  time.Duration
	RetryDelay   time.Duration
	// AutoReview moves sessions to review mode as soon as they end.
	AutoReview bool
	// RetireAfter evicts ended sessions nobody has touched for this long.
	RetireAfter time.Duration
}

type sessionLister interface {
	ListByOwner(ctx context.Context, ownerID, status string, page, perPage int) ([]model.SessionSummary, int64, error)
}

// CommandResult is the outcome of a session command. Applied is false when
// the command arrived after the session ended and was dropped.
type CommandResult struct {
	Applied  bool                    `json:"applied"`
	State    model.TickState         `json:"state"`
	Response *model.QuestionResponse `json:"response,omitempty"`
	Feedback *model.Feedback         `json:"feedback,omitempty"`
}

// Subscription streams state updates of one session.
type Subscription struct {
	Initial model.TickState
	Updates <-chan model.TickState
	Close   func()
}

// activeSession is a session held in memory together with its timer and
// autosaver.
type activeSession struct {
	sess   *engine.Session
	timer  *engine.Timer
	saver  *engine.Autosaver
	ctx    context.Context
	cancel context.CancelFunc

	// cmdMu is shared by commands and exclusive to eviction. Once evicted is
	// set the session is no longer authoritative and must be reloaded.
	cmdMu   sync.RWMutex
	evicted bool

	mu       sync.Mutex
	subs     map[chan model.TickState]struct{}
	closed   bool
	lastSeen time.Time
}

func (a *activeSession) touch() {
	a.mu.Lock()
	a.lastSeen = time.Now()
	a.mu.Unlock()
}

// acquire takes the command lock unless the session was evicted.
func (a *activeSession) acquire() bool {
	a.cmdMu.RLock()
	if a.evicted {
		a.cmdMu.RUnlock()
		return false
	}
	return true
}

func (a *activeSession) release() {
	a.cmdMu.RUnlock()
}

func (a *activeSession) idleSince() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSeen
}

func (a *activeSession) subscribe() (<-chan model.TickState, func()) {
	ch := make(chan model.TickState, 8)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	a.subs[ch] = struct{}{}
	a.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			if _, ok := a.subs[ch]; ok {
				delete(a.subs, ch)
				close(ch)
			}
		})
	}
}

// broadcast delivers st to every subscriber. A slow subscriber loses its
// oldest pending update, never the newest.
func (a *activeSession) broadcast(st model.TickState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for ch := range a.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

func (a *activeSession) closeSubs() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	for ch := range a.subs {
		close(ch)
		delete(a.subs, ch)
	}
}

// ExamSessionService owns the in-memory registry of running sessions and
// routes commands to them.
type ExamSessionService struct {
	questions QuestionSource
	store     engine.Persister
	progress  engine.ProgressReporter
	lister    sessionLister
	metrics   *metrics.Metrics
	opts      SessionOptions
	log       zerolog.Logger

	baseCtx context.Context
	stop    context.CancelFunc

	mu     sync.Mutex
	active map[uuid.UUID]*activeSession
}

// NewExamSessionService creates a new ExamSessionService. progress and lister
// may be nil.
func NewExamSessionService(
	questions QuestionSource,
	store engine.Persister,
	progress engine.ProgressReporter,
	lister sessionLister,
	m *metrics.Metrics,
	opts SessionOptions,
	log zerolog.Logger,
) *ExamSessionService {
	if opts.TickInterval <= 0 {
		opts.TickInterval = engine.DefaultTickInterval
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 3 * time.Second
	}
	if opts.RetireAfter <= 0 {
		opts.RetireAfter = 15 * time.Minute
	}
	if m == nil {
		m = metrics.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ExamSessionService{
		questions: questions,
		store:     store,
		progress:  progress,
		lister:    lister,
		metrics:   m,
		opts:      opts,
		log:       log.With().Str("component", "exam_session_service").Logger(),
		baseCtx:   ctx,
		stop:      cancel,
		active:    make(map[uuid.UUID]*activeSession),
	}
}

// Start creates a session from the question bank and starts its timer.
func (s *ExamSessionService) Start(ctx context.Context, ownerID string, req *model.StartSessionRequest) (*model.SessionView, error) {
	qs, err := s.questions.Questions(ctx, Selection{
		QuestionIDs: req.QuestionIDs,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Count:       req.Count,
	})
	if err != nil {
		return nil, err
	}

	sess, err := engine.NewSession(qs, req.Mode, req.DurationSeconds, engine.Options{OwnerID: ownerID})
	if err != nil {
		return nil, err
	}

	saved := sess.Version()
	saveCtx, cancel := context.WithTimeout(ctx, s.opts.SaveTimeout)
	err = s.store.Save(saveCtx, sess.Snapshot())
	cancel()
	s.metrics.ObserveSave(err)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID().String()).Msg("Initial save failed, autosave will retry")
		saved = -1
	}

	a := s.activate(sess, saved)
	s.register(sess.ID(), a)
	a.timer.Start(a.ctx)
	if saved < 0 {
		a.saver.Notify()
	}

	s.metrics.SessionsStarted.WithLabelValues(string(req.Mode)).Inc()
	s.log.Info().
		Str("session_id", sess.ID().String()).
		Str("owner_id", ownerID).
		Str("mode", string(req.Mode)).
		Int("questions", len(qs)).
		Msg("Session started")

	return sess.View(), nil
}

func (s *ExamSessionService) activate(sess *engine.Session, savedVersion int64) *activeSession {
	ctx, cancel := context.WithCancel(s.baseCtx)
	a := &activeSession{
		sess:     sess,
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[chan model.TickState]struct{}),
		lastSeen: time.Now(),
	}
	a.saver = engine.NewAutosaver(sess, s.store, savedVersion, engine.AutosaveOptions{
		SaveTimeout: s.opts.SaveTimeout,
		RetryDelay:  s.opts.RetryDelay,
		OnResult:    s.metrics.ObserveSave,
	}, s.log)
	a.timer = engine.NewTimer(sess, s.opts.TickInterval, s.log)
	a.timer.OnTick(func(bool) { s.metrics.Ticks.Inc() })

	sessionID := sess.ID().String()
	sess.SetHooks(engine.Hooks{
		OnChange: func(int64) {
			a.saver.Notify()
			a.broadcast(sess.TickState())
		},
		OnAnswer: func(e model.ProgressEvent) {
			go s.reportProgress(e)
		},
		OnEnd: func(reason model.EndReason) {
			a.timer.Interrupt()
			s.metrics.SessionsEnded.WithLabelValues(string(reason)).Inc()
			s.log.Info().Str("session_id", sessionID).Str("reason", string(reason)).Msg("Session ended")
			if s.opts.AutoReview {
				if err := sess.EnterReview(); err != nil {
					s.log.Error().Err(err).Str("session_id", sessionID).Msg("Enter review failed")
				}
			}
		},
	})

	go a.saver.Run(ctx)
	return a
}

func (s *ExamSessionService) register(id uuid.UUID, a *activeSession) {
	s.mu.Lock()
	s.active[id] = a
	n := len(s.active)
	s.mu.Unlock()
	s.metrics.ActiveSessions.Set(float64(n))
}

func (s *ExamSessionService) reportProgress(e model.ProgressEvent) {
	if s.progress == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.baseCtx, progressTimeout)
	defer cancel()

	err := s.progress.ReportProgress(ctx, e)
	s.metrics.ProgressEvents.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		s.log.Warn().Err(err).
			Str("session_id", e.SessionID.String()).
			Str("question_id", e.QuestionID).
			Msg("Progress report failed")
	}
}

// get returns the in-memory session, loading it from storage when needed.
// Sessions owned by someone else are reported as not found.
func (s *ExamSessionService) get(ctx context.Context, ownerID string, id uuid.UUID) (*activeSession, error) {
	s.mu.Lock()
	a, ok := s.active[id]
	s.mu.Unlock()

	if ok {
		if a.sess.OwnerID() != ownerID {
			return nil, engine.ErrSessionNotFound
		}
		a.touch()
		// Restarts a timer paused by a suspend whose flush failed.
		a.timer.Start(a.ctx)
		return a, nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.opts.SaveTimeout)
	snap, err := s.store.Load(loadCtx, id)
	cancel()
	if err != nil {
		return nil, err
	}
	if snap.OwnerID != ownerID {
		return nil, engine.ErrSessionNotFound
	}

	sess, err := engine.Restore(snap, engine.Options{})
	if err != nil {
		return nil, err
	}
	a = s.activate(sess, snap.Version)

	s.mu.Lock()
	if existing, ok := s.active[id]; ok {
		s.mu.Unlock()
		a.cancel()
		existing.touch()
		return existing, nil
	}
	s.active[id] = a
	n := len(s.active)
	s.mu.Unlock()

	s.metrics.ActiveSessions.Set(float64(n))
	a.timer.Start(a.ctx)
	s.log.Info().
		Str("session_id", id.String()).
		Int("time_remaining", snap.TimeRemaining).
		Bool("ended", snap.IsEnded).
		Msg("Session resumed")
	return a, nil
}

// withSession runs fn against the live session while holding its command
// lock, so an eviction either waits for fn or happens before it. A session
// evicted in between is looked up again, which reloads it from storage.
func (s *ExamSessionService) withSession(ctx context.Context, ownerID string, id uuid.UUID, fn func(*activeSession) error) error {
	for attempt := 1; ; attempt++ {
		a, err := s.get(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if a.acquire() {
			defer a.release()
			return fn(a)
		}
		if attempt == commandAttempts {
			return fmt.Errorf("%w: session %s kept leaving memory", ErrPersistence, id)
		}
		s.log.Debug().Str("session_id", id.String()).Int("attempt", attempt).Msg("Session evicted mid-command, reloading")
	}
}

func (s *ExamSessionService) apply(ctx context.Context, ownerID string, id uuid.UUID, command, questionID string, fn func(*engine.Session) error) (*CommandResult, error) {
	var res *CommandResult
	err := s.withSession(ctx, ownerID, id, func(a *activeSession) error {
		applied := true
		if err := fn(a.sess); err != nil {
			if !engine.IsIgnorable(err) {
				s.metrics.Commands.WithLabelValues(command, "rejected").Inc()
				return err
			}
			applied = false
		}

		if applied {
			s.metrics.Commands.WithLabelValues(command, "applied").Inc()
		} else {
			s.metrics.Commands.WithLabelValues(command, "ignored").Inc()
		}

		res = &CommandResult{Applied: applied, State: a.sess.TickState()}
		if questionID != "" {
			res.Response = a.sess.Response(questionID)
			if fb, err := a.sess.Feedback(questionID); err == nil {
				res.Feedback = &fb
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SelectAnswer records an answer.
func (s *ExamSessionService) SelectAnswer(ctx context.Context, ownerID string, id uuid.UUID, questionID string, optionIndex int) (*CommandResult, error) {
	return s.apply(ctx, ownerID, id, "answer", questionID, func(sess *engine.Session) error {
		return sess.SelectAnswer(questionID, optionIndex)
	})
}

// ToggleStrike strikes or unstrikes an option.
func (s *ExamSessionService) ToggleStrike(ctx context.Context, ownerID string, id uuid.UUID, questionID string, optionIndex int) (*CommandResult, error) {
	return s.apply(ctx, ownerID, id, "strike", questionID, func(sess *engine.Session) error {
		return sess.ToggleStrike(questionID, optionIndex)
	})
}

// ToggleFlag flags or unflags a question for review.
func (s *ExamSessionService) ToggleFlag(ctx context.Context, ownerID string, id uuid.UUID, questionID string) (*CommandResult, error) {
	return s.apply(ctx, ownerID, id, "flag", questionID, func(sess *engine.Session) error {
		return sess.ToggleFlag(questionID)
	})
}

// SetConfidence records a confidence level for a question.
func (s *ExamSessionService) SetConfidence(ctx context.Context, ownerID string, id uuid.UUID, questionID string, level model.Confidence) (*CommandResult, error) {
	return s.apply(ctx, ownerID, id, "confidence", questionID, func(sess *engine.Session) error {
		return sess.SetConfidence(questionID, level)
	})
}

// AddHighlight adds a highlight marker to a question.
func (s *ExamSessionService) AddHighlight(ctx context.Context, ownerID string, id uuid.UUID, questionID string, h model.Highlight) (*CommandResult, error) {
	return s.apply(ctx, ownerID, id, "highlight", questionID, func(sess *engine.Session) error {
		return sess.AddHighlight(questionID, h)
	})
}

// ClearHighlights removes all highlight markers from a question.
func (s *ExamSessionService) ClearHighlights(ctx context.Context, ownerID string, id uuid.UUID, questionID string) (*CommandResult, error) {
	return s.apply(ctx, ownerID, id, "clear_highlights", questionID, func(sess *engine.Session) error {
		return sess.ClearHighlights(questionID)
	})
}

// Navigate moves the current question pointer.
func (s *ExamSessionService) Navigate(ctx context.Context, ownerID string, id uuid.UUID, action model.NavigateAction, index *int) (*CommandResult, error) {
	return s.apply(ctx, ownerID, id, "navigate", "", func(sess *engine.Session) error {
		switch action {
		case model.NavigateNext:
			return sess.NextQuestion()
		case model.NavigatePrev:
			return sess.PrevQuestion()
		case model.NavigateGoTo:
			if index == nil {
				return engine.ErrIndexOutOfRange
			}
			return sess.GoToQuestion(*index)
		default:
			return fmt.Errorf("unknown navigate action %q", action)
		}
	})
}

// End submits the session and flushes it to storage.
func (s *ExamSessionService) End(ctx context.Context, ownerID string, id uuid.UUID) (*CommandResult, error) {
	res, err := s.apply(ctx, ownerID, id, "end", "", func(sess *engine.Session) error {
		return sess.End()
	})
	if err != nil {
		return nil, err
	}
	if res.Applied {
		s.mu.Lock()
		a := s.active[id]
		s.mu.Unlock()
		if a != nil {
			if err := a.saver.Flush(ctx); err != nil {
				s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Flush after end failed, autosave will retry")
				a.saver.Notify()
			}
		}
	}
	return res, nil
}

// EnterReview moves an ended session into review mode.
func (s *ExamSessionService) EnterReview(ctx context.Context, ownerID string, id uuid.UUID) (*model.SessionView, error) {
	var view *model.SessionView
	err := s.withSession(ctx, ownerID, id, func(a *activeSession) error {
		if err := a.sess.EnterReview(); err != nil {
			return err
		}
		view = a.sess.View()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Get returns the candidate-facing state of a session.
func (s *ExamSessionService) Get(ctx context.Context, ownerID string, id uuid.UUID) (*model.SessionView, error) {
	a, err := s.get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return a.sess.View(), nil
}

// Navigator returns the navigator grid of a session.
func (s *ExamSessionService) Navigator(ctx context.Context, ownerID string, id uuid.UUID) (model.NavigatorData, error) {
	a, err := s.get(ctx, ownerID, id)
	if err != nil {
		return model.NavigatorData{}, err
	}
	return a.sess.Navigator(), nil
}

// Report returns the analytics report of an ended session.
func (s *ExamSessionService) Report(ctx context.Context, ownerID string, id uuid.UUID) (*model.Report, error) {
	a, err := s.get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return a.sess.Report()
}

// Feedback returns correctness for one question when it may be shown.
func (s *ExamSessionService) Feedback(ctx context.Context, ownerID string, id uuid.UUID, questionID string) (model.Feedback, error) {
	a, err := s.get(ctx, ownerID, id)
	if err != nil {
		return model.Feedback{}, err
	}
	return a.sess.Feedback(questionID)
}

// Subscribe streams state updates of a session until Close is called or the
// session leaves memory.
func (s *ExamSessionService) Subscribe(ctx context.Context, ownerID string, id uuid.UUID) (*Subscription, error) {
	a, err := s.get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	updates, closeFn := a.subscribe()
	return &Subscription{
		Initial: a.sess.TickState(),
		Updates: updates,
		Close:   closeFn,
	}, nil
}

// Suspend stops the timer, flushes the session and drops it from memory.
// Time while suspended is not charged.
func (s *ExamSessionService) Suspend(ctx context.Context, ownerID string, id uuid.UUID) error {
	s.mu.Lock()
	a, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		// Not in memory; confirm it exists and belongs to the caller.
		loadCtx, cancel := context.WithTimeout(ctx, s.opts.SaveTimeout)
		defer cancel()
		snap, err := s.store.Load(loadCtx, id)
		if err != nil {
			return err
		}
		if snap.OwnerID != ownerID {
			return engine.ErrSessionNotFound
		}
		return nil
	}
	if a.sess.OwnerID() != ownerID {
		return engine.ErrSessionNotFound
	}
	return s.evict(ctx, id, a)
}

// evict flushes a and removes it from the registry. It waits for commands in
// flight and blocks new ones until the session is gone. On a failed flush the
// session stays registered with its timer stopped.
func (s *ExamSessionService) evict(ctx context.Context, id uuid.UUID, a *activeSession) error {
	a.cmdMu.Lock()
	if a.evicted {
		a.cmdMu.Unlock()
		return nil
	}

	a.timer.Stop()
	if err := a.saver.Flush(ctx); err != nil {
		a.cmdMu.Unlock()
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	a.evicted = true
	s.mu.Lock()
	if cur, ok := s.active[id]; ok && cur == a {
		delete(s.active, id)
	}
	n := len(s.active)
	s.mu.Unlock()
	a.cmdMu.Unlock()
	s.metrics.ActiveSessions.Set(float64(n))

	a.cancel()
	a.closeSubs()

	s.log.Info().Str("session_id", id.String()).Msg("Session suspended")
	return nil
}

// RetireIdle evicts ended sessions untouched for longer than RetireAfter.
func (s *ExamSessionService) RetireIdle(ctx context.Context) int {
	cutoff := time.Now().Add(-s.opts.RetireAfter)

	s.mu.Lock()
	candidates := make(map[uuid.UUID]*activeSession)
	for id, a := range s.active {
		if a.sess.IsEnded() && a.idleSince().Before(cutoff) {
			candidates[id] = a
		}
	}
	s.mu.Unlock()

	retired := 0
	for id, a := range candidates {
		if err := s.evict(ctx, id, a); err != nil {
			s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Retire failed")
			continue
		}
		retired++
	}
	return retired
}

// RunJanitor periodically retires idle ended sessions. Call in a goroutine.
func (s *ExamSessionService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.RetireIdle(ctx); n > 0 {
				s.log.Debug().Int("count", n).Msg("Retired idle sessions")
			}
		}
	}
}

// ActiveCount returns the number of sessions held in memory.
func (s *ExamSessionService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// List returns an owner's stored sessions with pagination.
func (s *ExamSessionService) List(ctx context.Context, ownerID string, q *model.ListSessionsQuery) ([]model.SessionSummary, *response.Pagination, error) {
	if s.lister == nil {
		return []model.SessionSummary{}, &response.Pagination{Page: 1}, nil
	}

	page, perPage := q.Page, q.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	sessions, total, err := s.lister.ListByOwner(ctx, ownerID, q.Status, page, perPage)
	if err != nil {
		return nil, nil, err
	}

	return sessions, response.NewPagination(page, perPage, total), nil
}

// Shutdown suspends every session in memory and stops background work.
func (s *ExamSessionService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	all := make(map[uuid.UUID]*activeSession, len(s.active))
	for id, a := range s.active {
		all[id] = a
	}
	s.mu.Unlock()

	failed := 0
	for id, a := range all {
		if err := s.evict(ctx, id, a); err != nil {
			failed++
			s.log.Error().Err(err).Str("session_id", id.String()).Msg("Session flush failed during shutdown")
		}
	}
	s.stop()

	s.log.Info().Int("sessions", len(all)).Int("failed", failed).Msg("Sessions suspended")
}
