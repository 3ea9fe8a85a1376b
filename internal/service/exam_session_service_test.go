package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/examsim-backend/internal/engine"
	"github.com/stemsi/examsim-backend/internal/metrics"
	"github.com/stemsi/examsim-backend/internal/model"
)

type staticQuestions struct {
	qs []model.ExamQuestion
}

func (s *staticQuestions) Questions(_ context.Context, sel Selection) ([]model.ExamQuestion, error) {
	if sel.Category == "empty" {
		return nil, engine.ErrNoQuestions
	}
	return s.qs, nil
}

type memStore struct {
	mu    sync.Mutex
	data  map[uuid.UUID]*model.ExamSession
	fail  bool
	saves int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[uuid.UUID]*model.ExamSession)}
}

func (m *memStore) Save(_ context.Context, s *model.ExamSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("redis down")
	}
	m.saves++
	m.data[s.ID] = s.Clone()
	return nil
}

func (m *memStore) Load(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[id]
	if !ok {
		return nil, engine.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *memStore) get(id uuid.UUID) *model.ExamSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.data[id]; ok {
		return s.Clone()
	}
	return nil
}

func (m *memStore) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

type recordingProgress struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (r *recordingProgress) ReportProgress(_ context.Context, e model.ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingProgress) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func bankQuestions(n int) []model.ExamQuestion {
	qs := make([]model.ExamQuestion, n)
	for i := range qs {
		qs[i] = model.ExamQuestion{
			ID:           fmt.Sprintf("q%d", i+1),
			Stem:         "Which is the next best step in management?",
			Options:      []string{"A", "B", "C", "D"},
			CorrectIndex: 2,
			Category:     "Cardiology",
		}
	}
	return qs
}

type fixture struct {
	svc      *ExamSessionService
	store    *memStore
	progress *recordingProgress
}

func newFixture(t *testing.T, opts SessionOptions) *fixture {
	t.Helper()
	if opts.TickInterval == 0 {
		opts.TickInterval = time.Hour
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 10 * time.Millisecond
	}
	f := &fixture{store: newMemStore(), progress: &recordingProgress{}}
	f.svc = NewExamSessionService(&staticQuestions{qs: bankQuestions(3)}, f.store, f.progress, nil, metrics.New(), opts, zerolog.Nop())
	t.Cleanup(func() { f.svc.Shutdown(context.Background()) })
	return f
}

func timedRequest(seconds int) *model.StartSessionRequest {
	return &model.StartSessionRequest{Mode: model.ModeTimed, DurationSeconds: seconds, Category: "Cardiology"}
}

func TestStartPersistsAndHidesAnswers(t *testing.T) {
	f := newFixture(t, SessionOptions{})
	ctx := context.Background()

	view, err := f.svc.Start(ctx, "alice", timedRequest(120))
	require.NoError(t, err)

	assert.Equal(t, model.ModeTimed, view.Mode)
	assert.Equal(t, 120, view.TimeRemaining)
	require.Len(t, view.Questions, 3)
	assert.Nil(t, view.Questions[0].CorrectIndex)

	stored := f.store.get(view.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "alice", stored.OwnerID)
	assert.Equal(t, 1, f.svc.ActiveCount())
}

func TestStartPropagatesSelectionErrors(t *testing.T) {
	f := newFixture(t, SessionOptions{})
	_, err := f.svc.Start(context.Background(), "alice", &model.StartSessionRequest{Mode: model.ModeTimed, DurationSeconds: 60, Category: "empty"})
	assert.ErrorIs(t, err, engine.ErrNoQuestions)

	_, err = f.svc.Start(context.Background(), "alice", &model.StartSessionRequest{Mode: model.ModeTimed})
	assert.ErrorIs(t, err, engine.ErrInvalidDuration)
}

func TestOtherOwnersCannotSeeSession(t *testing.T) {
	f := newFixture(t, SessionOptions{})
	ctx := context.Background()
	view, err := f.svc.Start(ctx, "alice", timedRequest(60))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "mallory", view.ID)
	assert.ErrorIs(t, err, engine.ErrSessionNotFound)
	_, err = f.svc.SelectAnswer(ctx, "mallory", view.ID, "q1", 0)
	assert.ErrorIs(t, err, engine.ErrSessionNotFound)
	assert.ErrorIs(t, f.svc.Suspend(ctx, "mallory", view.ID), engine.ErrSessionNotFound)

	_, err = f.svc.Get(ctx, "alice", uuid.New())
	assert.ErrorIs(t, err, engine.ErrSessionNotFound)
}

func TestAnswerReportsProgressAndAutosaves(t *testing.T) {
	f := newFixture(t, SessionOptions{})
	ctx := context.Background()
	view, err := f.svc.Start(ctx, "alice", timedRequest(60))
	require.NoError(t, err)

	res, err := f.svc.SelectAnswer(ctx, "alice", view.ID, "q2", 2)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	require.NotNil(t, res.Response)
	assert.Equal(t, 2, *res.Response.SelectedIndex)
	assert.Nil(t, res.Feedback, "timed mode hides feedback until the end")

	require.Eventually(t, func() bool { return f.progress.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		s := f.store.get(view.ID)
		return s != nil && s.Version == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTutorAnswerReturnsFeedback(t *testing.T) {
	f := newFixture(t, SessionOptions{})
	ctx := context.Background()
	view, err := f.svc.Start(ctx, "alice", &model.StartSessionRequest{Mode: model.ModeTutor})
	require.NoError(t, err)

	res, err := f.svc.SelectAnswer(ctx, "alice", view.ID, "q1", 2)
	require.NoError(t, err)
	require.NotNil(t, res.Feedback)
	assert.True(t, res.Feedback.IsCorrect)
}

func TestRejectedCommandsReturnErrors(t *testing.T) {
	f := newFixture(t, SessionOptions{})
	ctx := context.Background()
	view, err := f.svc.Start(ctx, "alice", timedRequest(60))
	require.NoError(t, err)

	_, err = f.svc.SelectAnswer(ctx, "alice", view.ID, "q1", 9)
	assert.ErrorIs(t, err, engine.ErrOptionOutOfRange)

	idx := 3
	_, err = f.svc.Navigate(ctx, "alice", view.ID, model.NavigateGoTo, &idx)
	assert.ErrorIs(t, err, engine.ErrIndexOutOfRange)

	_, err = f.svc.Report(ctx, "alice", view.ID)
	assert.ErrorIs(t, err, engine.ErrSessionActive)

	_, err = f.svc.EnterReview(ctx, "alice", view.ID)
	assert.ErrorIs(t, err, engine.ErrSessionActive)
}

func TestEndAutoReviewAndIgnoredCommands(t *testing.T) {
	f := newFixture(t, SessionOptions{AutoReview: true})
	ctx := context.Background()
	view, err := f.svc.Start(ctx, "alice", timedRequest(60))
	require.NoError(t, err)

	_, err = f.svc.SelectAnswer(ctx, "alice", view.ID, "q1", 2)
	require.NoError(t, err)

	res, err := f.svc.End(ctx, "alice", view.ID)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, res.State.IsEnded)
	assert.Equal(t, model.ModeReview, res.State.Mode)

	stored := f.store.get(view.ID)
	require.NotNil(t, stored)
	assert.True(t, stored.IsEnded, "end flushes synchronously")

	res, err = f.svc.SelectAnswer(ctx, "alice", view.ID, "q2", 1)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	res, err = f.svc.End(ctx, "alice", view.ID)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	rep, err := f.svc.Report(ctx, "alice", view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Correct)
	assert.Equal(t, 33, rep.PercentageCorrect)
	assert.Equal(t, model.EndReasonSubmitted, rep.EndReason)
}

func TestSuspendAndResume(t *testing.T) {
	f := newFixture(t, SessionOptions{})
	ctx := context.Background()
	view, err := f.svc.Start(ctx, "alice", timedRequest(60))
	require.NoError(t, err)

	_, err = f.svc.ToggleFlag(ctx, "alice", view.ID, "q3")
	require.NoError(t, err)
	idx := 2
	_, err = f.svc.Navigate(ctx, "alice", view.ID, model.NavigateGoTo, &idx)
	require.NoError(t, err)

	require.NoError(t, f.svc.Suspend(ctx, "alice", view.ID))
	assert.Equal(t, 0, f.svc.ActiveCount())

	resumed, err := f.svc.Get(ctx, "alice", view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.svc.ActiveCount())
	assert.Equal(t, 2, resumed.CurrentIndex)
	assert.True(t, resumed.Responses["q3"].IsFlagged)
	assert.Equal(t, 60, resumed.TimeRemaining)

	nav, err := f.svc.Navigator(ctx, "alice", view.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFlagged, nav.Entries[2].Status)
}

func TestSuspendFailureKeepsSessionInMemory(t *testing.T) {
	f := newFixture(t, SessionOptions{})
	ctx := context.Background()
	view, err := f.svc.Start(ctx, "alice", timedRequest(60))
	require.NoError(t, err)

	f.store.setFail(true)
	_, err = f.svc.ToggleFlag(ctx, "alice", view.ID, "q1")
	require.NoError(t, err, "a failing store never rejects a mutation")

	err = f.svc.Suspend(ctx, "alice", view.ID)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 1, f.svc.ActiveCount())

	got, err := f.svc.Get(ctx, "alice", view.ID)
	require.NoError(t, err)
	assert.True(t, got.Responses["q1"].IsFlagged)

	f.store.setFail(false)
	require.NoError(t, f.svc.Suspend(ctx, "alice", view.ID))
	assert.True(t, f.store.get(view.ID).Responses["q1"].IsFlagged)
}

func TestTimerTimeoutStreamsToSubscribers(t *testing.T) {
	f := newFixture(t, SessionOptions{TickInterval: 5 * time.Millisecond, AutoReview: true})
	ctx := context.Background()
	view, err := f.svc.Start(ctx, "alice", timedRequest(3))
	require.NoError(t, err)

	sub, err := f.svc.Subscribe(ctx, "alice", view.ID)
	require.NoError(t, err)
	defer sub.Close()

	final := sub.Initial
	deadline := time.After(2 * time.Second)
	for !final.IsEnded {
		select {
		case st, ok := <-sub.Updates:
			require.True(t, ok)
			final = st
		case <-deadline:
			t.Fatal("session did not time out")
		}
	}

	assert.Equal(t, 0, final.TimeRemaining)
	rep, err := f.svc.Report(ctx, "alice", view.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EndReasonTimeout, rep.EndReason)
}

func TestRetireIdleEvictsEndedSessions(t *testing.T) {
	f := newFixture(t, SessionOptions{RetireAfter: time.Millisecond})
	ctx := context.Background()
	ended, err := f.svc.Start(ctx, "alice", timedRequest(60))
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, "alice", timedRequest(60))
	require.NoError(t, err)

	_, err = f.svc.End(ctx, "alice", ended.ID)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, 1, f.svc.RetireIdle(ctx))
	assert.Equal(t, 1, f.svc.ActiveCount())
	assert.True(t, f.store.get(ended.ID).IsEnded)
}

func TestShutdownFlushesEverySession(t *testing.T) {
	f := newFixture(t, SessionOptions{})
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		v, err := f.svc.Start(ctx, "alice", timedRequest(60))
		require.NoError(t, err)
		_, err = f.svc.ToggleFlag(ctx, "alice", v.ID, "q1")
		require.NoError(t, err)
		ids = append(ids, v.ID)
	}

	f.svc.Shutdown(ctx)
	assert.Equal(t, 0, f.svc.ActiveCount())
	for _, id := range ids {
		assert.True(t, f.store.get(id).Responses["q1"].IsFlagged)
	}
}
