package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/examsim-backend/internal/model"
)

type fakeStore struct {
	mu       sync.Mutex
	saved    []int64
	failures int
	last     *model.ExamSession
}

func (f *fakeStore) Save(_ context.Context, s *model.ExamSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("store unavailable")
	}
	f.saved = append(f.saved, s.Version)
	f.last = s
	return nil
}

func (f *fakeStore) Load(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil || f.last.ID != id {
		return nil, ErrSessionNotFound
	}
	return f.last.Clone(), nil
}

func (f *fakeStore) versions() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.saved...)
}

func TestAutosaverFlushSkipsWhenClean(t *testing.T) {
	s := newTimed(t, 3, 60)
	store := &fakeStore{}
	a := NewAutosaver(s, store, s.Version(), AutosaveOptions{}, zerolog.Nop())

	require.NoError(t, a.Flush(context.Background()))
	assert.Empty(t, store.versions())

	require.NoError(t, s.ToggleFlag("q1"))
	require.NoError(t, s.NextQuestion())
	require.NoError(t, a.Flush(context.Background()))
	require.NoError(t, a.Flush(context.Background()))

	assert.Equal(t, []int64{2}, store.versions())
	assert.Equal(t, int64(2), a.SavedVersion())
}

func TestAutosaverCoalescesSignals(t *testing.T) {
	s := newTimed(t, 3, 60)
	store := &fakeStore{}
	a := NewAutosaver(s, store, 0, AutosaveOptions{}, zerolog.Nop())

	for i := 0; i < 5; i++ {
		require.NoError(t, s.ToggleFlag("q1"))
		a.Notify()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	require.Eventually(t, func() bool { return a.SavedVersion() == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{5}, store.versions())
}

func TestAutosaverRetriesAfterFailure(t *testing.T) {
	s := newTimed(t, 3, 60)
	store := &fakeStore{failures: 2}
	var mu sync.Mutex
	var results []error
	a := NewAutosaver(s, store, 0, AutosaveOptions{
		RetryDelay: 10 * time.Millisecond,
		OnResult: func(err error) {
			mu.Lock()
			results = append(results, err)
			mu.Unlock()
		},
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	require.NoError(t, s.SelectAnswer("q1", 3))
	a.Notify()

	require.Eventually(t, func() bool { return a.SavedVersion() == 1 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 3)
	assert.Error(t, results[0])
	assert.Error(t, results[1])
	assert.NoError(t, results[2])

	// The session itself is unaffected by failed saves.
	assert.Equal(t, 3, *s.Snapshot().Responses["q1"].SelectedIndex)
}

func TestAutosaverSnapshotRestores(t *testing.T) {
	s := newTimed(t, 3, 60)
	store := &fakeStore{}
	a := NewAutosaver(s, store, 0, AutosaveOptions{}, zerolog.Nop())

	require.NoError(t, s.SelectAnswer("q2", 4))
	s.Tick()
	require.NoError(t, a.Flush(context.Background()))

	loaded, err := store.Load(context.Background(), s.ID())
	require.NoError(t, err)
	restored, err := Restore(loaded, Options{})
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), restored.Snapshot())

	_, err = store.Load(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
