package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/examsim-backend/internal/engine"
	"github.com/stemsi/examsim-backend/internal/model"
)

func tutorRequest() *model.StartSessionRequest {
	return &model.StartSessionRequest{Mode: model.ModeTutor, Category: "Cardiology"}
}

func TestSuspendWaitsForCommandInFlight(t *testing.T) {
	f := newFixture(t, SessionOptions{})
	ctx := context.Background()
	view, err := f.svc.Start(ctx, "alice", tutorRequest())
	require.NoError(t, err)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	type outcome struct {
		res *CommandResult
		err error
	}
	cmdDone := make(chan outcome, 1)
	go func() {
		res, err := f.svc.apply(ctx, "alice", view.ID, "answer", "q1", func(sess *engine.Session) error {
			close(entered)
			<-proceed
			return sess.SelectAnswer("q1", 2)
		})
		cmdDone <- outcome{res, err}
	}()
	<-entered

	suspended := make(chan error, 1)
	go func() { suspended <- f.svc.Suspend(ctx, "alice", view.ID) }()

	select {
	case err := <-suspended:
		t.Fatalf("suspend finished while a command was running: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(proceed)
	out := <-cmdDone
	require.NoError(t, out.err)
	assert.True(t, out.res.Applied)
	require.NoError(t, <-suspended)
	assert.Equal(t, 0, f.svc.ActiveCount())

	stored := f.store.get(view.ID)
	require.NotNil(t, stored.Responses["q1"])
	require.NotNil(t, stored.Responses["q1"].SelectedIndex)
	assert.Equal(t, 2, *stored.Responses["q1"].SelectedIndex)

	resumed, err := f.svc.Get(ctx, "alice", view.ID)
	require.NoError(t, err)
	require.NotNil(t, resumed.Responses["q1"].SelectedIndex)
	assert.Equal(t, 2, *resumed.Responses["q1"].SelectedIndex)
}

func TestCommandAfterEvictionReloadsSession(t *testing.T) {
	f := newFixture(t, SessionOptions{})
	ctx := context.Background()
	view, err := f.svc.Start(ctx, "alice", tutorRequest())
	require.NoError(t, err)

	stale, err := f.svc.get(ctx, "alice", view.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Suspend(ctx, "alice", view.ID))

	assert.False(t, stale.acquire(), "an evicted session no longer accepts commands")

	res, err := f.svc.SelectAnswer(ctx, "alice", view.ID, "q2", 1)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	fresh, err := f.svc.get(ctx, "alice", view.ID)
	require.NoError(t, err)
	assert.NotSame(t, stale, fresh)

	require.NoError(t, f.svc.Suspend(ctx, "alice", view.ID))
	stored := f.store.get(view.ID)
	require.NotNil(t, stored.Responses["q2"].SelectedIndex)
	assert.Equal(t, 1, *stored.Responses["q2"].SelectedIndex)
}

func TestCommandsRacingShutdownAreNeverLost(t *testing.T) {
	f := newFixture(t, SessionOptions{})
	ctx := context.Background()
	view, err := f.svc.Start(ctx, "alice", timedRequest(600))
	require.NoError(t, err)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ack = make(map[string]int)
	)
	for i, qid := range []string{"q1", "q2", "q3"} {
		wg.Add(1)
		go func(qid string, option int) {
			defer wg.Done()
			res, err := f.svc.SelectAnswer(ctx, "alice", view.ID, qid, option)
			if err == nil && res.Applied {
				mu.Lock()
				ack[qid] = option
				mu.Unlock()
			}
		}(qid, i)
	}
	f.svc.Shutdown(ctx)
	wg.Wait()

	// Commands that reloaded the session after shutdown are flushed here.
	f.svc.mu.Lock()
	reloaded := make([]*activeSession, 0, len(f.svc.active))
	for _, a := range f.svc.active {
		reloaded = append(reloaded, a)
	}
	f.svc.mu.Unlock()
	for _, a := range reloaded {
		require.NoError(t, f.svc.evict(ctx, a.sess.ID(), a))
	}

	stored := f.store.get(view.ID)
	for qid, option := range ack {
		r := stored.Responses[qid]
		require.NotNil(t, r, qid)
		require.NotNil(t, r.SelectedIndex, qid)
		assert.Equal(t, option, *r.SelectedIndex, qid)
	}
}

func TestExplicitEndStopsTimerImmediately(t *testing.T) {
	f := newFixture(t, SessionOptions{})
	ctx := context.Background()
	view, err := f.svc.Start(ctx, "alice", timedRequest(600))
	require.NoError(t, err)

	a, err := f.svc.get(ctx, "alice", view.ID)
	require.NoError(t, err)
	require.True(t, a.timer.Running())

	_, err = f.svc.End(ctx, "alice", view.ID)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return !a.timer.Running() }, time.Second, 5*time.Millisecond)
}
