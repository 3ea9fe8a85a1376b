package engine

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/examsim-backend/internal/model"
)

func TestConcurrentTickAndEndFinishOnce(t *testing.T) {
	for round := 0; round < 50; round++ {
		s := newTimed(t, 3, 2)

		var ends int32
		s.SetHooks(Hooks{OnEnd: func(model.EndReason) { atomic.AddInt32(&ends, 1) }})

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				s.Tick()
			}()
			go func() {
				defer wg.Done()
				<-start
				_ = s.End()
			}()
		}
		close(start)
		wg.Wait()

		snap := s.Snapshot()
		assert.True(t, snap.IsEnded)
		assert.GreaterOrEqual(t, snap.TimeRemaining, 0)
		assert.Equal(t, int32(1), atomic.LoadInt32(&ends), "round %d", round)
	}
}

func TestConcurrentCommandsAreSerialized(t *testing.T) {
	s := newTimed(t, 5, 600)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.ToggleFlag("q1")
			_ = s.SelectAnswer("q2", i%5)
			s.Tick()
		}(i)
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, 580, snap.TimeRemaining)
	assert.Equal(t, 20, snap.ElapsedSeconds)
	assert.False(t, snap.Responses["q1"].IsFlagged, "twenty toggles cancel out")
}

func TestTimerInterruptedByEndHook(t *testing.T) {
	s := newTimed(t, 2, 60)
	m := newManualTicks()
	tm, _ := newTestTimer(s, m)
	s.SetHooks(Hooks{OnEnd: func(model.EndReason) { tm.Interrupt() }})

	tm.Start(context.Background())
	require.True(t, tm.Running())

	require.NoError(t, s.End())
	// No further tick is delivered; the loop must still wind down.
	assert.Eventually(t, func() bool { return !tm.Running() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 60, s.Snapshot().TimeRemaining)
}

func TestFeedbackCarriesTeachingMaterial(t *testing.T) {
	qs := sampleQuestions(2)
	peer := 62.5
	qs[0].Explanation = "Aspirin reduces mortality in acute MI."
	qs[0].EducationalObjective = "Initial management of STEMI"
	qs[0].PeerPerformance = &peer

	s, err := NewSession(qs, model.ModeTutor, 0, Options{})
	require.NoError(t, err)
	require.NoError(t, s.SelectAnswer("q1", 3))

	fb, err := s.Feedback("q1")
	require.NoError(t, err)
	assert.Equal(t, qs[0].Explanation, fb.Explanation)
	assert.Equal(t, "Initial management of STEMI", fb.EducationalObjective)
	require.NotNil(t, fb.PeerPerformance)
	assert.Equal(t, 62.5, *fb.PeerPerformance)
}

func TestSnapshotKeepsEmptyListsAsArrays(t *testing.T) {
	s := newTimed(t, 2, 60)
	require.NoError(t, s.ToggleFlag("q1"))

	raw, err := json.Marshal(s.Snapshot().Responses["q1"])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"struck":[]`)
	assert.Contains(t, string(raw), `"highlights":[]`)

	r := s.Response("q1")
	require.NotNil(t, r)
	assert.NotNil(t, r.Struck)
	assert.NotNil(t, r.Highlights)
}
