package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTicks struct {
	ch      chan time.Time
	stopped chan struct{}
}

func newManualTicks() *manualTicks {
	return &manualTicks{ch: make(chan time.Time), stopped: make(chan struct{}, 4)}
}

func (m *manualTicks) source(time.Duration) (<-chan time.Time, func()) {
	return m.ch, func() { m.stopped <- struct{}{} }
}

func (m *manualTicks) fire(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("tick loop did not receive tick")
	}
}

func newTestTimer(s *Session, m *manualTicks) (*Timer, chan bool) {
	tm := NewTimer(s, time.Millisecond, zerolog.Nop())
	tm.source = m.source
	ticked := make(chan bool, 16)
	tm.OnTick(func(running bool) { ticked <- running })
	return tm, ticked
}

func waitTick(t *testing.T, ch chan bool) bool {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("no tick observed")
		return false
	}
}

func TestTimerDrivesSessionToTimeout(t *testing.T) {
	s := newTimed(t, 2, 3)
	m := newManualTicks()
	tm, ticked := newTestTimer(s, m)

	tm.Start(context.Background())
	assert.True(t, tm.Running())

	m.fire(t)
	assert.True(t, waitTick(t, ticked))
	m.fire(t)
	assert.True(t, waitTick(t, ticked))
	m.fire(t)
	assert.False(t, waitTick(t, ticked))

	assert.Eventually(t, func() bool { return !tm.Running() }, time.Second, 5*time.Millisecond)
	snap := s.Snapshot()
	assert.True(t, snap.IsEnded)
	assert.Equal(t, 0, snap.TimeRemaining)

	// Restarting an ended session is a no-op.
	tm.Start(context.Background())
	assert.False(t, tm.Running())
}

func TestTimerStartIsIdempotent(t *testing.T) {
	s := newTimed(t, 2, 60)
	m := newManualTicks()
	tm, ticked := newTestTimer(s, m)

	tm.Start(context.Background())
	tm.Start(context.Background())

	m.fire(t)
	waitTick(t, ticked)
	tm.Stop()

	assert.False(t, tm.Running())
	assert.Equal(t, 59, s.Snapshot().TimeRemaining)
	assert.Len(t, m.stopped, 1, "only one loop may be running")
}

func TestTimerStopAndResume(t *testing.T) {
	s := newTimed(t, 2, 60)
	m := newManualTicks()
	tm, ticked := newTestTimer(s, m)

	tm.Start(context.Background())
	m.fire(t)
	waitTick(t, ticked)
	tm.Stop()
	tm.Stop()

	// While stopped nothing is charged.
	assert.Equal(t, 59, s.Snapshot().TimeRemaining)

	tm.Start(context.Background())
	m.fire(t)
	waitTick(t, ticked)
	tm.Stop()
	assert.Equal(t, 58, s.Snapshot().TimeRemaining)
}

func TestTimerStopsOnContextCancel(t *testing.T) {
	s := newTimed(t, 2, 60)
	m := newManualTicks()
	tm, _ := newTestTimer(s, m)

	ctx, cancel := context.WithCancel(context.Background())
	tm.Start(ctx)
	cancel()

	require.Eventually(t, func() bool { return !tm.Running() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 60, s.Snapshot().TimeRemaining)
}

func TestTimerIgnoresTicksAfterManualEnd(t *testing.T) {
	s := newTimed(t, 2, 60)
	m := newManualTicks()
	tm, ticked := newTestTimer(s, m)

	tm.Start(context.Background())
	require.NoError(t, s.End())
	m.fire(t)
	assert.False(t, waitTick(t, ticked))
	assert.Eventually(t, func() bool { return !tm.Running() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 60, s.Snapshot().TimeRemaining)
}
