package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTickInterval is one wall-clock second per tick.
const DefaultTickInterval = time.Second

// tickSource produces tick events and a stop function.
type tickSource func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Timer drives Session.Tick on a fixed interval. It holds no state beyond
// whether its loop is running; time not spent inside a running loop is never
// charged to the session.
type Timer struct {
	session  *Session
	interval time.Duration
	log      zerolog.Logger
	source   tickSource
	onTick   func(running bool)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewTimer creates a stopped timer for session.
func NewTimer(session *Session, interval time.Duration, log zerolog.Logger) *Timer {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Timer{
		session:  session,
		interval: interval,
		log:      log.With().Str("component", "session_timer").Logger(),
		source:   realTicker,
	}
}

// OnTick registers a callback invoked after each applied tick.
func (t *Timer) OnTick(fn func(running bool)) {
	t.mu.Lock()
	t.onTick = fn
	t.mu.Unlock()
}

// Running reports whether the tick loop is active.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Start launches the tick loop. Starting a running timer, or a timer whose
// session already ended, does nothing.
func (t *Timer) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running || t.session.IsEnded() {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running = true

	ticks, stop := t.source(t.interval)
	go t.loop(loopCtx, ticks, stop, t.done)
}

func (t *Timer) loop(ctx context.Context, ticks <-chan time.Time, stop func(), done chan struct{}) {
	defer close(done)
	defer stop()
	defer t.markStopped()

	t.log.Debug().Str("session_id", t.session.ID().String()).Msg("Tick loop started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			running := t.session.Tick()

			t.mu.Lock()
			cb := t.onTick
			t.mu.Unlock()
			if cb != nil {
				cb(running)
			}

			if !running {
				t.log.Debug().Str("session_id", t.session.ID().String()).Msg("Tick loop finished")
				return
			}
		}
	}
}

func (t *Timer) markStopped() {
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
}

// Interrupt cancels the tick loop without waiting for it to exit. Unlike Stop
// it may be called from session hooks running on the loop goroutine.
func (t *Timer) Interrupt() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Stop halts the tick loop and waits for it to exit. Safe to call repeatedly.
func (t *Timer) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
