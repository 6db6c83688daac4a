package engine

import (
	"context"
	"time"
)

// Ticker is the owning scheduler for TickTimer: a 1 Hz loop that emits ticks
// only while the session is active. The engine's own guard makes a tick that
// races a pause or completion a harmless no-op, but the ticker is still
// responsible for not emitting in those states.
type Ticker struct {
	engine   *Engine
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewTicker creates a ticker for the given engine. A zero interval means one
// second.
func NewTicker(e *Engine, interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Ticker{
		engine:   e,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the tick loop until Stop is called or ctx is cancelled.
// Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	defer close(t.done)

	tick := time.NewTicker(t.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-tick.C:
			if t.engine.ShouldTick() {
				t.engine.Dispatch(ctx, TickTimer{})
			}
		}
	}
}

// Stop halts the loop and waits for it to exit. Safe to call once.
func (t *Ticker) Stop() {
	close(t.stop)
	<-t.done
}
