package outbox

import (
	"fmt"
	"sync"
	"time"
)

// Debouncer coalesces answer writes per (session, question): rapid changes to
// the same question within the window collapse into one trailing write, and
// re-submitting an identical (selection, flag) state never re-triggers a
// write at all. Different questions, and the same question in a different
// session, debounce independently.
type Debouncer struct {
	mu       sync.Mutex
	window   time.Duration
	fire     func(op UpsertAnswerOp)
	pending  map[string]*pendingWrite
	lastSent map[string]string
	stopped  bool
}

type pendingWrite struct {
	key   string
	op    UpsertAnswerOp
	timer *time.Timer
}

// NewDebouncer creates a debouncer that calls fire once per settled write.
// A zero window means one second.
func NewDebouncer(window time.Duration, fire func(op UpsertAnswerOp)) *Debouncer {
	if window <= 0 {
		window = time.Second
	}
	return &Debouncer{
		window:   window,
		fire:     fire,
		pending:  make(map[string]*pendingWrite),
		lastSent: make(map[string]string),
	}
}

// Submit schedules op for writing after the window elapses. Identical state
// (same session, question, selection, flag) is dropped whether it is pending
// or already sent.
func (d *Debouncer) Submit(op UpsertAnswerOp) {
	slot := writeSlot(op)
	key := dedupeKey(op)

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	if p, ok := d.pending[slot]; ok {
		if p.key == key {
			d.mu.Unlock()
			return
		}
		p.timer.Stop()
	} else if d.lastSent[slot] == key {
		d.mu.Unlock()
		return
	}

	p := &pendingWrite{key: key, op: op}
	p.timer = time.AfterFunc(d.window, func() {
		d.flushOne(slot)
	})
	d.pending[slot] = p
	d.mu.Unlock()
}

// Flush fires all pending writes immediately. Called on session completion
// so the authoritative recompute sees every answer.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	ops := make([]UpsertAnswerOp, 0, len(d.pending))
	for slot, p := range d.pending {
		p.timer.Stop()
		d.lastSent[slot] = p.key
		ops = append(ops, p.op)
		delete(d.pending, slot)
	}
	d.mu.Unlock()

	for _, op := range ops {
		d.fire(op)
	}
}

// Stop flushes pending writes and rejects further submissions.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.Flush()
}

func (d *Debouncer) flushOne(slot string) {
	d.mu.Lock()
	p, ok := d.pending[slot]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, slot)
	d.lastSent[slot] = p.key
	d.mu.Unlock()

	d.fire(p.op)
}

// writeSlot scopes dedupe state to one session's question. Answer writes are
// idempotent per (session, question): a new session that resamples a question
// must not be suppressed by what an earlier session sent for it.
func writeSlot(op UpsertAnswerOp) string {
	scope := op.SessionID
	if scope == "" {
		scope = op.LocalID
	}
	return scope + "|" + op.QuestionID
}

// dedupeKey identifies an answer state. TimeSpent is deliberately excluded:
// it only increases and rides along on the next real change.
func dedupeKey(op UpsertAnswerOp) string {
	sel := ""
	if op.Selected != nil {
		sel = *op.Selected
	}
	conf := 0
	if op.Confidence != nil {
		conf = *op.Confidence
	}
	return fmt.Sprintf("%s|%t|%d", sel, op.IsFlagged, conf)
}
