package outbox

import (
	"sync"
	"testing"
	"time"
)

// collector records fired ops behind a mutex so timer callbacks are safe to
// inspect.
type collector struct {
	mu  sync.Mutex
	ops []UpsertAnswerOp
}

func (c *collector) fire(op UpsertAnswerOp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, op)
}

func (c *collector) snapshot() []UpsertAnswerOp {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]UpsertAnswerOp, len(c.ops))
	copy(out, c.ops)
	return out
}

func strPtr(s string) *string { return &s }

func answerOp(qid, selected string) UpsertAnswerOp {
	return sessionAnswerOp("ps-1", qid, selected)
}

func sessionAnswerOp(localID, qid, selected string) UpsertAnswerOp {
	op := UpsertAnswerOp{
		LocalID:    localID,
		UserID:     "u-1",
		QuestionID: qid,
	}
	if selected != "" {
		op.Selected = strPtr(selected)
	}
	return op
}

func waitForOps(t *testing.T, c *collector, want int) []UpsertAnswerOp {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ops := c.snapshot(); len(ops) >= want {
			return ops
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d ops, have %d", want, len(c.snapshot()))
	return nil
}

func TestDebouncerCoalesces(t *testing.T) {
	c := &collector{}
	d := NewDebouncer(30*time.Millisecond, c.fire)
	defer d.Stop()

	// Rapid changes to the same question settle into one trailing write.
	d.Submit(answerOp("q1", "A"))
	d.Submit(answerOp("q1", "B"))
	d.Submit(answerOp("q1", "C"))

	ops := waitForOps(t, c, 1)
	if len(ops) != 1 {
		t.Fatalf("fired %d ops, want 1", len(ops))
	}
	if ops[0].Selected == nil || *ops[0].Selected != "C" {
		t.Errorf("trailing write must carry the last state, got %v", ops[0].Selected)
	}
}

func TestDebouncerIdenticalStateSuppressed(t *testing.T) {
	c := &collector{}
	d := NewDebouncer(20*time.Millisecond, c.fire)
	defer d.Stop()

	d.Submit(answerOp("q1", "A"))
	waitForOps(t, c, 1)

	// Same state again after the write settled: nothing new to say.
	d.Submit(answerOp("q1", "A"))
	time.Sleep(60 * time.Millisecond)

	if got := len(c.snapshot()); got != 1 {
		t.Errorf("fired %d ops, want 1 (identical state must not re-fire)", got)
	}
}

func TestDebouncerStateChangeRestartsWindow(t *testing.T) {
	c := &collector{}
	d := NewDebouncer(20*time.Millisecond, c.fire)
	defer d.Stop()

	d.Submit(answerOp("q1", "A"))
	waitForOps(t, c, 1)

	// A real change after settling fires again.
	d.Submit(answerOp("q1", "B"))
	ops := waitForOps(t, c, 2)
	if *ops[1].Selected != "B" {
		t.Errorf("second write = %q, want B", *ops[1].Selected)
	}
}

func TestDebouncerIndependentQuestions(t *testing.T) {
	c := &collector{}
	d := NewDebouncer(30*time.Millisecond, c.fire)
	defer d.Stop()

	d.Submit(answerOp("q1", "A"))
	d.Submit(answerOp("q2", "B"))

	ops := waitForOps(t, c, 2)
	seen := map[string]bool{}
	for _, op := range ops {
		seen[op.QuestionID] = true
	}
	if !seen["q1"] || !seen["q2"] {
		t.Errorf("both questions must fire independently, got %v", seen)
	}
}

func TestDebouncerNewSessionSameAnswerFires(t *testing.T) {
	c := &collector{}
	d := NewDebouncer(20*time.Millisecond, c.fire)
	defer d.Stop()

	// The same question can be resampled into a later session on the same
	// connection. Its answer write is idempotent per (session, question), so
	// the earlier session's sent state must not suppress it.
	d.Submit(sessionAnswerOp("ps-1", "q1", "A"))
	waitForOps(t, c, 1)

	d.Submit(sessionAnswerOp("ps-2", "q1", "A"))
	ops := waitForOps(t, c, 2)
	if ops[1].LocalID != "ps-2" {
		t.Errorf("second write session = %q, want ps-2", ops[1].LocalID)
	}
}

func TestDebouncerFlagChangeFires(t *testing.T) {
	c := &collector{}
	d := NewDebouncer(20*time.Millisecond, c.fire)
	defer d.Stop()

	op := answerOp("q1", "A")
	d.Submit(op)
	waitForOps(t, c, 1)

	// Same selection but flag flipped is a distinct state.
	op.IsFlagged = true
	d.Submit(op)
	ops := waitForOps(t, c, 2)
	if !ops[1].IsFlagged {
		t.Error("flag change must produce a write")
	}
}

func TestDebouncerTimeSpentAloneDoesNotFire(t *testing.T) {
	c := &collector{}
	d := NewDebouncer(20*time.Millisecond, c.fire)
	defer d.Stop()

	op := answerOp("q1", "A")
	d.Submit(op)
	waitForOps(t, c, 1)

	op.TimeSpent = 30
	d.Submit(op)
	time.Sleep(60 * time.Millisecond)

	if got := len(c.snapshot()); got != 1 {
		t.Errorf("fired %d ops, want 1 (time alone is not a state change)", got)
	}
}

func TestDebouncerFlush(t *testing.T) {
	c := &collector{}
	d := NewDebouncer(10*time.Second, c.fire)
	defer d.Stop()

	d.Submit(answerOp("q1", "A"))
	d.Submit(answerOp("q2", "B"))

	// Flush must not wait out the window.
	d.Flush()

	if got := len(c.snapshot()); got != 2 {
		t.Fatalf("flushed %d ops, want 2", got)
	}

	// Flushed state counts as sent: resubmitting it stays quiet.
	d.Submit(answerOp("q1", "A"))
	time.Sleep(30 * time.Millisecond)
	if got := len(c.snapshot()); got != 2 {
		t.Errorf("fired %d ops, want 2", got)
	}
}

func TestDebouncerStopRejectsSubmissions(t *testing.T) {
	c := &collector{}
	d := NewDebouncer(10*time.Second, c.fire)

	d.Submit(answerOp("q1", "A"))
	d.Stop()

	if got := len(c.snapshot()); got != 1 {
		t.Fatalf("stop must flush pending ops, got %d", got)
	}

	d.Submit(answerOp("q2", "B"))
	time.Sleep(20 * time.Millisecond)
	if got := len(c.snapshot()); got != 1 {
		t.Errorf("submissions after stop must be dropped, got %d ops", got)
	}
}
