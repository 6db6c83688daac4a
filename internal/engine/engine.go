package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/peakprep/peakprep-backend/internal/model"
)

// Engine owns at most one live practice session and is its only mutator.
// Dispatch applies transitions atomically and serially under a single lock,
// mirrors every mutation to the snapshot store synchronously, and hands
// remote side effects to the outbox fire-and-forget. Local truth wins: no
// remote failure ever reverses a transition.
type Engine struct {
	mu      sync.Mutex
	userID  uuid.UUID
	outbox  Outbox
	store   SnapshotStore
	log     zerolog.Logger
	now     func() time.Time
	session *model.PracticeSession
}

// New creates an engine for one user with no live session.
func New(userID uuid.UUID, outbox Outbox, store SnapshotStore, log zerolog.Logger) *Engine {
	return &Engine{
		userID: userID,
		outbox: outbox,
		store:  store,
		log:    log.With().Str("component", "session_engine").Logger(),
		now:    time.Now,
	}
}

// Dispatch applies one transition. Invalid requests (unknown question id,
// tick while paused, completed session) are dropped as no-ops rather than
// returned as errors; the session object is never left half-mutated.
func (e *Engine) Dispatch(ctx context.Context, action Action) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch a := action.(type) {
	case StartSession:
		e.applyStart(ctx, a)
	case AnswerQuestion:
		e.applyAnswer(ctx, a)
	case GoToQuestion:
		e.applyGoTo(ctx, a)
	case ToggleFlag:
		e.applyToggleFlag(ctx, a)
	case PauseSession:
		e.applyPause(ctx)
	case ResumeSession:
		e.applyResume(ctx)
	case TickTimer:
		e.applyTick(ctx)
	case CompleteSession:
		e.applyComplete(ctx)
	case AbandonSession:
		e.applyAbandon(ctx)
	default:
		e.log.Warn().Type("action", action).Msg("Unknown action dropped")
	}
}

// Session returns a deep copy of the live session, or nil when no session is
// live. Callers can never mutate engine state through the copy.
func (e *Engine) Session() *model.PracticeSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copySession(e.session)
}

// ShouldTick reports whether the owning scheduler may emit timer ticks.
func (e *Engine) ShouldTick() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil && !e.session.IsPaused && !e.session.IsCompleted
}

// AttachRemoteSession records the remote correlation id once session creation
// lands. Ignored when the live session no longer matches localID.
func (e *Engine) AttachRemoteSession(ctx context.Context, localID string, remoteID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil || e.session.LocalID != localID {
		return
	}
	id := remoteID
	e.session.ServerSessionID = &id
	e.snapshot(ctx)
	e.log.Debug().Str("local_id", localID).Str("session_id", remoteID.String()).
		Msg("Remote session attached")
}

// Restore rebuilds the live session from the snapshot slot. Malformed or
// stale data degrades to "no active session" and is never fatal.
func (e *Engine) Restore(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, err := e.store.Load(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("Snapshot restore failed, starting clean")
		return false
	}
	if sess == nil || sess.IsCompleted || len(sess.Questions) == 0 {
		return false
	}

	// Repair anything a partial write could have left behind.
	if sess.CurrentQuestion < 0 {
		sess.CurrentQuestion = 0
	}
	if sess.CurrentQuestion >= len(sess.Questions) {
		sess.CurrentQuestion = len(sess.Questions) - 1
	}
	if sess.Answers == nil {
		sess.Answers = make(map[uuid.UUID]*model.UserAnswer)
	}
	for id := range sess.Answers {
		if sess.Question(id) == nil {
			delete(sess.Answers, id)
		}
	}

	e.session = sess
	e.log.Info().Str("local_id", sess.LocalID).Int("answers", len(sess.Answers)).
		Msg("Session restored from snapshot")
	return true
}

// ─── Transitions ───────────────────────────────────────────────────

func (e *Engine) applyStart(ctx context.Context, a StartSession) {
	if len(a.Questions) == 0 {
		e.log.Warn().Msg("Start with empty question list dropped")
		return
	}

	now := e.now()
	e.session = &model.PracticeSession{
		LocalID:         newLocalID(now),
		UserID:          e.userID,
		TestType:        a.TestType,
		SessionType:     a.SessionType,
		Subject:         a.Subject,
		Topic:           a.Topic,
		Difficulty:      a.Difficulty,
		Questions:       a.Questions,
		Answers:         make(map[uuid.UUID]*model.UserAnswer),
		CurrentQuestion: 0,
		StartTime:       now,
	}
	e.snapshot(ctx)
	e.outbox.SessionStarted(ctx, copySession(e.session))
}

func (e *Engine) applyAnswer(ctx context.Context, a AnswerQuestion) {
	s := e.session
	if s == nil || s.IsCompleted || !a.Answer.Valid() {
		return
	}
	q := s.Question(a.QuestionID)
	if q == nil {
		// Unknown question id: dropped, not an error.
		return
	}

	ans := s.Answers[a.QuestionID]
	if ans == nil {
		ans = &model.UserAnswer{QuestionID: a.QuestionID}
		s.Answers[a.QuestionID] = ans
	} else if ans.SelectedAnswer != nil && *ans.SelectedAnswer == a.Answer {
		// Re-selecting the same option changes nothing and must not
		// re-trigger a remote write.
		return
	}
	sel := a.Answer
	ans.SelectedAnswer = &sel

	e.snapshot(ctx)

	correct := sel == q.CorrectAnswer
	e.outbox.AnswerSaved(ctx, copySession(s), *ans, &correct)
}

func (e *Engine) applyGoTo(ctx context.Context, a GoToQuestion) {
	s := e.session
	if s == nil || s.IsCompleted {
		return
	}

	// Clamp rather than reject: navigation must always land on a question.
	idx := a.Index
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.Questions) {
		idx = len(s.Questions) - 1
	}
	if idx == s.CurrentQuestion {
		return
	}

	s.CurrentQuestion = idx
	e.snapshot(ctx)
	e.outbox.ProgressMoved(ctx, copySession(s))
}

func (e *Engine) applyToggleFlag(ctx context.Context, a ToggleFlag) {
	s := e.session
	if s == nil || s.IsCompleted {
		return
	}
	if s.Question(a.QuestionID) == nil {
		return
	}

	ans := s.Answers[a.QuestionID]
	if ans == nil {
		// Flagging before answering creates a placeholder with no selection.
		ans = &model.UserAnswer{QuestionID: a.QuestionID, IsFlagged: true}
		s.Answers[a.QuestionID] = ans
	} else {
		ans.IsFlagged = !ans.IsFlagged
	}

	e.snapshot(ctx)

	var correct *bool
	if ans.Answered() {
		if q := s.Question(a.QuestionID); q != nil {
			c := *ans.SelectedAnswer == q.CorrectAnswer
			correct = &c
		}
	}
	e.outbox.AnswerSaved(ctx, copySession(s), *ans, correct)
}

func (e *Engine) applyPause(ctx context.Context) {
	s := e.session
	if s == nil || s.IsCompleted || s.IsPaused {
		return
	}
	s.IsPaused = true
	e.snapshot(ctx)
}

func (e *Engine) applyResume(ctx context.Context) {
	s := e.session
	if s == nil || s.IsCompleted || !s.IsPaused {
		return
	}
	s.IsPaused = false
	e.snapshot(ctx)
}

func (e *Engine) applyTick(ctx context.Context) {
	s := e.session
	if s == nil || s.IsPaused || s.IsCompleted {
		return
	}
	s.SessionTime++

	// Attribute time to the current question once it has an answer entry.
	if s.CurrentQuestion >= 0 && s.CurrentQuestion < len(s.Questions) {
		qid := s.Questions[s.CurrentQuestion].ID
		if ans := s.Answers[qid]; ans != nil {
			ans.TimeSpent++
		}
	}
	e.snapshot(ctx)
}

func (e *Engine) applyComplete(ctx context.Context) {
	s := e.session
	if s == nil || s.IsCompleted {
		return
	}

	// Completion implicitly resumes: paused and completed are never both
	// observable.
	s.IsPaused = false
	now := e.now()
	s.EndTime = &now
	score := model.ScorePercent(s.CorrectCount(), s.AnsweredCount())
	s.Score = &score
	s.IsCompleted = true

	// The remote copy is authoritative from here on; the local slot is done.
	if err := e.store.Clear(ctx); err != nil {
		e.log.Warn().Err(err).Msg("Snapshot clear failed")
	}
	e.outbox.SessionCompleted(ctx, copySession(s))

	e.log.Info().Str("local_id", s.LocalID).Int("score", score).
		Int("answered", s.AnsweredCount()).Int("session_time", s.SessionTime).
		Msg("Session completed")
}

func (e *Engine) applyAbandon(ctx context.Context) {
	if e.session == nil {
		return
	}
	localID := e.session.LocalID
	e.session = nil
	if err := e.store.Clear(ctx); err != nil {
		e.log.Warn().Err(err).Msg("Snapshot clear failed")
	}
	e.log.Info().Str("local_id", localID).Msg("Session abandoned")
}

// ─── Internal helpers ──────────────────────────────────────────────

// snapshot mirrors the live session to durable storage. A failed write is a
// save problem, never a reason to undo the transition.
func (e *Engine) snapshot(ctx context.Context) {
	if err := e.store.Save(ctx, e.session); err != nil {
		e.log.Warn().Err(err).Msg("Snapshot save failed")
	}
}

// newLocalID derives a display-only correlation key from the start timestamp.
// Uniqueness is not guaranteed across processes; the remote uuid is the real
// identity.
func newLocalID(t time.Time) string {
	return fmt.Sprintf("ps-%d", t.UnixNano())
}

func copySession(s *model.PracticeSession) *model.PracticeSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Questions = make([]model.Question, len(s.Questions))
	copy(out.Questions, s.Questions)
	out.Answers = make(map[uuid.UUID]*model.UserAnswer, len(s.Answers))
	for id, a := range s.Answers {
		ac := *a
		out.Answers[id] = &ac
	}
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	if s.Score != nil {
		v := *s.Score
		out.Score = &v
	}
	if s.ServerSessionID != nil {
		id := *s.ServerSessionID
		out.ServerSessionID = &id
	}
	return &out
}
