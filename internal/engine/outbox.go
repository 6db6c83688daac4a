package engine

import (
	"context"

	"github.com/peakprep/peakprep-backend/internal/model"
)

// Outbox receives the remote mirroring side effects of state transitions.
// Every method is fire-and-forget from the engine's perspective: the local
// transition has already succeeded by the time it is called, and nothing the
// outbox does can roll it back. Implementations own their retry policy.
type Outbox interface {
	// SessionStarted requests remote creation of a just-started session.
	// The remote id is reported back through Engine.AttachRemoteSession.
	SessionStarted(ctx context.Context, s *model.PracticeSession)

	// AnswerSaved mirrors an answer or flag change. isCorrect is nil while
	// the question has no selected option. Implementations debounce per
	// question and must be idempotent at (session, question) granularity.
	AnswerSaved(ctx context.Context, s *model.PracticeSession, a model.UserAnswer, isCorrect *bool)

	// ProgressMoved opportunistically pushes the current question index.
	// Stale delivery is acceptable.
	ProgressMoved(ctx context.Context, s *model.PracticeSession)

	// SessionCompleted requests remote finalization; the remote side
	// recomputes the score authoritatively from persisted answer rows.
	SessionCompleted(ctx context.Context, s *model.PracticeSession)
}

// NopOutbox discards all side effects. Used when running fully offline.
type NopOutbox struct{}

func (NopOutbox) SessionStarted(context.Context, *model.PracticeSession) {}
func (NopOutbox) AnswerSaved(context.Context, *model.PracticeSession, model.UserAnswer, *bool) {
}
func (NopOutbox) ProgressMoved(context.Context, *model.PracticeSession)    {}
func (NopOutbox) SessionCompleted(context.Context, *model.PracticeSession) {}
