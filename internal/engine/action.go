package engine

import (
	"github.com/google/uuid"

	"github.com/peakprep/peakprep-backend/internal/model"
)

// Action is a transition request for the practice session engine. The set of
// implementations is closed; Dispatch handles every variant exhaustively and
// applies exactly one atomic transition per dispatched action.
type Action interface {
	isAction()
}

// StartSession begins a new practice session, discarding any previous live
// session. The caller supplies the resolved, non-empty question list; the
// engine never fetches questions itself.
type StartSession struct {
	TestType    model.TestType
	SessionType model.SessionType
	Subject     string
	Topic       string
	Difficulty  model.Difficulty
	Questions   []model.Question
}

// AnswerQuestion records or overwrites the selected option for a question.
// Dropped silently when the question id is not part of the session.
type AnswerQuestion struct {
	QuestionID uuid.UUID
	Answer     model.Choice
}

// GoToQuestion navigates to a question index. Out-of-range indices are
// clamped to the valid range.
type GoToQuestion struct {
	Index int
}

// ToggleFlag flips the review flag on a question, creating a placeholder
// answer with no selection if the question has not been answered yet.
type ToggleFlag struct {
	QuestionID uuid.UUID
}

// PauseSession pauses the timer. Idempotent.
type PauseSession struct{}

// ResumeSession resumes a paused session. Idempotent.
type ResumeSession struct{}

// TickTimer advances the session clock by one second. No-op while paused or
// completed, so a mis-emitted tick can never corrupt state.
type TickTimer struct{}

// CompleteSession finalizes the session: computes the score, freezes the
// clock, and implicitly resumes if paused.
type CompleteSession struct{}

// AbandonSession drops the live session and its local snapshot. The remote
// copy is retained; in-flight remote writes are not cancelled.
type AbandonSession struct{}

func (StartSession) isAction()    {}
func (AnswerQuestion) isAction()  {}
func (GoToQuestion) isAction()    {}
func (ToggleFlag) isAction()      {}
func (PauseSession) isAction()    {}
func (ResumeSession) isAction()   {}
func (TickTimer) isAction()       {}
func (CompleteSession) isAction() {}
func (AbandonSession) isAction()  {}
