package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/peakprep/peakprep-backend/internal/config"
	"github.com/peakprep/peakprep-backend/internal/model"
)

// Publisher implements engine.Outbox over Redis list queues. Enqueue failures
// are logged and surfaced as save_failed events; they never propagate to the
// engine: local truth wins, the queue is only the mirror.
type Publisher struct {
	rdb *redis.Client
	log zerolog.Logger
	deb *Debouncer
}

// NewPublisher creates a publisher with the given answer debounce window.
func NewPublisher(rdb *redis.Client, log zerolog.Logger, answerWindow time.Duration) *Publisher {
	p := &Publisher{
		rdb: rdb,
		log: log.With().Str("component", "outbox").Logger(),
	}
	p.deb = NewDebouncer(answerWindow, p.enqueueAnswer)
	return p
}

// Close flushes pending answer writes.
func (p *Publisher) Close() {
	p.deb.Stop()
}

func (p *Publisher) SessionStarted(ctx context.Context, s *model.PracticeSession) {
	qids := make([]string, len(s.Questions))
	for i := range s.Questions {
		qids[i] = s.Questions[i].ID.String()
	}
	op := CreateSessionOp{
		LocalID:     s.LocalID,
		UserID:      s.UserID.String(),
		TestType:    string(s.TestType),
		SessionType: string(s.SessionType),
		Subject:     s.Subject,
		Topic:       s.Topic,
		Difficulty:  string(s.Difficulty),
		QuestionIDs: qids,
		StartedAt:   s.StartTime.Unix(),
	}
	p.enqueue(ctx, config.WorkerKey.CreateSessionsQueue, op, s.UserID, s.LocalID, "")
}

func (p *Publisher) AnswerSaved(ctx context.Context, s *model.PracticeSession, a model.UserAnswer, isCorrect *bool) {
	var sel *string
	if a.SelectedAnswer != nil {
		v := string(*a.SelectedAnswer)
		sel = &v
	}
	op := UpsertAnswerOp{
		UserID:     s.UserID.String(),
		QuestionID: a.QuestionID.String(),
		Selected:   sel,
		TimeSpent:  a.TimeSpent,
		IsFlagged:  a.IsFlagged,
		Confidence: a.Confidence,
		IsCorrect:  isCorrect,
	}
	if s.ServerSessionID != nil {
		op.SessionID = s.ServerSessionID.String()
	} else {
		op.LocalID = s.LocalID
	}
	p.deb.Submit(op)
}

func (p *Publisher) ProgressMoved(ctx context.Context, s *model.PracticeSession) {
	op := ProgressOp{
		UserID:          s.UserID.String(),
		CurrentQuestion: s.CurrentQuestion,
		TimeSpent:       s.SessionTime,
	}
	if s.ServerSessionID != nil {
		op.SessionID = s.ServerSessionID.String()
	} else {
		op.LocalID = s.LocalID
	}
	p.enqueue(ctx, config.WorkerKey.SessionProgressQueue, op, s.UserID, s.LocalID, "")
}

func (p *Publisher) SessionCompleted(ctx context.Context, s *model.PracticeSession) {
	// Make sure every coalescing answer reaches the queue before the
	// completion op so the recompute sees the full picture.
	p.deb.Flush()

	score := 0
	if s.Score != nil {
		score = *s.Score
	}
	finished := time.Now().Unix()
	if s.EndTime != nil {
		finished = s.EndTime.Unix()
	}
	op := CompleteOp{
		UserID:      s.UserID.String(),
		ClientScore: score,
		TimeSpent:   s.SessionTime,
		FinishedAt:  finished,
	}
	if s.ServerSessionID != nil {
		op.SessionID = s.ServerSessionID.String()
	} else {
		op.LocalID = s.LocalID
	}
	p.enqueue(ctx, config.WorkerKey.CompleteSessionsQueue, op, s.UserID, s.LocalID, "")
}

// enqueueAnswer is the debouncer's fire target. The originating request
// context is long gone when the window elapses.
func (p *Publisher) enqueueAnswer(op UpsertAnswerOp) {
	ctx := context.Background()
	userID, err := uuid.Parse(op.UserID)
	if err != nil {
		p.log.Error().Str("user_id", op.UserID).Msg("Invalid user id on answer op")
		return
	}
	p.enqueue(ctx, config.WorkerKey.PersistAnswersQueue, op, userID, op.LocalID, op.QuestionID)
}

func (p *Publisher) enqueue(ctx context.Context, queue string, op any, userID uuid.UUID, localID, questionID string) {
	raw, err := json.Marshal(op)
	if err != nil {
		p.log.Error().Err(err).Str("queue", queue).Msg("Marshal op failed")
		return
	}
	if err := p.rdb.RPush(ctx, queue, raw).Err(); err != nil {
		p.log.Warn().Err(err).Str("queue", queue).Msg("Enqueue failed, continuing locally")
		PublishEvent(ctx, p.rdb, userID, Event{
			Type:       EventSaveFailed,
			LocalID:    localID,
			QuestionID: questionID,
			Detail:     "could not queue save, progress is kept locally",
		})
	}
}
