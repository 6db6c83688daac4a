package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/peakprep/peakprep-backend/internal/config"
	"github.com/peakprep/peakprep-backend/internal/model"
	"github.com/peakprep/peakprep-backend/internal/outbox"
	"github.com/peakprep/peakprep-backend/internal/repository"
)

// AnswerWorker consumes persist_answers_queue and UPSERTs answer rows.
// Repeated delivery of the same op is harmless: the upsert converges on the
// same stored row either way.
type AnswerWorker struct {
	answers *repository.AnswerRepository
	rdb     *redis.Client
	log     zerolog.Logger
}

// NewAnswerWorker creates a new AnswerWorker.
func NewAnswerWorker(answers *repository.AnswerRepository, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	return &AnswerWorker{
		answers: answers,
		rdb:     rdb,
		log:     log.With().Str("component", "answer_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AnswerWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var op outbox.UpsertAnswerOp
	if err := json.Unmarshal([]byte(result[1]), &op); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	switch err := w.persistAnswer(ctx, &op); {
	case errors.Is(err, errSessionNotReady):
		// The create has not landed yet. Requeue and give it a moment.
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		time.Sleep(time.Second)
	case err != nil:
		w.log.Error().Err(err).
			Str("question_id", op.QuestionID).
			Str("local_id", op.LocalID).
			Msg("Persist error, retrying in 5s")
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		w.notify(ctx, &op, outbox.EventSaveFailed, err.Error())
		time.Sleep(5 * time.Second)
	default:
		w.notify(ctx, &op, outbox.EventAnswerSaved, "")
	}
}

// errSessionNotReady marks ops that arrived before their session row exists.
var errSessionNotReady = errors.New("session row not created yet")

func (w *AnswerWorker) persistAnswer(ctx context.Context, op *outbox.UpsertAnswerOp) error {
	sessionID, ok, err := resolveSessionID(ctx, w.rdb, op.SessionID, op.LocalID)
	if err != nil {
		return err
	}
	if !ok {
		return errSessionNotReady
	}

	questionID, err := uuid.Parse(op.QuestionID)
	if err != nil {
		return err
	}

	record := &model.AnswerRecord{
		SessionID:  sessionID,
		QuestionID: questionID,
		TimeSpent:  op.TimeSpent,
		IsFlagged:  op.IsFlagged,
		Confidence: op.Confidence,
		IsCorrect:  op.IsCorrect,
	}
	if op.Selected != nil {
		c := model.Choice(*op.Selected)
		record.SelectedAnswer = &c
	}

	return w.answers.Upsert(ctx, record)
}

func (w *AnswerWorker) notify(ctx context.Context, op *outbox.UpsertAnswerOp, eventType, detail string) {
	userID, err := uuid.Parse(op.UserID)
	if err != nil {
		return
	}
	outbox.PublishEvent(ctx, w.rdb, userID, outbox.Event{
		Type:       eventType,
		LocalID:    op.LocalID,
		SessionID:  op.SessionID,
		QuestionID: op.QuestionID,
		Detail:     detail,
	})
}

// drain processes all remaining items in the queue before shutdown. Ops whose
// session row still does not exist go back on the queue for the next run.
func (w *AnswerWorker) drain(ctx context.Context) {
	drained := 0
	requeued := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		var op outbox.UpsertAnswerOp
		if err := json.Unmarshal([]byte(result), &op); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		switch err := w.persistAnswer(ctx, &op); {
		case errors.Is(err, errSessionNotReady):
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result)
			requeued++
			if requeued > 10 {
				return
			}
		case err != nil:
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result)
			return
		default:
			drained++
		}
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
