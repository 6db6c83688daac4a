package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/peakprep/peakprep-backend/internal/config"
	"github.com/peakprep/peakprep-backend/internal/model"
	"github.com/peakprep/peakprep-backend/internal/outbox"
	"github.com/peakprep/peakprep-backend/internal/repository"
)

// remoteIDMappingTTL bounds how long a local id keeps resolving to its row.
// Matches the snapshot lifetime so a restorable session can always sync.
const remoteIDMappingTTL = 48 * time.Hour

// SessionWorker consumes create_sessions_queue and inserts session rows.
// After a create lands it publishes the local-to-remote id mapping so the
// answer and progress workers can resolve ops queued before the id existed.
type SessionWorker struct {
	sessions *repository.SessionRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewSessionWorker creates a new SessionWorker.
func NewSessionWorker(sessions *repository.SessionRepository, rdb *redis.Client, log zerolog.Logger) *SessionWorker {
	return &SessionWorker{
		sessions: sessions,
		rdb:      rdb,
		log:      log.With().Str("component", "session_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *SessionWorker) Start(ctx context.Context) {
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

func (w *SessionWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.CreateSessionsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var op outbox.CreateSessionOp
	if err := json.Unmarshal([]byte(result[1]), &op); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persistCreate(ctx, &op); err != nil {
		w.log.Error().Err(err).
			Str("local_id", op.LocalID).
			Str("user_id", op.UserID).
			Msg("Persist error, retrying in 5s")
		w.rdb.RPush(ctx, config.WorkerKey.CreateSessionsQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *SessionWorker) persistCreate(ctx context.Context, op *outbox.CreateSessionOp) error {
	userID, err := uuid.Parse(op.UserID)
	if err != nil {
		return err
	}

	questionIDs := make([]uuid.UUID, 0, len(op.QuestionIDs))
	for _, raw := range op.QuestionIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return err
		}
		questionIDs = append(questionIDs, id)
	}

	record := &model.SessionRecord{
		UserID:      userID,
		ClientRef:   op.LocalID,
		TestType:    model.TestType(op.TestType),
		SessionType: model.SessionType(op.SessionType),
		QuestionIDs: questionIDs,
		StartedAt:   time.Unix(op.StartedAt, 0),
	}
	if op.Subject != "" {
		record.Subject = &op.Subject
	}
	if op.Topic != "" {
		record.Topic = &op.Topic
	}
	if op.Difficulty != "" {
		d := model.Difficulty(op.Difficulty)
		record.Difficulty = &d
	}

	err = w.sessions.Create(ctx, record)
	if errors.Is(err, pgx.ErrNoRows) {
		// Row already exists for this (user, local id); reuse it.
		existing, getErr := w.sessions.GetByUserAndRef(ctx, userID, op.LocalID)
		if getErr != nil {
			return getErr
		}
		record = existing
	} else if err != nil {
		return err
	}

	if err := w.rdb.Set(ctx,
		config.CacheKey.SessionRemoteIDKey(op.LocalID),
		record.ID.String(), remoteIDMappingTTL).Err(); err != nil {
		return err
	}

	outbox.PublishEvent(ctx, w.rdb, userID, outbox.Event{
		Type:      outbox.EventSessionCreated,
		LocalID:   op.LocalID,
		SessionID: record.ID.String(),
	})
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *SessionWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.CreateSessionsQueue).Result()
		if err != nil {
			break
		}

		var op outbox.CreateSessionOp
		if err := json.Unmarshal([]byte(result), &op); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persistCreate(ctx, &op); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.CreateSessionsQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
