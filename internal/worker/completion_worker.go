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
	"github.com/peakprep/peakprep-backend/internal/outbox"
	"github.com/peakprep/peakprep-backend/internal/repository"
)

// CompletionWorker consumes complete_sessions_queue and finalizes session
// rows. The score is always recomputed from persisted answer rows; the score
// the client reported is only compared against it for audit.
type CompletionWorker struct {
	sessions  *repository.SessionRepository
	analytics *repository.AnalyticsRepository
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewCompletionWorker creates a new CompletionWorker.
func NewCompletionWorker(sessions *repository.SessionRepository, analytics *repository.AnalyticsRepository, rdb *redis.Client, log zerolog.Logger) *CompletionWorker {
	return &CompletionWorker{
		sessions:  sessions,
		analytics: analytics,
		rdb:       rdb,
		log:       log.With().Str("component", "completion_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *CompletionWorker) Start(ctx context.Context) {
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

func (w *CompletionWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.CompleteSessionsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var op outbox.CompleteOp
	if err := json.Unmarshal([]byte(result[1]), &op); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	switch err := w.finalize(ctx, &op); {
	case errors.Is(err, errSessionNotReady):
		w.rdb.RPush(ctx, config.WorkerKey.CompleteSessionsQueue, result[1])
		time.Sleep(time.Second)
	case err != nil:
		w.log.Error().Err(err).
			Str("local_id", op.LocalID).
			Str("session_id", op.SessionID).
			Msg("Finalize error, retrying in 5s")
		w.rdb.RPush(ctx, config.WorkerKey.CompleteSessionsQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *CompletionWorker) finalize(ctx context.Context, op *outbox.CompleteOp) error {
	sessionID, ok, err := resolveSessionID(ctx, w.rdb, op.SessionID, op.LocalID)
	if err != nil {
		return err
	}
	if !ok {
		return errSessionNotReady
	}

	// The completion op may land before the last debounced answer writes.
	// The answer worker shares the queue ordering from the publisher's
	// flush-then-complete sequence, but cross-queue ordering is not
	// guaranteed, so recompute from whatever rows exist now; a repeated
	// completion converges on the final rows.
	res, err := w.sessions.Recompute(ctx, sessionID)
	if err != nil {
		return err
	}

	if res.Score != op.ClientScore {
		w.log.Warn().
			Str("session_id", sessionID.String()).
			Int("client_score", op.ClientScore).
			Int("server_score", res.Score).
			Msg("Client and server scores disagree")
	}

	finishedAt := time.Unix(op.FinishedAt, 0)
	if err := w.sessions.Complete(ctx, sessionID, res.Score, op.TimeSpent, finishedAt); err != nil {
		return err
	}

	// Analytics refresh and cache cleanup are best effort.
	record, err := w.sessions.GetByID(ctx, sessionID)
	if err == nil {
		if err := w.analytics.Refresh(ctx, record.UserID, record.TestType); err != nil {
			w.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Analytics refresh failed")
		}
	}
	w.rdb.Del(ctx, config.CacheKey.SessionAnswersKey(sessionID))

	if userID, err := uuid.Parse(op.UserID); err == nil {
		outbox.PublishEvent(ctx, w.rdb, userID, outbox.Event{
			Type:      outbox.EventSessionCompleted,
			LocalID:   op.LocalID,
			SessionID: sessionID.String(),
			Result:    res,
		})
	}
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *CompletionWorker) drain(ctx context.Context) {
	drained := 0
	requeued := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.CompleteSessionsQueue).Result()
		if err != nil {
			break
		}

		var op outbox.CompleteOp
		if err := json.Unmarshal([]byte(result), &op); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		switch err := w.finalize(ctx, &op); {
		case errors.Is(err, errSessionNotReady):
			w.rdb.RPush(ctx, config.WorkerKey.CompleteSessionsQueue, result)
			requeued++
			if requeued > 10 {
				return
			}
		case err != nil:
			w.log.Error().Err(err).Msg("Drain finalize error")
			w.rdb.RPush(ctx, config.WorkerKey.CompleteSessionsQueue, result)
			return
		default:
			drained++
		}
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
