package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/peakprep/peakprep-backend/internal/config"
	"github.com/peakprep/peakprep-backend/internal/outbox"
	"github.com/peakprep/peakprep-backend/internal/repository"
)

const (
	ProgressBatchSize    = 50
	ProgressBatchTimeout = 2 * time.Second
	ProgressPollTimeout  = 1 * time.Second
)

// ProgressWorker consumes session_progress_queue and applies current-question
// and elapsed-time updates in bulk. Progress is last-writer-wins, so a batch
// is applied as-is without ordering guarantees.
type ProgressWorker struct {
	pool     *pgxpool.Pool
	sessions *repository.SessionRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewProgressWorker creates a new ProgressWorker.
func NewProgressWorker(pool *pgxpool.Pool, sessions *repository.SessionRepository, rdb *redis.Client, log zerolog.Logger) *ProgressWorker {
	return &ProgressWorker{
		pool:     pool,
		sessions: sessions,
		rdb:      rdb,
		log:      log.With().Str("component", "progress_worker").Logger(),
	}
}

type resolvedProgress struct {
	sessionID uuid.UUID
	op        *outbox.ProgressOp
}

// Start begins the batching worker loop. Call in a goroutine.
func (w *ProgressWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make([]resolvedProgress, 0, ProgressBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ProgressBatchSize || time.Since(lastFlush) >= ProgressBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ProgressPollTimeout, config.WorkerKey.SessionProgressQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var op outbox.ProgressOp
			if err := json.Unmarshal([]byte(item[1]), &op); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			sessionID, ok, err := resolveSessionID(ctx, w.rdb, op.SessionID, op.LocalID)
			if err != nil {
				w.log.Error().Err(err).Str("local_id", op.LocalID).Msg("Resolve error, dropping progress op")
				continue
			}
			if !ok {
				// Session row not created yet; a later op will carry fresher
				// progress anyway, but keep this one around until then.
				w.rdb.RPush(ctx, config.WorkerKey.SessionProgressQueue, item[1])
				continue
			}

			batch = append(batch, resolvedProgress{sessionID: sessionID, op: &op})
		}
	}
}

func (w *ProgressWorker) flushSafe(ctx context.Context, batch []resolvedProgress) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkUpdateProgress(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk progress update failed, using fallback")

		for _, p := range batch {
			if err := w.sessions.UpdateProgress(ctx, p.sessionID, p.op.CurrentQuestion, p.op.TimeSpent); err != nil {
				w.log.Error().Err(err).
					Str("session_id", p.sessionID.String()).
					Msg("single progress update failed, dropping")
			}
		}
	}
}

// bulkUpdateProgress applies the whole batch in one UPDATE via UNNEST.
// time_spent only ever grows; completed rows are untouched.
func (w *ProgressWorker) bulkUpdateProgress(ctx context.Context, batch []resolvedProgress) error {
	n := len(batch)

	ids := make([]uuid.UUID, 0, n)
	positions := make([]int, 0, n)
	times := make([]int, 0, n)

	// Keep only the newest op per session; duplicate ids in one UNNEST
	// update would apply an arbitrary row.
	seen := make(map[uuid.UUID]int, n)
	for _, p := range batch {
		if i, ok := seen[p.sessionID]; ok {
			positions[i] = p.op.CurrentQuestion
			if p.op.TimeSpent > times[i] {
				times[i] = p.op.TimeSpent
			}
			continue
		}
		seen[p.sessionID] = len(ids)
		ids = append(ids, p.sessionID)
		positions = append(positions, p.op.CurrentQuestion)
		times = append(times, p.op.TimeSpent)
	}

	query := `
		UPDATE practice_sessions AS s
		SET current_question = t.current_question,
		    time_spent = GREATEST(s.time_spent, t.time_spent)
		FROM (
			SELECT u.id, u.current_question, u.time_spent
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::int[]
			) AS u (id, current_question, time_spent)
		) AS t
		WHERE s.id = t.id
		  AND s.status = 'IN_PROGRESS'
	`

	_, err := w.pool.Exec(ctx, query, ids, positions, times)
	return err
}
