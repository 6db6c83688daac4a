package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peakprep/peakprep-backend/internal/model"
)

// SessionRepository handles practice session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, user_id, client_ref, test_type, session_type, subject, topic,
	 difficulty, question_ids, current_question, started_at, finished_at, time_spent, status, score`

func scanSession(row interface{ Scan(...any) error }) (*model.SessionRecord, error) {
	s := &model.SessionRecord{}
	err := row.Scan(&s.ID, &s.UserID, &s.ClientRef, &s.TestType, &s.SessionType,
		&s.Subject, &s.Topic, &s.Difficulty, &s.QuestionIDs, &s.CurrentQuestion,
		&s.StartedAt, &s.FinishedAt, &s.TimeSpent, &s.Status, &s.Score)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a session row. Idempotent on (user_id, client_ref): a
// concurrent or repeated create lands on the same row, whose id is returned.
func (r *SessionRepository) Create(ctx context.Context, s *model.SessionRecord) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO practice_sessions
		 (user_id, client_ref, test_type, session_type, subject, topic, difficulty,
		  question_ids, started_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id, client_ref) DO NOTHING
		 RETURNING id, started_at`,
		s.UserID, s.ClientRef, s.TestType, s.SessionType, s.Subject, s.Topic,
		s.Difficulty, s.QuestionIDs, s.StartedAt, model.SessionStatusInProgress,
	).Scan(&s.ID, &s.StartedAt)
	return err
}

// GetByUserAndRef retrieves the session a previous idempotent create landed on.
func (r *SessionRepository) GetByUserAndRef(ctx context.Context, userID uuid.UUID, clientRef string) (*model.SessionRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM practice_sessions
		 WHERE user_id = $1 AND client_ref = $2`, userID, clientRef)
	return scanSession(row)
}

// GetByID retrieves a session by its row id.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.SessionRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM practice_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// ListByUser retrieves a user's sessions, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.SessionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM practice_sessions
		 WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.SessionRecord
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// UpdateProgress records the current question index and elapsed time.
// Last-writer-wins; time_spent never decreases. Completed rows are immune.
func (r *SessionRepository) UpdateProgress(ctx context.Context, id uuid.UUID, currentQuestion, timeSpent int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE practice_sessions
		 SET current_question = $1, time_spent = GREATEST(time_spent, $2)
		 WHERE id = $3 AND status = $4`,
		currentQuestion, timeSpent, id, model.SessionStatusInProgress)
	return err
}

// Recompute derives the completion summary from persisted answer rows only,
// independent of anything the client computed in memory.
func (r *SessionRepository) Recompute(ctx context.Context, id uuid.UUID) (*model.CompletionResult, error) {
	var totalQuestions, answered, correct int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(array_length(s.question_ids, 1), 0),
		        COUNT(a.question_id) FILTER (WHERE a.selected_answer IS NOT NULL),
		        COUNT(a.question_id) FILTER (WHERE a.is_correct)
		 FROM practice_sessions s
		 LEFT JOIN user_answers a ON a.session_id = s.id
		 WHERE s.id = $1
		 GROUP BY s.id`, id,
	).Scan(&totalQuestions, &answered, &correct)
	if err != nil {
		return nil, err
	}

	result := &model.CompletionResult{
		Score:          model.ScorePercent(correct, answered),
		CorrectAnswers: correct,
		TotalQuestions: totalQuestions,
		TotalAnswered:  answered,
	}
	if answered > 0 {
		result.PercentageCorrect = float64(correct) / float64(answered) * 100
	}
	return result, nil
}

// Complete freezes a session row with its final score and time. Idempotent:
// an already-completed row is left untouched.
func (r *SessionRepository) Complete(ctx context.Context, id uuid.UUID, score, timeSpent int, finishedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE practice_sessions
		 SET status = $1, score = $2, time_spent = GREATEST(time_spent, $3), finished_at = $4
		 WHERE id = $5 AND status = $6`,
		model.SessionStatusCompleted, score, timeSpent, finishedAt, id, model.SessionStatusInProgress)
	return err
}
