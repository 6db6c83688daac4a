package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peakprep/peakprep-backend/internal/model"
)

// AnalyticsRepository maintains per-user aggregates over completed sessions.
type AnalyticsRepository struct {
	pool *pgxpool.Pool
}

// NewAnalyticsRepository creates a new AnalyticsRepository.
func NewAnalyticsRepository(pool *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{pool: pool}
}

// Refresh recomputes a user's analytics rows for one test type from completed
// sessions and their persisted answers: one rollup row per test type plus one
// row per subject. Safe to repeat; the aggregates are derived wholesale.
func (r *AnalyticsRepository) Refresh(ctx context.Context, userID uuid.UUID, testType model.TestType) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_analytics
		 (user_id, test_type, subject, sessions_completed, questions_answered,
		  correct_answers, average_score, total_time_spent, updated_at)
		 SELECT s.user_id, s.test_type, COALESCE(s.subject, ''),
		        COUNT(*),
		        COALESCE(SUM(ac.answered), 0),
		        COALESCE(SUM(ac.correct), 0),
		        COALESCE(AVG(s.score), 0),
		        COALESCE(SUM(s.time_spent), 0),
		        NOW()
		 FROM practice_sessions s
		 LEFT JOIN LATERAL (
		     SELECT COUNT(*) FILTER (WHERE a.selected_answer IS NOT NULL) AS answered,
		            COUNT(*) FILTER (WHERE a.is_correct) AS correct
		     FROM user_answers a WHERE a.session_id = s.id
		 ) ac ON TRUE
		 WHERE s.user_id = $1 AND s.test_type = $2 AND s.status = $3
		 GROUP BY s.user_id, s.test_type, COALESCE(s.subject, '')
		 ON CONFLICT (user_id, test_type, subject) DO UPDATE
		 SET sessions_completed = EXCLUDED.sessions_completed,
		     questions_answered = EXCLUDED.questions_answered,
		     correct_answers = EXCLUDED.correct_answers,
		     average_score = EXCLUDED.average_score,
		     total_time_spent = EXCLUDED.total_time_spent,
		     updated_at = NOW()`,
		userID, testType, model.SessionStatusCompleted)
	return err
}

// ListByUser retrieves all analytics rows for a user.
func (r *AnalyticsRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.UserAnalytics, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, test_type, subject, sessions_completed, questions_answered,
		        correct_answers, average_score, total_time_spent, updated_at
		 FROM user_analytics WHERE user_id = $1
		 ORDER BY test_type, subject`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []model.UserAnalytics
	for rows.Next() {
		var s model.UserAnalytics
		if err := rows.Scan(&s.UserID, &s.TestType, &s.Subject, &s.SessionsCompleted,
			&s.QuestionsAnswered, &s.CorrectAnswers, &s.AverageScore,
			&s.TotalTimeSpent, &s.UpdatedAt); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
