package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peakprep/peakprep-backend/internal/model"
)

// AnswerRepository handles user answer data access.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert creates or updates the answer row for (session, question). Repeating
// the same write produces the same stored result, never a duplicate row.
// time_spent only ever grows.
func (r *AnswerRepository) Upsert(ctx context.Context, a *model.AnswerRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_answers
		 (session_id, question_id, selected_answer, time_spent, is_flagged, confidence, is_correct)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET selected_answer = EXCLUDED.selected_answer,
		     time_spent = GREATEST(user_answers.time_spent, EXCLUDED.time_spent),
		     is_flagged = EXCLUDED.is_flagged,
		     confidence = EXCLUDED.confidence,
		     is_correct = EXCLUDED.is_correct,
		     updated_at = NOW()`,
		a.SessionID, a.QuestionID, a.SelectedAnswer, a.TimeSpent, a.IsFlagged,
		a.Confidence, a.IsCorrect)
	return err
}

// ListBySession retrieves all answer rows of a session.
func (r *AnswerRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.AnswerRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, question_id, selected_answer, time_spent, is_flagged,
		        confidence, is_correct, updated_at
		 FROM user_answers WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.AnswerRecord
	for rows.Next() {
		var a model.AnswerRecord
		if err := rows.Scan(&a.SessionID, &a.QuestionID, &a.SelectedAnswer, &a.TimeSpent,
			&a.IsFlagged, &a.Confidence, &a.IsCorrect, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
