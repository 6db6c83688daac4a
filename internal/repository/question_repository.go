package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peakprep/peakprep-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, test_type, subject, topic, difficulty, question_text, passage,
	 image_urls, option_a, option_b, option_c, option_d, correct_answer, explanation,
	 time_allocated, created_at`

func scanQuestion(row interface{ Scan(...any) error }) (*model.Question, error) {
	q := &model.Question{}
	err := row.Scan(&q.ID, &q.TestType, &q.Subject, &q.Topic, &q.Difficulty,
		&q.QuestionText, &q.Passage, &q.ImageURLs,
		&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
		&q.CorrectAnswer, &q.Explanation, &q.TimeAllocated, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// GetByID retrieves a single question.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	return scanQuestion(row)
}

// ListByIDs retrieves questions for the given ids, returned in the order of
// ids. Missing ids are silently skipped (a deleted question must not break
// session review).
func (r *QuestionRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]model.Question, len(ids))
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		byID[q.ID] = *q
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ordered := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}
	return ordered, nil
}

// Sample retrieves up to count random questions matching the filters. May
// return fewer than requested; the caller decides how to cope.
func (r *QuestionRepository) Sample(ctx context.Context, testType model.TestType, subject, topic string, difficulty model.Difficulty, count int) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE test_type = $1`
	args := []any{testType}

	if subject != "" {
		args = append(args, subject)
		query += ` AND subject = $2`
	}
	if topic != "" {
		args = append(args, topic)
		query += fmt.Sprintf(" AND topic = $%d", len(args))
	}
	if difficulty != "" {
		args = append(args, difficulty)
		query += fmt.Sprintf(" AND difficulty = $%d", len(args))
	}
	args = append(args, count)
	query += fmt.Sprintf(" ORDER BY random() LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// Topics lists distinct topics with question counts for a test type and
// optional subject.
func (r *QuestionRepository) Topics(ctx context.Context, testType model.TestType, subject string) ([]model.TopicCount, error) {
	query := `SELECT topic, COUNT(*) FROM questions WHERE test_type = $1`
	args := []any{testType}
	if subject != "" {
		args = append(args, subject)
		query += ` AND subject = $2`
	}
	query += ` GROUP BY topic ORDER BY topic`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []model.TopicCount
	for rows.Next() {
		var t model.TopicCount
		if err := rows.Scan(&t.Topic, &t.QuestionCount); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// Create inserts a question and returns its generated id.
func (r *QuestionRepository) Create(ctx context.Context, req *model.CreateQuestionRequest) (*model.Question, error) {
	timeAllocated := req.TimeAllocated
	if timeAllocated == 0 {
		timeAllocated = 90
	}
	q := &model.Question{
		TestType:      req.TestType,
		Subject:       req.Subject,
		Topic:         req.Topic,
		Difficulty:    req.Difficulty,
		QuestionText:  req.QuestionText,
		Passage:       req.Passage,
		ImageURLs:     req.ImageURLs,
		OptionA:       req.OptionA,
		OptionB:       req.OptionB,
		OptionC:       req.OptionC,
		OptionD:       req.OptionD,
		CorrectAnswer: req.CorrectAnswer,
		Explanation:   req.Explanation,
		TimeAllocated: timeAllocated,
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO questions (test_type, subject, topic, difficulty, question_text, passage,
		 image_urls, option_a, option_b, option_c, option_d, correct_answer, explanation, time_allocated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id, created_at`,
		q.TestType, q.Subject, q.Topic, q.Difficulty, q.QuestionText, q.Passage,
		q.ImageURLs, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectAnswer,
		q.Explanation, q.TimeAllocated,
	).Scan(&q.ID, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Update replaces all mutable fields of a question.
func (r *QuestionRepository) Update(ctx context.Context, id uuid.UUID, req *model.CreateQuestionRequest) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE questions SET test_type = $1, subject = $2, topic = $3, difficulty = $4,
		 question_text = $5, passage = $6, image_urls = $7, option_a = $8, option_b = $9,
		 option_c = $10, option_d = $11, correct_answer = $12, explanation = $13, time_allocated = $14
		 WHERE id = $15`,
		req.TestType, req.Subject, req.Topic, req.Difficulty, req.QuestionText, req.Passage,
		req.ImageURLs, req.OptionA, req.OptionB, req.OptionC, req.OptionD, req.CorrectAnswer,
		req.Explanation, req.TimeAllocated, id)
	return err
}

// Delete removes a question.
func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	return err
}

// List retrieves paginated questions for the admin console, newest first.
func (r *QuestionRepository) List(ctx context.Context, testType model.TestType, page, perPage int) ([]model.Question, int64, error) {
	baseQuery := ` FROM questions WHERE test_type = $1`

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+baseQuery, testType).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+baseQuery+` ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		testType, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, 0, err
		}
		questions = append(questions, *q)
	}
	return questions, total, rows.Err()
}
