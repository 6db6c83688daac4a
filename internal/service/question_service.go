package service

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
	"github.com/peakprep/peakprep-backend/internal/repository"
	"github.com/peakprep/peakprep-backend/internal/response"
)

// ErrQuestionNotFound is returned when a question id has no row.
var ErrQuestionNotFound = errors.New("question not found")

// topicsCacheTTL bounds staleness of the topic catalog. Topics change only
// when questions are ingested.
const topicsCacheTTL = 10 * time.Minute

// QuestionService handles the question catalog.
type QuestionService struct {
	questions *repository.QuestionRepository
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questions *repository.QuestionRepository, rdb *redis.Client, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		questions: questions,
		rdb:       rdb,
		log:       log.With().Str("component", "question_service").Logger(),
	}
}

// Fetch samples random questions matching the filters, with grading fields
// stripped. Fewer than count may come back when the bank is thin; the caller
// decides whether that is acceptable.
func (s *QuestionService) Fetch(ctx context.Context, testType model.TestType, subject, topic string, difficulty model.Difficulty, count int) ([]model.QuestionForStudent, error) {
	if count <= 0 {
		count = DefaultQuestionCount
	}
	sampled, err := s.questions.Sample(ctx, testType, subject, topic, difficulty, count)
	if err != nil {
		return nil, err
	}
	if len(sampled) == 0 {
		return nil, ErrNoQuestions
	}

	forStudent := make([]model.QuestionForStudent, len(sampled))
	for i := range sampled {
		forStudent[i] = sampled[i].ForStudent()
	}
	return forStudent, nil
}

// Topics lists distinct topics with question counts, cached in Redis.
func (s *QuestionService) Topics(ctx context.Context, testType model.TestType, subject string) ([]model.TopicCount, error) {
	cacheKey := config.CacheKey.TopicsKey(string(testType), subject)

	if raw, err := s.rdb.Get(ctx, cacheKey).Result(); err == nil {
		var cached []model.TopicCount
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached, nil
		}
	}

	topics, err := s.questions.Topics(ctx, testType, subject)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(topics); err == nil {
		if err := s.rdb.Set(ctx, cacheKey, raw, topicsCacheTTL).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Topic cache write failed")
		}
	}
	return topics, nil
}

// Get retrieves one question including grading fields, for the admin console.
func (s *QuestionService) Get(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q, err := s.questions.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	return q, err
}

// Create adds a single question and invalidates the topic cache.
func (s *QuestionService) Create(ctx context.Context, req *model.CreateQuestionRequest) (*model.Question, error) {
	q, err := s.questions.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.invalidateTopics(ctx, req.TestType, req.Subject)
	return q, nil
}

// Update replaces a question's fields.
func (s *QuestionService) Update(ctx context.Context, id uuid.UUID, req *model.CreateQuestionRequest) error {
	if err := s.questions.Update(ctx, id, req); err != nil {
		return err
	}
	s.invalidateTopics(ctx, req.TestType, req.Subject)
	return nil
}

// Delete removes a question. Sessions that referenced it keep working; review
// silently skips the missing question.
func (s *QuestionService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.questions.Delete(ctx, id)
}

// List retrieves paginated questions for the admin console.
func (s *QuestionService) List(ctx context.Context, testType model.TestType, page, perPage int) ([]model.Question, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	questions, total, err := s.questions.List(ctx, testType, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	if questions == nil {
		questions = []model.Question{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: (int(total) + perPage - 1) / perPage,
	}
	return questions, pagination, nil
}

func (s *QuestionService) invalidateTopics(ctx context.Context, testType model.TestType, subject string) {
	s.rdb.Del(ctx,
		config.CacheKey.TopicsKey(string(testType), ""),
		config.CacheKey.TopicsKey(string(testType), subject))
}
