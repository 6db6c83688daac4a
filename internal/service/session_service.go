package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

// Common session errors.
var (
	ErrSessionNotFound      = errors.New("practice session not found")
	ErrSessionCompleted     = errors.New("practice session already completed")
	ErrQuestionNotInSession = errors.New("question does not belong to this session")
	ErrNoQuestions          = errors.New("no questions match the requested filters")
)

// DefaultQuestionCount is used when a create request omits question_count.
const DefaultQuestionCount = 10

// SessionService handles the stateless REST surface of practice sessions.
// Answer submissions follow the buffer-then-queue pattern: the latest answer
// per question lands in a Redis hash immediately, and a queued op carries it
// to PostgreSQL.
type SessionService struct {
	sessions  *repository.SessionRepository
	questions *repository.QuestionRepository
	answers   *repository.AnswerRepository
	analytics *repository.AnalyticsRepository
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessions *repository.SessionRepository,
	questions *repository.QuestionRepository,
	answers *repository.AnswerRepository,
	analytics *repository.AnalyticsRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessions:  sessions,
		questions: questions,
		answers:   answers,
		analytics: analytics,
		rdb:       rdb,
		log:       log.With().Str("component", "session_service").Logger(),
	}
}

// CreatedSession is the create-session payload: the persisted row plus the
// sampled questions with grading fields stripped.
type CreatedSession struct {
	Session   model.SessionRecord        `json:"session"`
	Questions []model.QuestionForStudent `json:"questions"`
}

// CreateSession samples questions for the requested filters and persists a
// session row. Idempotent on (user, client_ref): retrying a create returns
// the session the first attempt made, with the same question order.
func (s *SessionService) CreateSession(ctx context.Context, userID uuid.UUID, req *model.CreateSessionRequest) (*CreatedSession, error) {
	clientRef := req.ClientRef
	if clientRef == "" {
		clientRef = uuid.New().String()
	}

	count := req.QuestionCount
	if count <= 0 {
		count = DefaultQuestionCount
	}

	sampled, err := s.questions.Sample(ctx, req.TestType, req.Subject, req.Topic, req.Difficulty, count)
	if err != nil {
		return nil, fmt.Errorf("sample questions: %w", err)
	}
	if len(sampled) == 0 {
		return nil, ErrNoQuestions
	}

	questionIDs := make([]uuid.UUID, len(sampled))
	for i := range sampled {
		questionIDs[i] = sampled[i].ID
	}

	record := &model.SessionRecord{
		UserID:      userID,
		ClientRef:   clientRef,
		TestType:    req.TestType,
		SessionType: req.SessionType,
		QuestionIDs: questionIDs,
		StartedAt:   time.Now(),
		Status:      model.SessionStatusInProgress,
	}
	if req.Subject != "" {
		record.Subject = &req.Subject
	}
	if req.Topic != "" {
		record.Topic = &req.Topic
	}
	if req.Difficulty != "" {
		d := req.Difficulty
		record.Difficulty = &d
	}

	err = s.sessions.Create(ctx, record)
	if errors.Is(err, pgx.ErrNoRows) {
		// A previous create with this ref won; serve its row and its
		// question order instead of the fresh sample.
		existing, getErr := s.sessions.GetByUserAndRef(ctx, userID, clientRef)
		if getErr != nil {
			return nil, fmt.Errorf("get existing session: %w", getErr)
		}
		record = existing
		sampled, err = s.questions.ListByIDs(ctx, existing.QuestionIDs)
		if err != nil {
			return nil, fmt.Errorf("load existing questions: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	forStudent := make([]model.QuestionForStudent, len(sampled))
	for i := range sampled {
		forStudent[i] = sampled[i].ForStudent()
	}

	return &CreatedSession{Session: *record, Questions: forStudent}, nil
}

// SubmitAnswer validates ownership and membership, buffers the latest answer
// in Redis and queues the durable write. The caller gets an ack as soon as the
// buffer write lands; the PostgreSQL row follows asynchronously.
func (s *SessionService) SubmitAnswer(ctx context.Context, userID, sessionID uuid.UUID, req *model.SubmitAnswerRequest) error {
	record, err := s.getOwned(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if record.Status != model.SessionStatusInProgress {
		return ErrSessionCompleted
	}

	if !containsID(record.QuestionIDs, req.QuestionID) {
		return ErrQuestionNotInSession
	}

	op := outbox.UpsertAnswerOp{
		SessionID:  sessionID.String(),
		UserID:     userID.String(),
		QuestionID: req.QuestionID.String(),
		TimeSpent:  req.TimeSpent,
		IsFlagged:  req.IsFlagged,
		Confidence: req.Confidence,
	}
	if req.SelectedAnswer != nil {
		sel := string(*req.SelectedAnswer)
		op.Selected = &sel

		question, err := s.questions.GetByID(ctx, req.QuestionID)
		if err != nil {
			return fmt.Errorf("get question: %w", err)
		}
		correct := *req.SelectedAnswer == question.CorrectAnswer
		op.IsCorrect = &correct
	}

	raw, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal answer op: %w", err)
	}

	// Buffer first so complete and review can flush the latest answers into
	// rows synchronously even when the worker has not caught up, then queue
	// the durable write.
	bufferKey := config.CacheKey.SessionAnswersKey(sessionID)
	if err := s.rdb.HSet(ctx, bufferKey, req.QuestionID.String(), raw).Err(); err != nil {
		return fmt.Errorf("buffer answer: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw).Err(); err != nil {
		return fmt.Errorf("queue answer: %w", err)
	}
	return nil
}

// flushBuffered upserts any answers still sitting in the Redis buffer so a
// recompute or review never misses a submit that raced the worker. Best
// effort: the queued op still lands eventually either way.
func (s *SessionService) flushBuffered(ctx context.Context, sessionID uuid.UUID) {
	buffered, err := s.rdb.HGetAll(ctx, config.CacheKey.SessionAnswersKey(sessionID)).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Answer buffer read failed")
		return
	}

	for field, payload := range buffered {
		var op outbox.UpsertAnswerOp
		if err := json.Unmarshal([]byte(payload), &op); err != nil {
			s.log.Warn().Err(err).Str("question_id", field).Msg("Bad buffered answer dropped")
			continue
		}
		questionID, err := uuid.Parse(op.QuestionID)
		if err != nil {
			s.log.Warn().Err(err).Str("question_id", op.QuestionID).Msg("Bad buffered answer dropped")
			continue
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
		if err := s.answers.Upsert(ctx, record); err != nil {
			s.log.Warn().Err(err).Str("question_id", op.QuestionID).Msg("Buffered answer flush failed")
		}
	}
}

// CompleteSession finalizes a session synchronously: the score is recomputed
// from persisted answer rows, never taken from the client. Completing an
// already-completed session returns the stored outcome.
func (s *SessionService) CompleteSession(ctx context.Context, userID, sessionID uuid.UUID, req *model.CompleteSessionRequest) (*model.CompletionResult, error) {
	record, err := s.getOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	// A submit immediately followed by complete may still be in the queue;
	// flush the buffer so the recompute sees it.
	s.flushBuffered(ctx, sessionID)

	result, err := s.sessions.Recompute(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("recompute session: %w", err)
	}

	if record.Status != model.SessionStatusInProgress {
		return result, nil
	}

	if err := s.sessions.Complete(ctx, sessionID, result.Score, req.TotalTimeSpent, time.Now()); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}

	// Aggregates and buffered answers are cleanup concerns, not part of the
	// completion contract.
	if err := s.analytics.Refresh(ctx, userID, record.TestType); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Analytics refresh failed")
	}
	s.rdb.Del(ctx, config.CacheKey.SessionAnswersKey(sessionID))

	return result, nil
}

// GetReview returns a completed (or in-progress) session joined with its full
// questions and persisted answers, in the question order fixed at creation.
func (s *SessionService) GetReview(ctx context.Context, userID, sessionID uuid.UUID) (*model.SessionReview, error) {
	record, err := s.getOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	questions, err := s.questions.ListByIDs(ctx, record.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	// An in-progress review should reflect answers the worker has not
	// persisted yet. The buffer is empty once the session completes.
	if record.Status == model.SessionStatusInProgress {
		s.flushBuffered(ctx, sessionID)
	}

	answerRows, err := s.answers.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	byQuestion := make(map[uuid.UUID]*model.AnswerRecord, len(answerRows))
	for i := range answerRows {
		byQuestion[answerRows[i].QuestionID] = &answerRows[i]
	}

	review := &model.SessionReview{
		Session:   *record,
		Questions: make([]model.ReviewQuestion, 0, len(questions)),
	}
	for i := range questions {
		rq := model.ReviewQuestion{Question: questions[i]}
		if a, ok := byQuestion[questions[i].ID]; ok {
			rq.Answer = a
			if a.SelectedAnswer != nil {
				correct := *a.SelectedAnswer == questions[i].CorrectAnswer
				rq.Correct = &correct
			}
		}
		review.Questions = append(review.Questions, rq)
	}
	return review, nil
}

// ListSessions returns a user's recent sessions, newest first.
func (s *SessionService) ListSessions(ctx context.Context, userID uuid.UUID, limit int) ([]model.SessionRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.sessions.ListByUser(ctx, userID, limit)
}

func (s *SessionService) getOwned(ctx context.Context, userID, sessionID uuid.UUID) (*model.SessionRecord, error) {
	record, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	// Not-found rather than forbidden; session ids of other users should be
	// indistinguishable from nonexistent ones.
	if record.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return record, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
