package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionType enumerates the practice session modes.
type SessionType string

const (
	SessionTypeFullTest        SessionType = "full_test"
	SessionTypeSubjectPractice SessionType = "subject_practice"
	SessionTypeTopicPractice   SessionType = "topic_practice"
	SessionTypeMixedReview     SessionType = "mixed_review"
)

// SessionStatus enumerates persisted session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// PracticeSession is the live in-memory aggregate owned by the session engine.
// LocalID is a display-only correlation key generated at start; ServerSessionID
// is attached asynchronously once the remote row exists and may stay nil in
// degraded (offline) mode.
type PracticeSession struct {
	LocalID         string                    `json:"local_id"`
	ServerSessionID *uuid.UUID                `json:"server_session_id,omitempty"`
	UserID          uuid.UUID                 `json:"user_id"`
	TestType        TestType                  `json:"test_type"`
	SessionType     SessionType               `json:"session_type"`
	Subject         string                    `json:"subject,omitempty"`
	Topic           string                    `json:"topic,omitempty"`
	Difficulty      Difficulty                `json:"difficulty,omitempty"`
	Questions       []Question                `json:"questions"`
	Answers         map[uuid.UUID]*UserAnswer `json:"answers"`
	CurrentQuestion int                       `json:"current_question"`
	StartTime       time.Time                 `json:"start_time"`
	EndTime         *time.Time                `json:"end_time,omitempty"`
	SessionTime     int                       `json:"session_time"`
	IsPaused        bool                      `json:"is_paused"`
	IsCompleted     bool                      `json:"is_completed"`
	Score           *int                      `json:"score,omitempty"`
}

// Question returns the question with the given id, or nil if it is not part of
// this session.
func (s *PracticeSession) Question(id uuid.UUID) *Question {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i]
		}
	}
	return nil
}

// AnsweredCount returns the number of questions with a selected option.
func (s *PracticeSession) AnsweredCount() int {
	n := 0
	for _, a := range s.Answers {
		if a.Answered() {
			n++
		}
	}
	return n
}

// CorrectCount returns the number of answered questions whose selection
// matches the question's correct answer.
func (s *PracticeSession) CorrectCount() int {
	n := 0
	for _, a := range s.Answers {
		if !a.Answered() {
			continue
		}
		if q := s.Question(a.QuestionID); q != nil && *a.SelectedAnswer == q.CorrectAnswer {
			n++
		}
	}
	return n
}

// SessionRecord is the persisted practice_sessions row. QuestionIDs preserves
// the order fixed at creation; the row outlives the in-memory session and is
// kept for analytics and review.
type SessionRecord struct {
	ID              uuid.UUID     `json:"id"`
	UserID          uuid.UUID     `json:"user_id"`
	ClientRef       string        `json:"client_ref"`
	TestType        TestType      `json:"test_type"`
	SessionType     SessionType   `json:"session_type"`
	Subject         *string       `json:"subject,omitempty"`
	Topic           *string       `json:"topic,omitempty"`
	Difficulty      *Difficulty   `json:"difficulty,omitempty"`
	QuestionIDs     []uuid.UUID   `json:"question_ids"`
	CurrentQuestion int           `json:"current_question"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	TimeSpent       int           `json:"time_spent"`
	Status          SessionStatus `json:"status"`
	Score           *int          `json:"score,omitempty"`
}

// CreateSessionRequest is the payload of the create-session endpoint.
type CreateSessionRequest struct {
	ClientRef     string      `json:"client_ref" binding:"omitempty,max=64"`
	TestType      TestType    `json:"test_type" binding:"required,oneof=SHSAT SSAT ISEE HSPT TACHS"`
	SessionType   SessionType `json:"session_type" binding:"required,oneof=full_test subject_practice topic_practice mixed_review"`
	Subject       string      `json:"subject" binding:"omitempty,max=100"`
	Topic         string      `json:"topic" binding:"omitempty,max=100"`
	Difficulty    Difficulty  `json:"difficulty" binding:"omitempty,oneof=Easy Medium Hard"`
	QuestionCount int         `json:"question_count" binding:"omitempty,min=1,max=200"`
}

// CompleteSessionRequest is the payload of the complete-session endpoint.
type CompleteSessionRequest struct {
	TotalTimeSpent int `json:"total_time_spent" binding:"min=0"`
}

// CompletionResult is the authoritative server-side completion summary,
// recomputed from persisted answer rows only.
type CompletionResult struct {
	Score             int     `json:"score"`
	CorrectAnswers    int     `json:"correct_answers"`
	TotalQuestions    int     `json:"total_questions"`
	TotalAnswered     int     `json:"total_answered"`
	PercentageCorrect float64 `json:"percentage_correct"`
}

// SessionReview is the get-session-review payload: the session row plus every
// question joined with the user's persisted answer.
type SessionReview struct {
	Session   SessionRecord    `json:"session"`
	Questions []ReviewQuestion `json:"questions"`
}

// ReviewQuestion pairs a full question (including correct answer and
// explanation) with the persisted answer, if any.
type ReviewQuestion struct {
	Question Question      `json:"question"`
	Answer   *AnswerRecord `json:"answer,omitempty"`
	Correct  *bool         `json:"correct,omitempty"`
}
