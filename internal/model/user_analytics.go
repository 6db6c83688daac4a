package model

import (
	"time"

	"github.com/google/uuid"
)

// UserAnalytics is a per-(user, test type, subject) aggregate recomputed from
// completed sessions and their persisted answer rows. Subject is empty for the
// test-type rollup row.
type UserAnalytics struct {
	UserID            uuid.UUID `json:"user_id"`
	TestType          TestType  `json:"test_type"`
	Subject           string    `json:"subject,omitempty"`
	SessionsCompleted int       `json:"sessions_completed"`
	QuestionsAnswered int       `json:"questions_answered"`
	CorrectAnswers    int       `json:"correct_answers"`
	AverageScore      float64   `json:"average_score"`
	TotalTimeSpent    int       `json:"total_time_spent"`
	UpdatedAt         time.Time `json:"updated_at"`
}
