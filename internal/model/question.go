package model

import (
	"time"

	"github.com/google/uuid"
)

// TestType enumerates the supported standardized tests.
type TestType string

const (
	TestTypeSHSAT TestType = "SHSAT"
	TestTypeSSAT  TestType = "SSAT"
	TestTypeISEE  TestType = "ISEE"
	TestTypeHSPT  TestType = "HSPT"
	TestTypeTACHS TestType = "TACHS"
)

// Difficulty enumerates question difficulty levels.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Choice is one of the four answer options.
type Choice string

const (
	ChoiceA Choice = "A"
	ChoiceB Choice = "B"
	ChoiceC Choice = "C"
	ChoiceD Choice = "D"
)

// Valid reports whether c is one of A-D.
func (c Choice) Valid() bool {
	switch c {
	case ChoiceA, ChoiceB, ChoiceC, ChoiceD:
		return true
	}
	return false
}

// Question is an immutable test item. Read-only to the session engine.
type Question struct {
	ID            uuid.UUID  `json:"id"`
	TestType      TestType   `json:"test_type"`
	Subject       string     `json:"subject"`
	Topic         string     `json:"topic"`
	Difficulty    Difficulty `json:"difficulty"`
	QuestionText  string     `json:"question_text"`
	Passage       *string    `json:"passage,omitempty"`
	ImageURLs     []string   `json:"image_urls,omitempty"`
	OptionA       string     `json:"option_a"`
	OptionB       string     `json:"option_b"`
	OptionC       string     `json:"option_c"`
	OptionD       string     `json:"option_d"`
	CorrectAnswer Choice     `json:"correct_answer,omitempty"`
	Explanation   string     `json:"explanation,omitempty"`
	TimeAllocated int        `json:"time_allocated"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Option returns the option text for a choice, or "" for an invalid choice.
func (q *Question) Option(c Choice) string {
	switch c {
	case ChoiceA:
		return q.OptionA
	case ChoiceB:
		return q.OptionB
	case ChoiceC:
		return q.OptionC
	case ChoiceD:
		return q.OptionD
	}
	return ""
}

// QuestionForStudent is a question stripped of the correct answer and
// explanation, sent to clients while a session is in progress.
type QuestionForStudent struct {
	ID            uuid.UUID  `json:"id"`
	TestType      TestType   `json:"test_type"`
	Subject       string     `json:"subject"`
	Topic         string     `json:"topic"`
	Difficulty    Difficulty `json:"difficulty"`
	QuestionText  string     `json:"question_text"`
	Passage       *string    `json:"passage,omitempty"`
	ImageURLs     []string   `json:"image_urls,omitempty"`
	OptionA       string     `json:"option_a"`
	OptionB       string     `json:"option_b"`
	OptionC       string     `json:"option_c"`
	OptionD       string     `json:"option_d"`
	TimeAllocated int        `json:"time_allocated"`
}

// ForStudent strips grading fields from a question.
func (q *Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:            q.ID,
		TestType:      q.TestType,
		Subject:       q.Subject,
		Topic:         q.Topic,
		Difficulty:    q.Difficulty,
		QuestionText:  q.QuestionText,
		Passage:       q.Passage,
		ImageURLs:     q.ImageURLs,
		OptionA:       q.OptionA,
		OptionB:       q.OptionB,
		OptionC:       q.OptionC,
		OptionD:       q.OptionD,
		TimeAllocated: q.TimeAllocated,
	}
}

// CreateQuestionRequest is the payload for adding a single question.
type CreateQuestionRequest struct {
	TestType      TestType   `json:"test_type" binding:"required,oneof=SHSAT SSAT ISEE HSPT TACHS"`
	Subject       string     `json:"subject" binding:"required,min=1,max=100"`
	Topic         string     `json:"topic" binding:"required,min=1,max=100"`
	Difficulty    Difficulty `json:"difficulty" binding:"required,oneof=Easy Medium Hard"`
	QuestionText  string     `json:"question_text" binding:"required,min=1,max=5000"`
	Passage       *string    `json:"passage" binding:"omitempty,max=20000"`
	ImageURLs     []string   `json:"image_urls" binding:"omitempty,dive,url"`
	OptionA       string     `json:"option_a" binding:"required,max=2000"`
	OptionB       string     `json:"option_b" binding:"required,max=2000"`
	OptionC       string     `json:"option_c" binding:"required,max=2000"`
	OptionD       string     `json:"option_d" binding:"required,max=2000"`
	CorrectAnswer Choice     `json:"correct_answer" binding:"required,oneof=A B C D"`
	Explanation   string     `json:"explanation" binding:"omitempty,max=5000"`
	TimeAllocated int        `json:"time_allocated" binding:"omitempty,min=10,max=600"`
}

// IngestQuestionsRequest is the payload for LLM-backed bulk ingestion.
type IngestQuestionsRequest struct {
	TestType TestType `json:"test_type" binding:"required,oneof=SHSAT SSAT ISEE HSPT TACHS"`
	Subject  string   `json:"subject" binding:"required,min=1,max=100"`
	RawText  string   `json:"raw_text" binding:"required,min=20"`
}

// TopicCount is one entry of the get-topics listing.
type TopicCount struct {
	Topic         string `json:"topic"`
	QuestionCount int    `json:"question_count"`
}
