package model

import (
	"time"

	"github.com/google/uuid"
)

// UserAnswer is the per-question state inside a live practice session.
// SelectedAnswer stays nil until the user picks an option; a flag can exist
// before any selection (flag-before-answer is intentional). SelectedAnswer and
// IsFlagged may change any number of times before completion; TimeSpent only
// increases.
type UserAnswer struct {
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedAnswer *Choice   `json:"selected_answer,omitempty"`
	TimeSpent      int       `json:"time_spent"`
	IsFlagged      bool      `json:"is_flagged"`
	Confidence     *int      `json:"confidence,omitempty"`
}

// Answered reports whether the user has selected an option.
func (a *UserAnswer) Answered() bool {
	return a.SelectedAnswer != nil
}

// AnswerRecord is the persisted user_answers row, one per (session, question).
type AnswerRecord struct {
	SessionID      uuid.UUID `json:"session_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedAnswer *Choice   `json:"selected_answer,omitempty"`
	TimeSpent      int       `json:"time_spent"`
	IsFlagged      bool      `json:"is_flagged"`
	Confidence     *int      `json:"confidence,omitempty"`
	IsCorrect      *bool     `json:"is_correct,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SubmitAnswerRequest is the payload of the submit-answer endpoint.
type SubmitAnswerRequest struct {
	QuestionID     uuid.UUID `json:"question_id" binding:"required"`
	SelectedAnswer *Choice   `json:"selected_answer" binding:"omitempty,oneof=A B C D"`
	TimeSpent      int       `json:"time_spent" binding:"min=0"`
	IsFlagged      bool      `json:"is_flagged"`
	Confidence     *int      `json:"confidence" binding:"omitempty,min=1,max=5"`
}
