package model

import (
	"testing"

	"github.com/google/uuid"
)

func TestScorePercent(t *testing.T) {
	tests := []struct {
		name     string
		correct  int
		answered int
		want     int
	}{
		{"NothingAnswered", 0, 0, 0},
		{"AllCorrect", 10, 10, 100},
		{"AllWrong", 0, 10, 0},
		{"Half", 5, 10, 50},
		{"RoundsUp", 2, 3, 67},
		{"RoundsDown", 1, 3, 33},
		{"SingleCorrect", 1, 1, 100},
		{"NegativeAnsweredIsZero", 0, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScorePercent(tt.correct, tt.answered); got != tt.want {
				t.Errorf("ScorePercent(%d, %d) = %d, want %d", tt.correct, tt.answered, got, tt.want)
			}
		})
	}
}

func TestSessionCounts(t *testing.T) {
	qs := []Question{
		{ID: uuid.New(), CorrectAnswer: ChoiceA},
		{ID: uuid.New(), CorrectAnswer: ChoiceB},
		{ID: uuid.New(), CorrectAnswer: ChoiceC},
	}

	selA := ChoiceA
	selD := ChoiceD
	s := &PracticeSession{
		Questions: qs,
		Answers: map[uuid.UUID]*UserAnswer{
			qs[0].ID: {QuestionID: qs[0].ID, SelectedAnswer: &selA}, // correct
			qs[1].ID: {QuestionID: qs[1].ID, SelectedAnswer: &selD}, // wrong
			qs[2].ID: {QuestionID: qs[2].ID, IsFlagged: true},       // flagged only
		},
	}

	if got := s.AnsweredCount(); got != 2 {
		t.Errorf("AnsweredCount() = %d, want 2 (flag placeholders do not count)", got)
	}
	if got := s.CorrectCount(); got != 1 {
		t.Errorf("CorrectCount() = %d, want 1", got)
	}
	if got := ScorePercent(s.CorrectCount(), s.AnsweredCount()); got != 50 {
		t.Errorf("score = %d, want 50", got)
	}
}
