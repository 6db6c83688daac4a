package websocket

import (
	"github.com/google/uuid"

	"github.com/peakprep/peakprep-backend/internal/model"
	"github.com/peakprep/peakprep-backend/internal/outbox"
)

// Actions (Client -> Server)

type Action string

const (
	ActionStart    Action = "start"
	ActionAnswer   Action = "answer"
	ActionGoto     Action = "goto"
	ActionFlag     Action = "flag"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionComplete Action = "complete"
	ActionAbandon  Action = "abandon"
	ActionPing     Action = "ping"
)

// RequestPayload is the single client message shape; which fields matter
// depends on Action.
type RequestPayload struct {
	Action Action `json:"action"`

	// start
	TestType      string `json:"test_type,omitempty"`
	SessionType   string `json:"session_type,omitempty"`
	Subject       string `json:"subject,omitempty"`
	Topic         string `json:"topic,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
	QuestionCount int    `json:"question_count,omitempty"`

	// answer, flag
	QID    string `json:"q_id,omitempty"`
	Answer string `json:"ans,omitempty"`

	// goto
	Index int `json:"index,omitempty"`
}

// Events (Server -> Client)

type Event string

const (
	EventState     Event = "state"
	EventRestored  Event = "restored"
	EventCompleted Event = "completed"
	EventSync      Event = "sync"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// SessionView is a live session as sent to the client: questions carry no
// grading fields, and answers reveal only what the user did.
type SessionView struct {
	LocalID         string                     `json:"local_id"`
	ServerSessionID *uuid.UUID                 `json:"server_session_id,omitempty"`
	TestType        model.TestType             `json:"test_type"`
	SessionType     model.SessionType          `json:"session_type"`
	Subject         string                     `json:"subject,omitempty"`
	Topic           string                     `json:"topic,omitempty"`
	Questions       []model.QuestionForStudent `json:"questions"`
	Answers         []model.UserAnswer         `json:"answers"`
	CurrentQuestion int                        `json:"current_question"`
	SessionTime     int                        `json:"session_time"`
	IsPaused        bool                       `json:"is_paused"`
	IsCompleted     bool                       `json:"is_completed"`
	Score           *int                       `json:"score,omitempty"`
}

// NewSessionView strips grading data from a live session. Answer order
// follows question order so the client can render deterministically.
func NewSessionView(s *model.PracticeSession) *SessionView {
	if s == nil {
		return nil
	}
	view := &SessionView{
		LocalID:         s.LocalID,
		ServerSessionID: s.ServerSessionID,
		TestType:        s.TestType,
		SessionType:     s.SessionType,
		Subject:         s.Subject,
		Topic:           s.Topic,
		Questions:       make([]model.QuestionForStudent, len(s.Questions)),
		Answers:         make([]model.UserAnswer, 0, len(s.Answers)),
		CurrentQuestion: s.CurrentQuestion,
		SessionTime:     s.SessionTime,
		IsPaused:        s.IsPaused,
		IsCompleted:     s.IsCompleted,
		Score:           s.Score,
	}
	for i := range s.Questions {
		view.Questions[i] = s.Questions[i].ForStudent()
		if a, ok := s.Answers[s.Questions[i].ID]; ok {
			view.Answers = append(view.Answers, *a)
		}
	}
	return view
}

// StateResponse carries the full session view after every state change.
type StateResponse struct {
	Event   Event        `json:"event"`
	Session *SessionView `json:"session"`
}

// CompletedResponse carries the locally computed outcome. The authoritative
// server recomputation follows as a sync event.
type CompletedResponse struct {
	Event   Event                  `json:"event"`
	Result  model.CompletionResult `json:"result"`
	Session *SessionView           `json:"session"`
}

// SyncResponse forwards a remote-store sync event to the client.
type SyncResponse struct {
	Event  Event        `json:"event"`
	Detail outbox.Event `json:"detail"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
