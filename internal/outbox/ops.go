// Package outbox turns engine state transitions into queued, idempotent
// remote operations. The publisher enqueues onto Redis lists; the workers in
// internal/worker drain them into PostgreSQL with their own retry policy.
package outbox

// CreateSessionOp requests creation of a practice_sessions row for a locally
// started session. Idempotent on (user_id, local_id).
type CreateSessionOp struct {
	LocalID     string   `json:"local_id"`
	UserID      string   `json:"user_id"`
	TestType    string   `json:"test_type"`
	SessionType string   `json:"session_type"`
	Subject     string   `json:"subject,omitempty"`
	Topic       string   `json:"topic,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty"`
	QuestionIDs []string `json:"question_ids"`
	StartedAt   int64    `json:"started_at"`
}

// UpsertAnswerOp mirrors one answer. Exactly one of SessionID (remote row id,
// known on the REST path) or LocalID (WS/engine path, resolved by the worker)
// is set. Idempotent on (session, question).
type UpsertAnswerOp struct {
	SessionID  string  `json:"session_id,omitempty"`
	LocalID    string  `json:"local_id,omitempty"`
	UserID     string  `json:"user_id"`
	QuestionID string  `json:"question_id"`
	Selected   *string `json:"selected_answer,omitempty"`
	TimeSpent  int     `json:"time_spent"`
	IsFlagged  bool    `json:"is_flagged"`
	Confidence *int    `json:"confidence,omitempty"`
	IsCorrect  *bool   `json:"is_correct,omitempty"`
}

// ProgressOp pushes the current question index and elapsed time. Last-writer-
// wins; stale delivery is acceptable.
type ProgressOp struct {
	SessionID       string `json:"session_id,omitempty"`
	LocalID         string `json:"local_id,omitempty"`
	UserID          string `json:"user_id"`
	CurrentQuestion int    `json:"current_question"`
	TimeSpent       int    `json:"time_spent"`
}

// CompleteOp requests remote finalization. ClientScore is what the engine
// computed locally; the worker recomputes authoritatively from persisted rows
// and logs any divergence for audit.
type CompleteOp struct {
	SessionID   string `json:"session_id,omitempty"`
	LocalID     string `json:"local_id,omitempty"`
	UserID      string `json:"user_id"`
	ClientScore int    `json:"client_score"`
	TimeSpent   int    `json:"time_spent"`
	FinishedAt  int64  `json:"finished_at"`
}
