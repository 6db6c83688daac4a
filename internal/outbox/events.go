package outbox

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/peakprep/peakprep-backend/internal/config"
	"github.com/peakprep/peakprep-backend/internal/model"
)

// Event types published on a user's practice events channel.
const (
	EventSessionCreated   = "session_created"
	EventAnswerSaved      = "answer_saved"
	EventSaveFailed       = "save_failed"
	EventSessionCompleted = "session_completed"
)

// Event is a sync notification for the client. Save failures are dismissible
// notices: local progress is never lost, only the remote mirror lagged.
type Event struct {
	Type       string                  `json:"type"`
	LocalID    string                  `json:"local_id,omitempty"`
	SessionID  string                  `json:"session_id,omitempty"`
	QuestionID string                  `json:"question_id,omitempty"`
	Detail     string                  `json:"detail,omitempty"`
	Result     *model.CompletionResult `json:"result,omitempty"`
}

// PublishEvent sends an event on the user's Pub/Sub channel. Best effort:
// a lost event only delays a notice, never state.
func PublishEvent(ctx context.Context, rdb *redis.Client, userID uuid.UUID, ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = rdb.Publish(ctx, config.CacheKey.PracticeEventsChannel(userID), raw).Err()
}
