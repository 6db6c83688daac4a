package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserLoginKey returns the cache key holding a user's active login JTI.
func (r *CacheKeyStruct) UserLoginKey(userID uuid.UUID) string {
	return fmt.Sprintf("login:%s", userID)
}

// PracticeSnapshotKey returns the single durable slot for a user's live
// practice session snapshot.
func (r *CacheKeyStruct) PracticeSnapshotKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:practice:snapshot", userID)
}

// SessionRemoteIDKey maps a local session id to the persisted session row id.
func (r *CacheKeyStruct) SessionRemoteIDKey(localID string) string {
	return fmt.Sprintf("practice:local:%s:session_id", localID)
}

// SessionAnswersKey returns the hash buffering a session's latest answers.
func (r *CacheKeyStruct) SessionAnswersKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("practice:session:%s:answers", sessionID)
}

// TopicsKey returns the cache key for the topic listing of a test/subject.
func (r *CacheKeyStruct) TopicsKey(testType, subject string) string {
	if subject == "" {
		return fmt.Sprintf("topics:%s", testType)
	}
	return fmt.Sprintf("topics:%s:%s", testType, subject)
}

// PracticeEventsChannel returns the Pub/Sub channel carrying sync events
// (session_created, answer_saved, save_failed, session_completed) for a user.
func (r *CacheKeyStruct) PracticeEventsChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:practice:events", userID)
}

var CacheKey = NewCacheKeyStruct()
