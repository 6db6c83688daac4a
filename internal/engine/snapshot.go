package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peakprep/peakprep-backend/internal/model"
)

// SnapshotStore is the single durable slot holding the serialized live
// session. It is overwritten wholesale on every local mutation (last-writer-
// wins, single writer) so a reconnecting client can resume verbatim.
type SnapshotStore interface {
	// Save overwrites the slot with the current session.
	Save(ctx context.Context, s *model.PracticeSession) error
	// Load returns the stored session, or (nil, nil) when the slot is empty.
	Load(ctx context.Context) (*model.PracticeSession, error)
	// Clear empties the slot.
	Clear(ctx context.Context) error
}

// snapshotTTL bounds how long an orphaned in-progress snapshot survives.
const snapshotTTL = 48 * time.Hour

// RedisSnapshotStore keeps the snapshot under a single Redis key.
type RedisSnapshotStore struct {
	rdb *redis.Client
	key string
}

// NewRedisSnapshotStore creates a snapshot store bound to one key.
func NewRedisSnapshotStore(rdb *redis.Client, key string) *RedisSnapshotStore {
	return &RedisSnapshotStore{rdb: rdb, key: key}
}

func (s *RedisSnapshotStore) Save(ctx context.Context, sess *model.PracticeSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.rdb.Set(ctx, s.key, raw, snapshotTTL).Err()
}

func (s *RedisSnapshotStore) Load(ctx context.Context) (*model.PracticeSession, error) {
	raw, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var sess model.PracticeSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &sess, nil
}

func (s *RedisSnapshotStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}
