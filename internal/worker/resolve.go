package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/peakprep/peakprep-backend/internal/config"
)

// resolveSessionID turns an op's session reference into the persisted row id.
// Ops from the REST path carry the row id directly; ops from a live engine
// carry the local id, mapped by the session worker once the create lands.
// ok=false means the create has not landed yet and the op should be requeued.
func resolveSessionID(ctx context.Context, rdb *redis.Client, sessionID, localID string) (uuid.UUID, bool, error) {
	if sessionID != "" {
		id, err := uuid.Parse(sessionID)
		if err != nil {
			return uuid.Nil, false, err
		}
		return id, true, nil
	}

	val, err := rdb.Get(ctx, config.CacheKey.SessionRemoteIDKey(localID)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}
