package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"doubtdesk/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	UserKeyPrefix  = "user:%d"
	DoubtKeyPrefix = "doubt:%d"
	LeaderboardKey = "leaderboard"
)

const (
	UserTTL        = 5 * time.Minute
	DoubtTTL       = 10 * time.Minute
	LeaderboardTTL = 30 * time.Second

	// generationTTL outlives any single cache fill.
	generationTTL = time.Hour
)

var errStaleFill = errors.New("cache: key invalidated during fill")

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func DoubtKey(doubtID uint) string {
	return fmt.Sprintf(DoubtKeyPrefix, doubtID)
}

func generationKey(key string) string {
	return key + ":gen"
}

// Invalidate removes the given keys and bumps their generations so that
// fills started before the call are discarded.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		for _, key := range keys {
			genKey := generationKey(key)
			pipe.Incr(ctx, genKey)
			pipe.Expire(ctx, genKey, generationTTL)
		}
		return nil
	})
	if err != nil {
		observability.Logger.WarnContext(ctx, "cache invalidate failed",
			slog.Any("keys", keys), slog.String("error", err.Error()))
	}
}
