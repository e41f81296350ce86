// README: Cancellation strike counters backed by Redis keys with TTL.
package ban

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const strikeKeyPrefix = "guard:cancels:%d"

type RedisStrikes struct {
	redis *redis.Client
}

func NewRedisStrikes(client *redis.Client) *RedisStrikes {
	return &RedisStrikes{redis: client}
}

func (s *RedisStrikes) Incr(ctx context.Context, userID int64, window time.Duration) (int64, error) {
	key := strikeKey(userID)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		// First strike opens the window; the key expiring resets the count.
		if err := s.redis.Expire(ctx, key, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (s *RedisStrikes) Reset(ctx context.Context, userID int64) error {
	return s.redis.Del(ctx, strikeKey(userID)).Err()
}

func strikeKey(userID int64) string {
	return fmt.Sprintf(strikeKeyPrefix, userID)
}
