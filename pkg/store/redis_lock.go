package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisUnlockScript releases a lock only if the caller still holds it,
// avoiding a slow step releasing a lock a later step re-acquired.
// KEYS[1] = lock key
// ARGV[1] = holder token
var redisUnlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock implements RequestLock on Redis, giving the single-caller
// guarantee across engine replicas. Locks carry a TTL so an abandoned step
// cannot wedge its request forever.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLock creates a lock manager. A zero ttl defaults to 30 seconds.
func NewRedisLock(client *redis.Client, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLock{client: client, ttl: ttl}
}

func lockKey(requestID string) string {
	return fmt.Sprintf("spendgate:reqlock:%s", requestID)
}

func (l *RedisLock) Lock(ctx context.Context, requestID string) (string, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, lockKey(requestID), token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis lock: %w", err)
	}
	if !ok {
		return "", ErrLockHeld
	}
	return token, nil
}

func (l *RedisLock) Unlock(ctx context.Context, requestID, token string) error {
	res, err := redisUnlockScript.Run(ctx, l.client, []string{lockKey(requestID)}, token).Int()
	if err != nil {
		return fmt.Errorf("redis unlock: %w", err)
	}
	if res == 0 {
		return ErrLockHeld
	}
	return nil
}
