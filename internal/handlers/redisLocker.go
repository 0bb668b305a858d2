package handlers

import (
	"context"
	"fmt"
	"time"

	"TradeCore/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes the lock key only if it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisLocker is a Locker shared between processes. Locks expire after ttl
// so a crashed holder cannot block a position forever.
type RedisLocker struct {
	rdb      redis.UniversalClient
	ttl      time.Duration
	prefix   string
	unlockSc *redis.Script
}

func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		rdb:      rdb,
		ttl:      ttl,
		prefix:   "tradecore:lock:",
		unlockSc: redis.NewScript(unlockLua),
	}
}

func (l *RedisLocker) lockKey(key string) string {
	return l.prefix + key
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	lk := l.lockKey(key)

	ok, err := l.rdb.SetNX(ctx, lk, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", key, models.ErrLockHeld)
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true

		// the caller's context may already be canceled
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.unlockSc.Run(unlockCtx, l.rdb, []string{lk}, token).Err()
	}
	return unlock, nil
}

var (
	_ Locker = (*KeyedLocker)(nil)
	_ Locker = (*RedisLocker)(nil)
)
