package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/openfloor/tradedesk/internal/domain"
)

// unlockLua deletes the lock key only when it still holds the caller's
// token, so an expired lock re-acquired by another request is never released
// by the original holder.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with SETNX + TTL. The desk uses
// it to serialize read-modify-write cycles on one position across processes;
// the row lock inside the transaction covers the database side, this covers
// the request side.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire takes the lock for key or returns domain.ErrLockHeld if someone
// else holds it. The returned unlock function is idempotent and safe to call
// from a deferred path after the caller's context is cancelled.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(key)

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// Detached context: the unlock must run even when the request
			// context is already done.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{lk}, token).Err()
		})
	}

	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
