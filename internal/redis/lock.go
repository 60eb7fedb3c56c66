package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("owner schedule lock not acquired")
)

// Locker guards the admission critical section per professional. While one
// request holds an owner's lock, no concurrent request can run its
// conflict-check-then-write against the same schedule, which closes the
// check-then-act race.
type Locker interface {
	WithOwnerLock(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisOwnerLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisOwnerLocker creates a locker that uses a per owner Redis key.
func NewRedisOwnerLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisOwnerLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisOwnerLocker) WithOwnerLock(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:owner:%s", ownerID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire owner lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

// Token-checked delete: an expired lock re-acquired by another request must
// never be released by the original holder.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisOwnerLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release owner lock: %w", err)
	}
	return nil
}
