package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock only while it still holds our token, so a
// lock that expired and was retaken elsewhere is left alone.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const originLockPrefix = "obligo:lock:origin:"

// ErrLockHeld is returned when another worker is creating a commission for
// the same origin.
var ErrLockHeld = errors.New("lock_not_acquired")

// Locker serializes commission creation per origin key across replicas.
type Locker struct {
	client *redis.Client
	unlock *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, unlock: redis.NewScript(unlockScript)}
}

// LockOrigin takes the advisory lock for an origin key and returns its
// release func. A nil Locker grants the lock immediately; the unique
// origin_key constraint stays the source of truth.
func (l *Locker) LockOrigin(ctx context.Context, originKey string, ttl time.Duration) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	if originKey == "" || ttl <= 0 {
		return nil, errors.New("ratelimit: origin lock needs a key and a positive ttl")
	}

	key := originLockPrefix + originKey
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrLockHeld
	}
	return func() {
		_ = l.unlock.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
	}, nil
}
