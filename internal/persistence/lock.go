package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker implements a best-effort mutual exclusion lock with SET NX PX.
type RedisLocker struct {
	client redis.Cmdable
	prefix string
}

// NewRedisLocker builds a locker on an existing client.
func NewRedisLocker(client redis.Cmdable, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "issue-sla:lock:"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

// TryLock acquires key for ttl. ok is false when another holder owns it.
// The returned unlock function is never nil.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error) {
	noop := func(context.Context) error { return nil }
	if l == nil || l.client == nil {
		return noop, false, errors.New("redis locker not configured")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	fullKey := l.prefix + key
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return noop, false, err
	}
	if !acquired {
		return noop, false, nil
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err()
	}, true, nil
}
