package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type redisScopeLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisScopeLocker creates a locker that uses one Redis key per admission
// scope. The TTL bounds how long a crashed holder can stall a scope.
func NewRedisScopeLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisScopeLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisScopeLocker) WithScopeLock(ctx context.Context, tenantID uuid.UUID, clinicID *uuid.UUID, fn func(ctx context.Context) error) error {
	key := scopeKey(tenantID, clinicID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire scope lock: %w", err)
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

func scopeKey(tenantID uuid.UUID, clinicID *uuid.UUID) string {
	if clinicID != nil {
		return fmt.Sprintf("lock:waitlist:%s:%s", tenantID, *clinicID)
	}
	return fmt.Sprintf("lock:waitlist:%s", tenantID)
}

// Release only deletes the key when the token still matches, so an expired
// lock re-acquired by another request is never released by the old holder.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisScopeLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release scope lock: %w", err)
	}
	return nil
}
