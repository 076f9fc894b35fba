package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// lockPrefix namespaces every lock this service takes in a shared redis.
const lockPrefix = "storefront:lock:"

var (
	ErrLockUnavailable = errors.New("lock_client_not_configured")
	ErrInvalidLock     = errors.New("invalid_lock")
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker is a best-effort leader lock across instances. A lock expires after
// its ttl, so holders must finish or give up well before then.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

// NewLocker returns nil without redis. Callers treat a nil Locker as running
// alone.
func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

// LockKey is the redis key holding the lock called name.
func LockKey(name string) string {
	return lockPrefix + strings.TrimSpace(name)
}

// TryLock takes the named lock without waiting. The returned token must be
// passed to Release.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockUnavailable
	}
	if strings.TrimSpace(name) == "" || ttl <= 0 {
		return "", false, ErrInvalidLock
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, LockKey(name), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release drops the lock only if token still owns it.
func (l *Locker) Release(ctx context.Context, name, token string) error {
	if l == nil || l.client == nil || name == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{LockKey(name)}, token).Err()
}
