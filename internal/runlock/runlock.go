// Package runlock provides run-level mutual exclusion per sync job, so two
// overlapping triggers of the same job never execute concurrently.
package runlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker acquires and releases named run locks. TryLock never blocks: a held
// lock means another run is in flight and the caller skips this run.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)
	Release(ctx context.Context, key, token string) error
}

type redisLocker struct {
	client *redis.Client
	script *redis.Script
}

// NewRedisLocker builds a redis-backed locker. Returns nil for a nil client;
// callers fall back to the in-process locker.
func NewRedisLocker(client *redis.Client) Locker {
	if client == nil {
		return nil
	}
	return &redisLocker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release deletes the lock only when the token still matches, so a run that
// outlived its ttl cannot release a successor's lock.
func (l *redisLocker) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

type localLock struct {
	token    string
	deadline time.Time
}

// localLocker is the single-process fallback used when redis is not
// configured. Same token semantics, process-local scope.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]localLock
}

func NewLocalLocker() Locker {
	return &localLocker{locks: make(map[string]localLock)}
}

func (l *localLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if held, ok := l.locks[key]; ok && now.Before(held.deadline) {
		return "", false, nil
	}

	token := uuid.NewString()
	l.locks[key] = localLock{token: token, deadline: now.Add(ttl)}
	return token, true, nil
}

func (l *localLocker) Release(_ context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if held, ok := l.locks[key]; ok && held.token == token {
		delete(l.locks, key)
	}
	return nil
}
