// Package lock keeps two ingestion runs from overlapping, across processes,
// with a redis key holding a per-run token.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrHeld is returned by Acquire when another run holds the lock.
	ErrHeld = errors.New("run lock held by another process")
	// ErrNotHeld is returned by Release when this run no longer owns the lock
	// (it expired or was taken over).
	ErrNotHeld = errors.New("run lock not held")
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RunLock is a single-attempt lock. It never waits: a run that finds the lock
// taken is skipped, not queued.
type RunLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// New returns a lock on key that expires after ttl if never released.
func New(client *redis.Client, key string, ttl time.Duration) *RunLock {
	return &RunLock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire takes the lock or returns ErrHeld.
func (l *RunLock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return ErrHeld
	}
	return nil
}

// Release drops the lock if this RunLock still owns it.
func (l *RunLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Key returns the redis key.
func (l *RunLock) Key() string { return l.key }
