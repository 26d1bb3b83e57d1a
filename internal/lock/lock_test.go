package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisClient connects to RECIPES_TEST_REDIS_ADDR or skips.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("RECIPES_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RECIPES_TEST_REDIS_ADDR not set")
	}
	c := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(context.Background()).Err())
	return c
}

func TestRunLock_ExclusiveAcquire(t *testing.T) {
	c := redisClient(t)
	ctx := context.Background()
	key := "recipes:test:" + uuid.NewString()

	first := New(c, key, time.Minute)
	second := New(c, key, time.Minute)

	require.NoError(t, first.Acquire(ctx))
	assert.ErrorIs(t, second.Acquire(ctx), ErrHeld)

	// The second holder cannot release a lock it does not own.
	assert.True(t, errors.Is(second.Release(ctx), ErrNotHeld))

	require.NoError(t, first.Release(ctx))
	require.NoError(t, second.Acquire(ctx))
	require.NoError(t, second.Release(ctx))
}

func TestRunLock_Expires(t *testing.T) {
	c := redisClient(t)
	ctx := context.Background()
	key := "recipes:test:" + uuid.NewString()

	l := New(c, key, 100*time.Millisecond)
	require.NoError(t, l.Acquire(ctx))
	time.Sleep(250 * time.Millisecond)

	assert.ErrorIs(t, l.Release(ctx), ErrNotHeld)
	assert.Equal(t, key, l.Key())
}
