package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBurstThenRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocal(1, 2)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, ok, "request %d within burst", i)
	}
	ok, wait, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.InDelta(t, time.Second, wait, float64(10*time.Millisecond))

	ok, _, _ = l.Allow(ctx, "10.0.0.2")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Second)
	ok, _, _ = l.Allow(ctx, "10.0.0.1")
	assert.True(t, ok, "token refilled after a second")
}

func TestLocalSweepsIdleBuckets(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocal(1, 1)
	l.now = func() time.Time { return now }
	_, _, _ = l.Allow(context.Background(), "a")
	now = now.Add(bucketTTL + sweepInterval + time.Second)
	_, _, _ = l.Allow(context.Background(), "b")
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "a")
	assert.Contains(t, l.buckets, "b")
}

func TestRedisWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewRedis(client, "test", 2, 3)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, _, err := rl.Allow(ctx, "user:7")
		require.NoError(t, err)
		require.True(t, ok, "request %d within window", i)
	}
	ok, wait, err := rl.Allow(ctx, "user:7")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, 1500*time.Millisecond)

	mr.FastForward(2 * time.Second)
	ok, _, err = rl.Allow(ctx, "user:7")
	require.NoError(t, err)
	assert.True(t, ok, "window expired")

	require.NoError(t, rl.Reset(ctx, "user:7"))
	assert.False(t, mr.Exists("test:user:7"))
}

func TestRedisFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	ok, _, err := NewRedis(client, "", 1, 1).Allow(context.Background(), "ip:1")
	assert.Error(t, err)
	assert.True(t, ok)
}
