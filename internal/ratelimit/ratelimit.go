// Package ratelimit throttles requests per client key, either in process or
// shared across replicas through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key fits. When it does not,
// retryAfter is how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

const (
	bucketTTL     = 5 * time.Minute
	sweepInterval = time.Minute
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Local keeps one token bucket per key. Idle buckets are swept lazily.
type Local struct {
	mu        sync.Mutex
	perSecond rate.Limit
	burst     int
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

func NewLocal(perSecond float64, burst int) *Local {
	return &Local{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		buckets:   map[string]*bucket{},
		now:       time.Now,
	}
}

func (l *Local) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) > sweepInterval {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > bucketTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

// Redis counts requests in fixed windows shared by every replica. Redis
// errors fail open: the request is allowed and the error reported.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRedis allows burst requests per burst/perSecond window.
func NewRedis(client *redis.Client, prefix string, perSecond float64, burst int) *Redis {
	if prefix == "" {
		prefix = "ratelimit"
	}
	window := time.Second
	if perSecond > 0 && burst > 0 {
		window = time.Duration(math.Ceil(float64(burst) / perSecond * float64(time.Second)))
	}
	return &Redis{client: client, prefix: prefix, limit: int64(burst), window: window}
}

// windowScript starts the window on the first hit so later hits do not extend it.
var windowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

func (r *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", r.prefix, key)
	res, err := windowScript.Run(ctx, r.client, []string{redisKey}, r.window.Milliseconds()).Slice()
	if err != nil {
		return true, 0, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(res) != 2 {
		return true, 0, fmt.Errorf("redis rate limit: unexpected reply %v", res)
	}
	count, _ := res[0].(int64)
	ttl, _ := res[1].(int64)
	if count <= r.limit {
		return true, 0, nil
	}
	wait := time.Duration(ttl) * time.Millisecond
	if wait <= 0 {
		wait = r.window
	}
	return false, wait, nil
}

// Reset clears the counter for key.
func (r *Redis) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, fmt.Sprintf("%s:%s", r.prefix, key)).Err()
}
