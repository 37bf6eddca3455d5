// Package ratelimit implements fixed-window request limiting keyed by client identifier.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result describes the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits at most Limit calls per key within each window. Windows are fixed and start at a
// key's first call, so a burst split across the end of one window and the start of the next can
// pass up to 2*Limit calls within a single window length.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// fixedWindowScript increments the counter and starts the window on the first hit.
// Returns {count, pttl}. Running as a script makes increment-and-check atomic across instances.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Redis is a Limiter shared by every process pointing at the same Redis.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedis creates a Redis-backed limiter. Keys are stored as prefix + key.
func NewRedis(client *redis.Client, prefix string, limit int, window time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow implements Limiter.
func (l *Redis) Allow(ctx context.Context, key string) (Result, error) {
	vals, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("rate limit script: unexpected reply %v", vals)
	}
	return decide(int(vals[0]), l.limit, time.Duration(vals[1])*time.Millisecond), nil
}

// Memory is an in-process Limiter for tests and single-instance deployments without Redis.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count int
	reset time.Time
}

// NewMemory creates an in-memory limiter.
func NewMemory(limit int, windowLen time.Duration) *Memory {
	return &Memory{limit: limit, window: windowLen, now: time.Now, windows: make(map[string]*window)}
}

// Allow implements Limiter.
func (l *Memory) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(l.window)}
		l.windows[key] = w
		l.sweep(now)
	}
	w.count++
	return decide(w.count, l.limit, w.reset.Sub(now)), nil
}

// sweep drops expired windows so the map does not grow without bound.
func (l *Memory) sweep(now time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for k, w := range l.windows {
		if !now.Before(w.reset) {
			delete(l.windows, k)
		}
	}
}

func decide(count, limit int, ttl time.Duration) Result {
	if count > limit {
		if ttl <= 0 {
			ttl = time.Millisecond
		}
		return Result{Allowed: false, RetryAfter: ttl}
	}
	return Result{Allowed: true, Remaining: limit - count}
}
