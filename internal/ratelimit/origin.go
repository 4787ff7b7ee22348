package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/tryon/internal/clock"
	"github.com/smallbiznis/tryon/internal/config"
	"golang.org/x/time/rate"
)

const keyPrefix = "tryon:"

// OriginLimiter throttles free-grant attempts per network origin hash.
type OriginLimiter interface {
	Allow(ctx context.Context, originHash string) (Decision, error)
}

// NewOriginLimiter picks the redis bucket when a client is configured so the
// limit is shared across replicas; otherwise limits are per process.
func NewOriginLimiter(policy config.Policy, bucket *TokenBucket, clk clock.Clock) OriginLimiter {
	limits := policy.Abuse
	if limits.OriginAttemptRate <= 0 || limits.OriginAttemptBurst <= 0 {
		return unlimited{}
	}
	if bucket != nil {
		return &redisOriginLimiter{bucket: bucket, rate: limits.OriginAttemptRate, burst: limits.OriginAttemptBurst}
	}
	return NewMemoryOriginLimiter(limits.OriginAttemptRate, limits.OriginAttemptBurst, clk)
}

type unlimited struct{}

func (unlimited) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

type redisOriginLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func (l *redisOriginLimiter) Allow(ctx context.Context, originHash string) (Decision, error) {
	if originHash == "" {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, keyPrefix+"origin:"+originHash, l.rate, l.burst)
}

// MemoryOriginLimiter keeps one rate.Limiter per origin. Idle entries are
// swept once they would have refilled completely.
type MemoryOriginLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clock     clock.Clock
	idleAfter time.Duration
	lastSweep time.Time
	entries   map[string]*originEntry
}

type originEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewMemoryOriginLimiter(perSecond float64, burst int, clk clock.Clock) *MemoryOriginLimiter {
	return &MemoryOriginLimiter{
		limit:     rate.Limit(perSecond),
		burst:     burst,
		clock:     clk,
		idleAfter: bucketTTL(perSecond, burst),
		entries:   make(map[string]*originEntry),
	}
}

func (l *MemoryOriginLimiter) Allow(_ context.Context, originHash string) (Decision, error) {
	if originHash == "" {
		return Decision{Allowed: true}, nil
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	entry, ok := l.entries[originHash]
	if !ok {
		entry = &originEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[originHash] = entry
	}
	entry.lastSeen = now

	allowed := entry.limiter.AllowN(now, 1)
	return decide(allowed, entry.limiter.TokensAt(now), float64(l.limit)), nil
}

func (l *MemoryOriginLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleAfter {
		return
	}
	l.lastSweep = now
	for key, entry := range l.entries {
		if now.Sub(entry.lastSeen) >= l.idleAfter {
			delete(l.entries, key)
		}
	}
}
