package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/tryon/internal/clock"
	"github.com/smallbiznis/tryon/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOriginLimiterBurstThenRefill(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewMemoryOriginLimiter(0.5, 2, clk)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, "origin-a")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := limiter.Allow(ctx, "origin-a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 2*time.Second, d.RetryAfter)

	other, err := limiter.Allow(ctx, "origin-b")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	clk.Advance(2 * time.Second)
	d, err = limiter.Allow(ctx, "origin-a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryOriginLimiterSweepsIdleOrigins(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewMemoryOriginLimiter(1, 1, clk)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "origin-a")
	require.NoError(t, err)
	clk.Advance(time.Minute)
	_, err = limiter.Allow(ctx, "origin-b")
	require.NoError(t, err)

	assert.Len(t, limiter.entries, 1)
	assert.Contains(t, limiter.entries, "origin-b")
}

func TestEmptyOriginIsNotThrottled(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	limiter := NewMemoryOriginLimiter(1, 1, clk)
	for i := 0; i < 5; i++ {
		d, err := limiter.Allow(context.Background(), "")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func TestNewOriginLimiterSelection(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())

	policy := config.DefaultPolicy()
	assert.IsType(t, &MemoryOriginLimiter{}, NewOriginLimiter(policy, nil, clk))

	policy.Abuse.OriginAttemptRate = 0
	assert.IsType(t, unlimited{}, NewOriginLimiter(policy, nil, clk))
}

func TestDecide(t *testing.T) {
	d := decide(false, 0.25, 0.5)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1500*time.Millisecond, d.RetryAfter)

	d = decide(true, 3.7, 1)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)
	assert.Zero(t, d.RetryAfter)
}

func TestParseTokens(t *testing.T) {
	assert.InDelta(t, 1.5, parseTokens("1.5"), 1e-9)
	assert.InDelta(t, 2.0, parseTokens(int64(2)), 1e-9)
	assert.Zero(t, parseTokens("nope"))
	assert.Zero(t, parseTokens(nil))
}

func TestLeaseKey(t *testing.T) {
	assert.Equal(t, "tryon:lease:payment:paypal:PAY-1", leaseKey("payment:paypal:PAY-1"))
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 50*time.Second, bucketTTL(0.2, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestNilLockerAndBucket(t *testing.T) {
	var locker *Locker
	_, _, err := locker.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockerDisabled)
	assert.NoError(t, locker.Release(context.Background(), "k", "t"))

	var bucket *TokenBucket
	_, err = bucket.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
}
