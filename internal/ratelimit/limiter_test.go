package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiterHonoursBurst(t *testing.T) {
	limiter := NewLocalLimiter(1000, 3, nil)
	assert.Equal(t, BackendLocal, limiter.Backend())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Wait(ctx))
	}
}

func TestLocalLimiterRespectsContext(t *testing.T) {
	limiter := NewLocalLimiter(0.001, 1, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, limiter.Wait(ctx))
	assert.Error(t, limiter.Wait(ctx))
}

func TestSyncLimiterFallsBackToLocal(t *testing.T) {
	limiter := NewSyncLimiter(nil, 5, 1, nil)
	assert.Equal(t, BackendLocal, limiter.Backend())
}

func TestNilLockerGrantsOriginLock(t *testing.T) {
	var locker *Locker
	release, err := locker.LockOrigin(context.Background(), "sale:1", time.Second)
	require.NoError(t, err)
	release()
}

func TestTokenBucketHelpers(t *testing.T) {
	assert.Equal(t, 2.5, toFloat("2.5"))
	assert.Equal(t, float64(3), toFloat(int64(3)))
	assert.Zero(t, toFloat(nil))
	assert.Equal(t, 10*time.Second, bucketTTL(1, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestNilTokenBucketIsUnavailable(t *testing.T) {
	var bucket *TokenBucket
	_, err := bucket.Take(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrBucketUnavailable)
	assert.Nil(t, NewTokenBucket(nil))
}
