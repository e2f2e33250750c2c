package ratelimit

import (
	"context"
	"time"

	obsmetrics "github.com/smallbiznis/obligo/internal/observability/metrics"
	"golang.org/x/time/rate"
)

const (
	BackendLocal = "local"
	BackendRedis = "redis"

	keySyncBucket = "obligo:ratelimit:commission_sync"
	minRetryDelay = 10 * time.Millisecond
)

// Limiter paces batch work item by item.
type Limiter interface {
	Wait(ctx context.Context) error
	Backend() string
}

type localLimiter struct {
	limiter *rate.Limiter
	metrics *obsmetrics.Metrics
}

// NewLocalLimiter builds an in-process token bucket.
func NewLocalLimiter(perSecond float64, burst int, metrics *obsmetrics.Metrics) Limiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &localLimiter{
		limiter: rate.NewLimiter(limit, burst),
		metrics: metrics,
	}
}

func (l *localLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	err := l.limiter.Wait(ctx)
	l.metrics.ObserveLimiterWait(ctx, BackendLocal, time.Since(start))
	return err
}

func (l *localLimiter) Backend() string { return BackendLocal }

type redisLimiter struct {
	bucket  *TokenBucket
	key     string
	rate    float64
	burst   int
	metrics *obsmetrics.Metrics
}

// NewRedisLimiter shares one token bucket across every process using key.
func NewRedisLimiter(bucket *TokenBucket, key string, perSecond float64, burst int, metrics *obsmetrics.Metrics) Limiter {
	return &redisLimiter{
		bucket:  bucket,
		key:     key,
		rate:    perSecond,
		burst:   burst,
		metrics: metrics,
	}
}

func (l *redisLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		l.metrics.ObserveLimiterWait(ctx, BackendRedis, time.Since(start))
	}()

	for {
		decision, err := l.bucket.Take(ctx, l.key, l.rate, l.burst)
		if err != nil {
			return err
		}
		if decision.Granted {
			return nil
		}
		delay := decision.RetryAfter
		if delay < minRetryDelay {
			delay = minRetryDelay
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *redisLimiter) Backend() string { return BackendRedis }

// NewSyncLimiter picks the redis bucket when one is configured and falls back
// to a local limiter otherwise.
func NewSyncLimiter(bucket *TokenBucket, perSecond float64, burst int, metrics *obsmetrics.Metrics) Limiter {
	if bucket != nil {
		return NewRedisLimiter(bucket, keySyncBucket, perSecond, burst, metrics)
	}
	return NewLocalLimiter(perSecond, burst, metrics)
}
