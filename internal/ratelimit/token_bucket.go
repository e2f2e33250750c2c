package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// takeScript refills the bucket from redis server time, takes one token if
// available and returns {granted, tokens_left, retry_after_ms}.
const takeScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + (now - last) / 1000 * rate)
end

local granted = 0
local retry = 0
if tokens >= 1 then
  granted = 1
  tokens = tokens - 1
else
  retry = math.ceil((1 - tokens) / rate * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[3]))
return {granted, tostring(tokens), retry}
`

var (
	ErrBucketUnavailable = errors.New("ratelimit: token bucket not configured")
	ErrInvalidBucket     = errors.New("ratelimit: bucket key, rate and burst are required")
)

// TokenBucket is a redis-backed bucket shared by every scheduler and API
// replica pacing the same work.
type TokenBucket struct {
	client *redis.Client
	take   *redis.Script
}

// Decision is the outcome of a single Take.
type Decision struct {
	Granted    bool
	Tokens     float64
	RetryAfter time.Duration
}

// NewTokenBucket returns nil when redis is not configured so callers fall
// back to an in-process limiter.
func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, take: redis.NewScript(takeScript)}
}

func (t *TokenBucket) Take(ctx context.Context, key string, perSecond float64, burst int) (Decision, error) {
	if t == nil || t.client == nil {
		return Decision{}, ErrBucketUnavailable
	}
	if key == "" || perSecond <= 0 || burst <= 0 {
		return Decision{}, ErrInvalidBucket
	}

	ttl := bucketTTL(perSecond, burst)
	reply, err := t.take.Run(ctx, t.client, []string{key}, perSecond, burst, ttl.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(reply) != 3 {
		return Decision{}, errors.New("ratelimit: unexpected script reply")
	}

	return Decision{
		Granted:    toFloat(reply[0]) == 1,
		Tokens:     toFloat(reply[1]),
		RetryAfter: time.Duration(toFloat(reply[2])) * time.Millisecond,
	}, nil
}

// bucketTTL keeps idle buckets around for twice the time a full refill takes.
func bucketTTL(perSecond float64, burst int) time.Duration {
	seconds := math.Max(1, math.Ceil(float64(burst)/perSecond*2))
	return time.Duration(seconds) * time.Second
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case int64:
		return float64(val)
	case float64:
		return val
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
