package ratelimit

import "go.uber.org/fx"

// Module provides the redis client, the per-origin commission locker and the
// shared sync token bucket. All three are nil when REDIS_ADDR is unset.
var Module = fx.Module("ratelimit",
	fx.Provide(
		NewRedisClient,
		NewLocker,
		NewTokenBucket,
	),
)
