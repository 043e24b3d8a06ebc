// Copyright 2025 API-Sec Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateResult is the outcome of a rate-limit check.
type RateResult struct {
	Allowed   bool
	Remaining int
	// Reset is the epoch second at which the current window ends.
	Reset int64
}

// RateLimiter enforces per-tenant fixed-window quotas.
type RateLimiter interface {
	// Check counts the current request against the tenant's window and
	// reports whether it is admitted. Store failures surface as
	// ErrDependencyUnavailable.
	Check(ctx context.Context, tenantID string, limit, windowSeconds int) (RateResult, error)
}

// RedisRateLimiter is a fixed-window counter on Redis. Counting uses the
// atomic INCR primitive, so concurrent requests from the same tenant are
// counted exactly; enforcement is still best-effort in aggregate, not a
// hard sequential guarantee. A crash between INCR and EXPIRE can leave a
// key without TTL for one window, which the bucketed key name bounds.
type RedisRateLimiter struct {
	client *redis.Client
}

// NewRedisRateLimiter connects to Redis and verifies the connection.
func NewRedisRateLimiter(redisURL string) (*RedisRateLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRateLimiter{client: client}, nil
}

// NewRedisRateLimiterFromClient wraps an existing client (tests).
func NewRedisRateLimiterFromClient(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

// Check implements RateLimiter. Windows are aligned to fixed boundaries:
// all requests in [windowStart, windowStart+windowSeconds) share one
// counter key, and the counter restarts when the next window begins.
func (rl *RedisRateLimiter) Check(ctx context.Context, tenantID string, limit, windowSeconds int) (RateResult, error) {
	now := time.Now().Unix()
	windowStart := now - now%int64(windowSeconds)
	reset := windowStart + int64(windowSeconds)

	key := fmt.Sprintf("ratelimit:%s:%d", tenantID, windowStart)

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return RateResult{}, fmt.Errorf("%w: rate limit store: %v", ErrDependencyUnavailable, err)
	}

	if count == 1 {
		// First request of the window owns the key; expire it shortly
		// after the window ends so stale buckets clean themselves up.
		rl.client.Expire(ctx, key, time.Duration(windowSeconds+1)*time.Second)
	}

	if count > int64(limit) {
		return RateResult{Allowed: false, Remaining: 0, Reset: reset}, nil
	}

	return RateResult{
		Allowed:   true,
		Remaining: limit - int(count),
		Reset:     reset,
	}, nil
}

// Close releases the Redis connection.
func (rl *RedisRateLimiter) Close() error {
	return rl.client.Close()
}
