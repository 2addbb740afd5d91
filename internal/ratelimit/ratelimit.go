// Package ratelimit provides Redis-backed sliding-window rate
// limiting. Without a Redis client the limiter runs in noop mode and
// allows everything, which is the local development configuration.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule describes one limit: at most Limit requests per Window, scoped
// by Prefix so independent endpoints do not share budgets.
type Rule struct {
	Prefix string
	Limit  int
	Window time.Duration
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// FormatHeaders renders the standard rate limit response headers.
func (r Result) FormatHeaders() map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(r.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(r.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(r.ResetAt.Unix(), 10),
	}
}

// Limiter enforces sliding-window limits against Redis. Safe for
// concurrent use.
type Limiter struct {
	client *redis.Client
	logger *slog.Logger
}

// New creates a limiter. A nil client enables noop mode.
func New(client *redis.Client, logger *slog.Logger) *Limiter {
	return &Limiter{client: client, logger: logger}
}

// Allow records one request under (rule, key) and reports whether it
// fits the window. Redis failures fail open: blocking all traffic on a
// limiter outage is worse than briefly not limiting it.
func (l *Limiter) Allow(ctx context.Context, rule Rule, key string) Result {
	if l.client == nil {
		return Result{Allowed: true, Limit: rule.Limit, Remaining: rule.Limit, ResetAt: time.Now().Add(rule.Window)}
	}

	now := time.Now()
	redisKey := fmt.Sprintf("ratelimit:%s:%s", rule.Prefix, key)
	windowStart := now.Add(-rule.Window)
	// Microsecond-precision members: two requests in the same
	// microsecond collapse into one, an acceptable variance.
	member := strconv.FormatInt(now.UnixMicro(), 10)

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart.UnixMicro(), 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixMicro()), Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("ratelimit: redis pipeline failed, failing open", "prefix", rule.Prefix, "error", err)
		return Result{Allowed: true, Limit: rule.Limit, Remaining: rule.Limit, ResetAt: now.Add(rule.Window)}
	}

	count := int(countCmd.Val())
	if count > rule.Limit {
		// Over budget: remove our own member so denied requests do not
		// extend the window for everyone else.
		if err := l.client.ZRem(ctx, redisKey, member).Err(); err != nil {
			l.logger.Debug("ratelimit: zrem denied member failed", "error", err)
		}
		return Result{
			Allowed:   false,
			Limit:     rule.Limit,
			Remaining: 0,
			ResetAt:   l.resetAt(ctx, redisKey, rule.Window, now),
		}
	}

	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Limit: rule.Limit, Remaining: remaining, ResetAt: now.Add(rule.Window)}
}

// resetAt estimates when the oldest entry in the window falls out.
func (l *Limiter) resetAt(ctx context.Context, redisKey string, window time.Duration, now time.Time) time.Time {
	entries, err := l.client.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
	if err != nil || len(entries) == 0 {
		return now.Add(window)
	}
	oldest := time.UnixMicro(int64(entries[0].Score))
	return oldest.Add(window)
}

// Close releases the underlying client, if any.
func (l *Limiter) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}
