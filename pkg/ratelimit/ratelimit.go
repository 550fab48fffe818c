// Package ratelimit 基于 Redis GCRA 的分布式限流
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RateLimiter 限流器接口
type RateLimiter interface {
	// Allow 按 key 检查一次请求是否放行
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

// Limit 限流规则：每 Period 允许 Rate 次，突发上限 Burst
type Limit struct {
	Rate   int
	Period time.Duration
	Burst  int
}

// PerSecond 每秒 rate 次的规则，burst <= 0 时等于 rate
func PerSecond(rate, burst int) Limit {
	if burst <= 0 {
		burst = rate
	}
	return Limit{Rate: rate, Period: time.Second, Burst: burst}
}

func (l Limit) toRedis() redis_rate.Limit {
	return redis_rate.Limit{Rate: l.Rate, Period: l.Period, Burst: l.Burst}
}

// Key 限流键，按作用域与调用方区分配额
func Key(scope, subject string) string {
	return "ratelimit:" + scope + ":" + subject
}

// Result 限流检查结果
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// RedisRateLimiter GCRA 限流，状态存 Redis，多实例共享配额
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
}

// NewRedisRateLimiter 创建限流器
func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{limiter: redis_rate.NewLimiter(rdb)}
}

// Allow 检查是否放行
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	if limit.Rate <= 0 || limit.Period <= 0 {
		return nil, fmt.Errorf("invalid rate limit: rate=%d period=%s", limit.Rate, limit.Period)
	}
	res, err := r.limiter.Allow(ctx, key, limit.toRedis())
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	return &Result{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
		RetryAfter: res.RetryAfter,
	}, nil
}
