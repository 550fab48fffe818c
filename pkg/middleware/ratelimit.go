package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"
	"github.com/wyfcoding/portfoliorisk/pkg/config"
	"github.com/wyfcoding/portfoliorisk/pkg/ratelimit"
)

// RateLimitMiddleware 按客户端 IP 限流，scope 区分不同接口的配额
func RateLimitMiddleware(limiter ratelimit.RateLimiter, cfg config.RateLimitConfig, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		key := ratelimit.Key(scope, c.ClientIP())
		limit := ratelimit.PerSecond(cfg.QPS, cfg.Burst)

		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			// 限流器故障时放行
			logging.Warn(c.Request.Context(), "rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", seconds(res.ResetAfter))

		if !res.Allowed {
			c.Header("Retry-After", seconds(res.RetryAfter))
			response.ErrorWithStatus(c, http.StatusTooManyRequests, "Too many requests", "retry after "+res.RetryAfter.String())
			c.Abort()
			return
		}

		c.Next()
	}
}

// seconds 向上取整到秒，不足一秒按一秒计
func seconds(d time.Duration) string {
	return strconv.FormatInt(int64((d+time.Second-1)/time.Second), 10)
}
