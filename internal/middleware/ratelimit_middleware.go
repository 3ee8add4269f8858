package middleware

import (
	"context"
	"net/http"
	"strconv"

	"zalo-hub/internal/redis"
	"zalo-hub/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// AdminLimiter is satisfied by redis.RateLimiter.
type AdminLimiter interface {
	AllowAdmin(ctx context.Context, ip string) (*redis.RateLimitResult, error)
}

// RateLimitMiddleware applies the per-IP admin API limit. When the limiter
// backend fails the request goes through.
func RateLimitMiddleware(limiter AdminLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		result, err := limiter.AllowAdmin(c.Request.Context(), c.ClientIP())
		if err != nil {
			_ = c.Error(err)
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// setRateLimitHeaders sets standard rate limit response headers
func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
