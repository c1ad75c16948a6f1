package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type Limiter interface {
	Consume(ctx context.Context, scope, subject string, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RateLimit allows perMinute requests per subject for the named scope. The
// subject is the authenticated user when present, else the client IP. Limiter
// errors let the request through.
func RateLimit(limiter Limiter, scope string, perMinute int, logger *slog.Logger) gin.HandlerFunc {
	if limiter == nil || perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		subject := c.GetString(ContextUserID)
		if subject == "" {
			subject = c.ClientIP()
		}

		count, retryAfter, err := limiter.Consume(c.Request.Context(), scope, subject, time.Minute)
		if err != nil {
			logger.Warn("rate limiter unavailable", "scope", scope, "error", err)
			c.Next()
			return
		}
		if count > perMinute {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited", "message": "too many requests"})
			return
		}
		c.Next()
	}
}
