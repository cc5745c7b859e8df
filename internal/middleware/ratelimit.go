package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/srms-dev/srms-api/pkg/errors"
	"github.com/srms-dev/srms-api/pkg/response"
)

type rateLimitStore interface {
	Enabled() bool
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimit applies a fixed-window counter per client IP and route.
// When Redis is unavailable the limiter fails open so auth does not
// become dependent on the cache tier.
func RateLimit(store rateLimitStore, limit int64, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if store == nil || !store.Enabled() || limit <= 0 {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		key := fmt.Sprintf("ratelimit:%s:%s", c.ClientIP(), path)

		count, err := store.IncrementWindow(c.Request.Context(), key, window)
		if err != nil {
			logger.Warn("rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if count > limit {
			response.Error(c, appErrors.ErrTooManyRequests)
			c.Abort()
			return
		}

		c.Next()
	}
}
