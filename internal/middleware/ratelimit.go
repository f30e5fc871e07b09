package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/motorlist/internal/cache"
	"github.com/charlesng35/motorlist/pkg/errors"
	"github.com/charlesng35/motorlist/pkg/logger"
	"github.com/charlesng35/motorlist/pkg/response"
)

// RateLimit limits requests per (clientIP, route) within a fixed window. Counters
// live in the shared cache store so limits hold across instances. A store
// failure lets the request through.
func RateLimit(store cache.Store, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := "ratelimit:" + c.ClientIP() + ":" + route

		count, ttl, err := store.IncrementWithTTL(c.Request.Context(), key, window)
		if err != nil {
			logger.WithModule("http").Warn("rate limit store unavailable",
				zap.String("path", route),
				zap.Error(err),
			)
			c.Next()
			return
		}

		remaining := int64(maxRequests) - count
		if remaining < 0 {
			remaining = 0
		}
		resetIn := strconv.Itoa(int(math.Ceil(ttl.Seconds())))

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", resetIn)

		if count > int64(maxRequests) {
			c.Header("Retry-After", resetIn)
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
