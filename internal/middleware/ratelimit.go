package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/lockgate/pkg/errors"
	"github.com/charlesng35/lockgate/pkg/logger"
	"github.com/charlesng35/lockgate/pkg/metrics"
	"github.com/charlesng35/lockgate/pkg/response"
)

// KeyFunc derives the limiter bucket for a request. An empty key skips limiting.
type KeyFunc func(c *gin.Context) string

// ClientIPPathKey buckets by client address and route.
func ClientIPPathKey(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return "ip:" + c.ClientIP() + "|" + path
}

// DeviceKeyOrOrigin buckets by the presented device API key, falling back to
// the client address when no key is sent.
func DeviceKeyOrOrigin(prefix string) KeyFunc {
	return func(c *gin.Context) string {
		if key := strings.TrimSpace(c.GetHeader(DeviceAPIKeyHeader)); key != "" {
			return prefix + ":" + key
		}
		return prefix + ":ip:" + c.ClientIP()
	}
}

// RateLimit limits requests per (client ip, route) within a fixed window.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return RateLimitByKey(store, "global", maxRequests, window, ClientIPPathKey)
}

// RateLimitByKey rejects requests with 429 once a bucket exceeds maxRequests
// inside window. The handler never runs for rejected requests.
func RateLimitByKey(store RateStore, scope string, maxRequests int, window time.Duration, keyFunc KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		key := keyFunc(c)
		if key == "" {
			c.Next()
			return
		}

		count, resetIn, err := store.Increment(c.Request.Context(), "ratelimit:"+key, window)
		if err != nil {
			// fail open
			logger.WithModule("ratelimit").Warn("rate store unavailable",
				zap.String("scope", scope),
				zap.Error(err),
			)
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))

		if count > maxRequests {
			metrics.RateLimited.WithLabelValues(scope).Inc()
			c.Header("Retry-After", strconv.Itoa(int(resetIn.Seconds())+1))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
