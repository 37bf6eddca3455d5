package ratelimit

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/seminar-hub/backend/pkg/response"
)

var rejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "seminar_rate_limited_total",
	Help: "Requests rejected by the per-IP rate limiter.",
}, []string{"scope"})

// Middleware limits requests per client IP within scope (e.g. "submissions").
// Limiter failures let the request through.
func Middleware(l Limiter, scope string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		res, err := l.Allow(c.Request.Context(), scope+":"+ip)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			rejected.WithLabelValues(scope).Inc()
			response.TooManyRequests(c, res.RetryAfter.Seconds())
			c.Abort()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Next()
	}
}
