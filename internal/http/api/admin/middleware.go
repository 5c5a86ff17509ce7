package admin

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/errs"
	"github.com/router-for-me/adminpanel/internal/http/api/envelope"
	"github.com/router-for-me/adminpanel/internal/metrics"
	"github.com/router-for-me/adminpanel/internal/ratelimit"
	log "github.com/sirupsen/logrus"
)

// RateLimit throttles requests per client IP within scope. Limiter errors fail open.
func RateLimit(manager *ratelimit.Manager, scope ratelimit.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil {
			c.Next()
			return
		}
		result, errCheck := manager.Check(c.Request.Context(), scope, c.ClientIP())
		if errCheck != nil {
			log.WithError(errCheck).WithField("scope", scope).Warn("rate limit check failed")
			c.Next()
			return
		}
		if !result.Allowed {
			metrics.RateLimited.WithLabelValues(string(scope)).Inc()
			if !result.Reset.IsZero() {
				retryAfter := int(time.Until(result.Reset).Seconds()) + 1
				if retryAfter < 1 {
					retryAfter = 1
				}
				c.Header("Retry-After", strconv.Itoa(retryAfter))
			}
			envelope.Error(c, errs.RateLimited())
			return
		}
		c.Next()
	}
}

// RequestLogger writes one log entry per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		entry := log.WithFields(log.Fields{
			"method":    c.Request.Method,
			"route":     route,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("request")
		case status >= 400:
			entry.Warn("request")
		default:
			entry.Debug("request")
		}
	}
}
