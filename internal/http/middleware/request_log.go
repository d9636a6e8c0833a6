package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/learnmate-backend/internal/platform/ctxutil"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

// RequestLogger writes one line per request. Probe and scrape routes log at
// debug so they do not drown out API traffic.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := routeLabel(c)
		status := c.Writer.Status()
		m := ctxutil.Meta(c.Request.Context())
		fields := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", m.RequestID,
			"trace_id", m.TraceID,
		}
		if m.UserID != "" {
			fields = append(fields, "user_id", m.UserID)
		}
		if m.SessionID != "" {
			fields = append(fields, "session_id", m.SessionID)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("request failed", fields...)
		case status >= 400:
			log.Warn("request rejected", fields...)
		case quietRoutes[route]:
			log.Debug("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

var quietRoutes = map[string]bool{"/healthz": true, "/metrics": true}

// routeLabel keeps label cardinality bounded: unmatched paths share one value.
func routeLabel(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}
