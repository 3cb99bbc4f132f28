package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vizflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

// RequestLogger writes one line per request once the handler returns. Health
// hits are logged only when they fail. Stream lines report how long the
// session stayed open.
func RequestLogger(log *logger.Logger, classes RouteClasses) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	log = log.With("component", "HTTP")
	routes := classes.compile()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := routeOf(c)
		status := c.Writer.Status()
		if routes.isHealth(route) && status < 500 {
			return
		}

		fields := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
		}
		if route == unmatchedRoute {
			fields = append(fields, "path", c.Request.URL.Path)
		}
		fields = append(fields, ctxutil.LogFields(c.Request.Context())...)
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		if routes.isStream(route) {
			fields = append(fields, "session_ms", time.Since(start).Milliseconds())
			log.Info("Realtime session closed", fields...)
			return
		}
		fields = append(fields, "duration_ms", time.Since(start).Milliseconds())
		switch {
		case status >= 500:
			log.Error("HTTP request failed", fields...)
		case status >= 400:
			log.Warn("HTTP request rejected", fields...)
		default:
			log.Debug("HTTP request", fields...)
		}
	}
}
