package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vizflow-backend/internal/observability"
)

// Metrics records request counts and latency per route template. Health
// routes are not recorded. Streams are counted but kept out of the latency
// histogram and the in-flight gauge.
func Metrics(m *observability.Metrics, classes RouteClasses) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	routes := classes.compile()
	return func(c *gin.Context) {
		route := routeOf(c)
		if routes.isHealth(route) {
			c.Next()
			return
		}
		if routes.isStream(route) {
			c.Next()
			m.CountAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
			return
		}

		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()
		c.Next()
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
