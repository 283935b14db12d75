package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cuaderno-api/internal/service"
)

// unmatchedRoute labels requests that match no route, keeping label cardinality bounded.
const unmatchedRoute = "unmatched"

// Metrics records latency and status per route pattern. Routes listed in skip, such as
// the Prometheus scrape endpoint, are not observed.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, route := range skip {
		skipped[route] = struct{}{}
	}

	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if _, ok := skipped[route]; ok && route != "" {
			return
		}
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
