package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civic-tracker-api/internal/service"
)

// unobservedRoutes are probe and scrape endpoints hit on a fixed schedule;
// recording them would drown the latency histograms of real traffic.
var unobservedRoutes = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// Metrics records latency and status per matched route. Unmatched paths are
// folded into one label so scanners cannot inflate label cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if _, skip := unobservedRoutes[route]; skip {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		if route == "" {
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
