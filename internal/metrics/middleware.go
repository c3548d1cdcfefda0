package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// HTTP records request count and latency per matched route.
func HTTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := StartTimer()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		timer.ObserveDuration(HTTPDuration.WithLabelValues(c.Request.Method, route))
	}
}
