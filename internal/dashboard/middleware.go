package dashboard

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/life-stream-dev/afk-bridge/internal/logger"
)

// LoggingMiddleware logs each request as "[method] path?query - status (latency)".
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		logger.DebugF("[%s] %s - %d (%v)", c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
