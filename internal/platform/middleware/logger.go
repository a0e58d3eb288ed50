package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civictrack/civictrack-service/internal/platform/logger"
)

// GinStructuredLogger logs one line per request after it completes.
func GinStructuredLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		lvl := logger.LevelInfo
		status := c.Writer.Status()
		switch {
		case status >= 500:
			lvl = logger.LevelError
		case status >= 400:
			lvl = logger.LevelWarn
		}

		args := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", GetRequestID(c),
		}
		if query != "" {
			args = append(args, "query", query)
		}
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}

		log.Log(c.Request.Context(), lvl, "http request", args...)
	}
}
