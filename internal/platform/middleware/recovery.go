package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/civictrack/civictrack-service/internal/platform/logger"
)

// Recovery turns panics into 500 responses instead of killing the process.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(c.Request.Context(), "panic recovered",
					"panic", r,
					"path", c.Request.URL.Path,
					"request_id", GetRequestID(c),
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, APIError{
					Error:     "internal error",
					Kind:      "internal",
					RequestID: GetRequestID(c),
				})
			}
		}()

		c.Next()
	}
}
