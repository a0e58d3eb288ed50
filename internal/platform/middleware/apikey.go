package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/civictrack/civictrack-service/internal/errs"
)

// AdminKey gates the admin route group behind a shared secret passed in
// the X-API-Key header. Comparison is constant time.
func AdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-API-Key")
		if got == "" {
			c.Error(errs.E(errs.KindUnauthorized, "MISSING_API_KEY", "middleware.AdminKey", "missing api key", nil, nil))
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.Error(errs.E(errs.KindForbidden, "INVALID_API_KEY", "middleware.AdminKey", "invalid api key", nil, nil))
			c.Abort()
			return
		}

		c.Next()
	}
}
