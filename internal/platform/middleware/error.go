package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civictrack/civictrack-service/internal/errs"
	"github.com/civictrack/civictrack-service/internal/platform/logger"
)

// APIError is the JSON error envelope returned by every handler.
type APIError struct {
	Error     string            `json:"error"`
	Kind      string            `json:"kind"`
	Code      string            `json:"code,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// Error converts errors attached via c.Error into the APIError envelope.
// Handlers attach errors and return; they never write error bodies themselves.
func Error(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		e, ok := errs.As(err)
		if !ok {
			e = errs.E(errs.KindInternal, "INTERNAL", "middleware.Error", "internal error", nil, err)
		}

		status := mapErr(e.Kind)
		if status >= http.StatusInternalServerError {
			log.Error(c.Request.Context(), "request failed",
				"err", err.Error(),
				"op", e.Op,
				"request_id", GetRequestID(c),
			)
		}

		resp := APIError{
			Error:     e.Msg,
			Kind:      string(e.Kind),
			Code:      e.Code,
			RequestID: GetRequestID(c),
		}
		if e.Kind == errs.KindInvalid && len(e.Fields) > 0 {
			resp.Fields = e.Fields
		}
		if e.Kind == errs.KindInternal {
			resp.Error = "internal error"
		}

		c.AbortWithStatusJSON(status, resp)
	}
}

func mapErr(kind errs.Kind) int {
	switch kind {
	case errs.KindInvalid:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindUnauthorized:
		return http.StatusUnauthorized
	case errs.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
