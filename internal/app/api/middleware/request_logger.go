package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLoggerMiddleware derives a request-scoped logger carrying the
// trace id and stores it where logctx.FromGin and logctx.FromCtx look for
// it, so service-layer log lines correlate with the access log. The trace
// id is echoed back in X-Request-ID for support tickets.
func RequestLoggerMiddleware(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetString("traceID")

		reqLogger := base.With("trace_id", traceID)
		c.Set("logger", reqLogger)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), "logger", reqLogger))

		if traceID != "" {
			c.Writer.Header().Set("X-Request-ID", traceID)
		}

		c.Next()
	}
}
