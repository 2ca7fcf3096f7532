package middleware

import (
	"context"
	"time"

	"github.com/Relicjamin-jv/wolf/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// RequestLoggerMiddleware logs every request through the context logger.
// It stamps the client ip and, when tracing is on, the active trace id
// into the request context so downstream log lines carry them too.
func RequestLoggerMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), logger.ClientIPKey, c.ClientIP())
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			ctx = context.WithValue(ctx, logger.TraceIDKey, sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		cl.LogRequest(ctx, c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
