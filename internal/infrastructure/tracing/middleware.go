package tracing

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HTTPMiddleware opens a span per request. An inbound X-Trace-ID is
// joined; the span's IDs are echoed in the response headers.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if parent := Extract(c.Request.Header); parent.Valid() {
			ctx = ContextWith(ctx, parent)
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span, ctx := tracer.Start(ctx, c.Request.Method+" "+route)
		span.Set(zap.String("http.path", c.Request.URL.Path))
		c.Request = c.Request.WithContext(ctx)
		Inject(ctx, c.Writer.Header())

		c.Next()

		span.Status = c.Writer.Status()
		if len(c.Errors) > 0 {
			span.Fail(c.Errors.Last(), 0)
		}
		span.End()
	}
}
