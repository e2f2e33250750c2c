package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/obligo/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var untracedRoutes = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// GinMiddleware opens a server span per admin API request. Probe routes
// are not traced.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("obligo/http")
	return func(c *gin.Context) {
		if _, skip := untracedRoutes[c.Request.URL.Path]; skip {
			c.Next()
			return
		}

		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span.SetName("HTTP " + method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", c.Writer.Status()),
		}
		reqCtx := c.Request.Context()
		if requestID := obscontext.RequestIDFromContext(reqCtx); requestID != "" {
			attrs = append(attrs, attribute.String("request_id", requestID))
		}
		if actorType, _ := obscontext.ActorFromContext(reqCtx); actorType != "" {
			attrs = append(attrs, attribute.String("obligo.actor_type", actorType))
		}
		if id := c.Param("id"); id != "" {
			attrs = append(attrs, attribute.String("obligo.target_id", id))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if c.Writer.Status() >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(c.Writer.Status()))
		}
	}
}
