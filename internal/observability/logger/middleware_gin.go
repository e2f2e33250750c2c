package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/obligo/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-Id"

type MiddlewareConfig struct {
	Base  *zap.Logger
	Debug bool
	// ErrorClassifier maps the last handler error to the envelope type and
	// field code written to the log line.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns a request id, threads it through the request context
// and writes one http_request line when the handler returns.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	base := cfg.Base
	if base == nil {
		base = zap.L()
	}
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if last := c.Errors.Last(); last != nil && cfg.ErrorClassifier != nil {
			errorType, errorCode := cfg.ErrorClassifier(last.Err)
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		WithContext(c.Request.Context(), base).Log(requestLevel(route, status), "http_request", fields...)
	}
}

func requestLevel(route string, status int) zapcore.Level {
	switch {
	case route == "/health" || route == "/metrics":
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
