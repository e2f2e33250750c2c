package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGinMiddlewareNamesSpanByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(GinMiddleware())
	engine.GET("/v1/obligations/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/v1/obligations/42", "/health"} {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET /v1/obligations/:id", spans[0].Name())

	var targetID string
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "obligo.target_id" {
			targetID = attr.Value.AsString()
		}
	}
	assert.Equal(t, "42", targetID)
}
