package observability

import (
	"testing"

	"github.com/smallbiznis/obligo/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigNormalizesTelemetry(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppVersion:  " 1.2.0 ",
		Environment: "production",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "warn",
			LogFormat:     "pretty",
			OtelEnabled:   true,
			OTLPEndpoint:  "collector:4318",
			OTLPProtocol:  "zipkin",
			SamplingRatio: 0.5,
		},
	})

	assert.Equal(t, "obligo", cfg.ServiceName)
	assert.Equal(t, "1.2.0", cfg.Version)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.True(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigDisablesOtelWithoutEndpoint(t *testing.T) {
	cfg := LoadConfig(config.Config{Telemetry: config.TelemetryConfig{OtelEnabled: true}})
	assert.False(t, cfg.OtelEnabled)
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "DEBUG", Environment: "production"}.Debug())
	assert.True(t, Config{Environment: "test"}.Debug())
	assert.False(t, Config{LogLevel: "info", Environment: "staging"}.Debug())
}
