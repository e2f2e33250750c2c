package observability

import (
	"strings"

	"github.com/smallbiznis/obligo/internal/config"
)

// Config is the telemetry view of config.Config shared by the logger,
// tracer and meter providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "obligo"
	}
	telemetry := cfg.Telemetry

	protocol := telemetry.OTLPProtocol
	switch protocol {
	case "grpc", "http", "http/protobuf", "grpc/protobuf":
	default:
		protocol = "grpc"
	}
	format := telemetry.LogFormat
	if format != "console" {
		format = "json"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             telemetry.LogLevel,
		LogFormat:            format,
		OtelEnabled:          telemetry.OtelEnabled && telemetry.OTLPEndpoint != "",
		OtelExporterEndpoint: telemetry.OTLPEndpoint,
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    telemetry.SamplingRatio,
	}
}

// Debug enables stack traces and verbose gin output for debug level or
// non-production environments.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
