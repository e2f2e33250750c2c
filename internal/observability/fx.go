package observability

import (
	"github.com/smallbiznis/obligo/internal/observability/logger"
	"github.com/smallbiznis/obligo/internal/observability/metrics"
	"github.com/smallbiznis/obligo/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module provides the zap logger, the OTel tracer and meter providers, the
// engine counters and the prometheus HTTP/scheduler collectors.
var Module = fx.Module("observability",
	fx.Provide(LoadConfig),
	fx.Provide(Config.loggerConfig, Config.tracingConfig, Config.metricsConfig),
	fx.Provide(
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// The tracer provider installs itself globally; nothing else depends on it.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
	fx.Invoke(func(cfg metrics.Config) { metrics.SchedulerWithConfig(cfg) }),
)

func (c Config) loggerConfig() logger.Config {
	debug := c.Debug()
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               debug,
		IncludeCaller:       true,
		IncludeStackOnError: debug,
	}
}

func (c Config) tracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) metricsConfig() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}
