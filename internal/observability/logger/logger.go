package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/obligo/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	Debug       bool

	IncludeCaller       bool
	IncludeStackOnError bool
}

// Sweeps and syncs log one line per item; sample repeats so a large backlog
// does not flood the sink.
const (
	sampleTick       = time.Second
	sampleFirst      = 100
	sampleThereafter = 100
)

// New builds the process logger, installs it as the zap global and flushes
// it when the fx app stops.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if raw := strings.TrimSpace(cfg.Level); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", raw, err)
		}
	}

	encoder := zap.NewProductionEncoderConfig()
	encoder.TimeKey = "ts"
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder

	zapCfg := zap.Config{
		Level:            level,
		Development:      cfg.Debug,
		Encoding:         "json",
		EncoderConfig:    encoder,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		zapCfg.Encoding = "console"
	}

	options := []zap.Option{
		zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewSamplerWithOptions(core, sampleTick, sampleFirst, sampleThereafter)
		}),
		zap.Fields(
			zap.String("service", defaultString(cfg.ServiceName, "obligo")),
			zap.String("env", strings.TrimSpace(cfg.Environment)),
			zap.String("version", strings.TrimSpace(cfg.Version)),
		),
	}
	if cfg.IncludeCaller {
		options = append(options, zap.AddCaller())
	}
	if cfg.IncludeStackOnError {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	log, err := zapCfg.Build(options...)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)

	if lc != nil {
		lc.Append(fx.StopHook(func() {
			_ = log.Sync()
		}))
	}
	return log, nil
}

// WithContext adds the request, scheduler run, actor and trace identifiers
// carried by ctx. Without any of them base is returned unchanged.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.L()
	}
	if ctx == nil {
		return base
	}

	var fields []zap.Field
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if runID := obscontext.RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run_id", runID))
	}
	if actorType, actorID := obscontext.ActorFromContext(ctx); actorType != "" {
		fields = append(fields, zap.String("actor_type", actorType), zap.String("actor_id", actorID))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()), zap.String("span_id", sc.SpanID().String()))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func defaultString(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}
