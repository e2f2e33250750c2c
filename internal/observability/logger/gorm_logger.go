package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig configures the GORM zap logger.
type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// QuietDuplicates logs unique violations at debug. Concurrent generators
	// racing on the same origin key hit them routinely and recover.
	QuietDuplicates bool
}

func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:           gormlogger.Warn,
		SlowThreshold:   200 * time.Millisecond,
		QuietDuplicates: true,
	}
}

// GormLogger routes GORM output through zap with the request, run and actor
// correlation fields of the calling context. Bound parameters are dropped.
type GormLogger struct {
	base *zap.Logger
	cfg  GormLoggerConfig
}

// NewGormLogger builds a GormLogger. A nil base falls back to the global logger.
func NewGormLogger(base *zap.Logger, cfg GormLoggerConfig) *GormLogger {
	return &GormLogger{base: base, cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < min {
		return
	}
	var fields []zap.Field
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	l.logger(ctx).Log(level, msg, fields...)
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	level, ok := l.traceLevel(elapsed, err)
	if !ok {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", strings.TrimSpace(sql)),
		zap.String("operation", operationFromSQL(sql)),
		zap.String("table", tableFromSQL(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.logger(ctx).Log(level, "gorm.query", fields...)
}

func (l *GormLogger) traceLevel(elapsed time.Duration, err error) (zapcore.Level, bool) {
	switch {
	case err != nil && errors.Is(err, gorm.ErrRecordNotFound):
		// lookups report absence through domain sentinels
		return zapcore.DebugLevel, l.cfg.Level >= gormlogger.Info
	case err != nil && l.cfg.QuietDuplicates && errors.Is(err, gorm.ErrDuplicatedKey):
		return zapcore.DebugLevel, l.cfg.Level >= gormlogger.Info
	case err != nil:
		return zapcore.ErrorLevel, l.cfg.Level >= gormlogger.Error
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold:
		return zapcore.WarnLevel, l.cfg.Level >= gormlogger.Warn
	default:
		return zapcore.DebugLevel, l.cfg.Level >= gormlogger.Info
	}
}

// ParamsFilter strips bound values: amounts and descriptions stay out of logs.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) logger(ctx context.Context) *zap.Logger {
	base := l.base
	if base == nil {
		base = zap.L()
	}
	return WithContext(ctx, base).With(zap.String("component", "gorm"))
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		switch token = strings.Trim(token, "();"); token {
		case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE":
			return token
		}
	}
	return "UNKNOWN"
}

// tableFromSQL returns the first table named after FROM, INTO or UPDATE.
func tableFromSQL(sql string) string {
	tokens := strings.Fields(sql)
	for i := 0; i < len(tokens)-1; i++ {
		switch strings.ToUpper(tokens[i]) {
		case "FROM", "INTO", "UPDATE":
			return strings.Trim(tokens[i+1], "`\"();")
		}
	}
	return ""
}

var _ gormlogger.Interface = (*GormLogger)(nil)
