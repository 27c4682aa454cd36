package observability

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements Logger on top of a zap.Logger
type ZapLogger struct {
	zap    *zap.Logger
	prefix string
}

// NewLogger creates a JSON logger at INFO level named after the component
func NewLogger(name string) Logger {
	logger, err := NewZapLogger(LoggingConfig{Level: "info", Format: "json"})
	if err != nil {
		// The static config above cannot fail to build
		return NewNoopLogger()
	}
	return logger.WithPrefix(name)
}

// NewZapLogger builds a logger from configuration
func NewZapLogger(cfg LoggingConfig) (*ZapLogger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig = encoderCfg
	zcfg.Encoding = "json"
	if cfg.Format == "console" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	z, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return &ZapLogger{zap: z}, nil
}

// NewZapLoggerFrom wraps an existing zap.Logger, mostly useful in tests with zaptest/observer
func NewZapLoggerFrom(z *zap.Logger) *ZapLogger {
	return &ZapLogger{zap: z}
}

func parseLevel(level string) (zapcore.Level, error) {
	switch LogLevel(strings.ToUpper(level)) {
	case "", LogLevelInfo:
		return zapcore.InfoLevel, nil
	case LogLevelDebug:
		return zapcore.DebugLevel, nil
	case LogLevelWarn, "WARNING":
		return zapcore.WarnLevel, nil
	case LogLevelError:
		return zapcore.ErrorLevel, nil
	case LogLevelFatal:
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// toFields converts a field map into zap fields with a stable key order
func toFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}

// Debug logs a debug message
func (l *ZapLogger) Debug(msg string, fields map[string]any) {
	l.zap.Debug(msg, toFields(fields)...)
}

// Info logs an info message
func (l *ZapLogger) Info(msg string, fields map[string]any) {
	l.zap.Info(msg, toFields(fields)...)
}

// Warn logs a warning message
func (l *ZapLogger) Warn(msg string, fields map[string]any) {
	l.zap.Warn(msg, toFields(fields)...)
}

// Error logs an error message
func (l *ZapLogger) Error(msg string, fields map[string]any) {
	l.zap.Error(msg, toFields(fields)...)
}

// Fatal logs a fatal message and exits
func (l *ZapLogger) Fatal(msg string, fields map[string]any) {
	l.zap.Fatal(msg, toFields(fields)...)
}

// Debugf logs a formatted debug message
func (l *ZapLogger) Debugf(format string, args ...any) {
	l.zap.Sugar().Debugf(format, args...)
}

// Infof logs a formatted info message
func (l *ZapLogger) Infof(format string, args ...any) {
	l.zap.Sugar().Infof(format, args...)
}

// Warnf logs a formatted warning message
func (l *ZapLogger) Warnf(format string, args ...any) {
	l.zap.Sugar().Warnf(format, args...)
}

// Errorf logs a formatted error message
func (l *ZapLogger) Errorf(format string, args ...any) {
	l.zap.Sugar().Errorf(format, args...)
}

// Fatalf logs a formatted fatal message and exits
func (l *ZapLogger) Fatalf(format string, args ...any) {
	l.zap.Sugar().Fatalf(format, args...)
}

// WithPrefix returns a logger named after the given component
func (l *ZapLogger) WithPrefix(prefix string) Logger {
	return &ZapLogger{zap: l.zap.Named(prefix), prefix: prefix}
}

// With returns a logger that adds the given fields to every entry
func (l *ZapLogger) With(fields map[string]any) Logger {
	return &ZapLogger{zap: l.zap.With(toFields(fields)...), prefix: l.prefix}
}

// Sync flushes buffered entries
func (l *ZapLogger) Sync() error {
	return l.zap.Sync()
}
