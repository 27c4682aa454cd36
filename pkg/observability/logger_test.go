package observability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*ZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewZapLoggerFrom(zap.New(core)), logs
}

func TestZapLogger_Levels(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.InfoLevel)

	logger.Debug("debug message", map[string]any{"key": "value"})
	logger.Info("info message", map[string]any{"key": "value"})
	logger.Warn("warn message", nil)
	logger.Error("error message", map[string]any{"error": errors.New("boom")})

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "info message", entries[0].Message)
	assert.Equal(t, "value", entries[0].ContextMap()["key"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestZapLogger_WithAndPrefix(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	child := logger.WithPrefix("repository").With(map[string]any{"table": "samples"})
	child.Infof("loaded %d rows", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "repository", entries[0].LoggerName)
	assert.Equal(t, "loaded 3 rows", entries[0].Message)
	assert.Equal(t, "samples", entries[0].ContextMap()["table"])
}

func TestNewZapLogger(t *testing.T) {
	t.Run("Console format", func(t *testing.T) {
		logger, err := NewZapLogger(LoggingConfig{Level: "debug", Format: "console"})
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("Unknown level", func(t *testing.T) {
		_, err := NewZapLogger(LoggingConfig{Level: "verbose"})
		assert.Error(t, err)
	})
}

func TestNoopLogger(t *testing.T) {
	logger := NewNoopLogger()
	assert.NotPanics(t, func() {
		logger.Info("ignored", map[string]any{"k": 1})
		logger.WithPrefix("x").With(nil).Errorf("ignored %d", 1)
	})
}
