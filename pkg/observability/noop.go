package observability

import (
	"time"

	"go.opentelemetry.io/otel/trace"
)

// NoopLogger discards everything
type NoopLogger struct{}

// NewNoopLogger creates a logger that discards all entries
func NewNoopLogger() Logger {
	return &NoopLogger{}
}

func (n *NoopLogger) Debug(msg string, fields map[string]any) {}
func (n *NoopLogger) Info(msg string, fields map[string]any)  {}
func (n *NoopLogger) Warn(msg string, fields map[string]any)  {}
func (n *NoopLogger) Error(msg string, fields map[string]any) {}
func (n *NoopLogger) Fatal(msg string, fields map[string]any) {}
func (n *NoopLogger) Debugf(format string, args ...any)       {}
func (n *NoopLogger) Infof(format string, args ...any)        {}
func (n *NoopLogger) Warnf(format string, args ...any)        {}
func (n *NoopLogger) Errorf(format string, args ...any)       {}
func (n *NoopLogger) Fatalf(format string, args ...any)       {}

func (n *NoopLogger) WithPrefix(prefix string) Logger  { return n }
func (n *NoopLogger) With(fields map[string]any) Logger { return n }

// NoopMetricsClient records nothing
type NoopMetricsClient struct{}

// NewNoopMetricsClient creates a metrics client that records nothing
func NewNoopMetricsClient() MetricsClient {
	return &NoopMetricsClient{}
}

func (n *NoopMetricsClient) RecordCounter(name string, value float64, labels map[string]string)   {}
func (n *NoopMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {}
func (n *NoopMetricsClient) RecordAPIOperation(method, endpoint string, statusCode int, duration time.Duration) {
}
func (n *NoopMetricsClient) RecordDatabaseOperation(operation, table string, err error, duration time.Duration) {
}
func (n *NoopMetricsClient) RecordEmbedding(model string, err error, duration time.Duration) {}
func (n *NoopMetricsClient) Close() error                                                    { return nil }

// NoopSpan is a no-op implementation of the Span interface
type NoopSpan struct{}

func (s *NoopSpan) End()                               {}
func (s *NoopSpan) SetAttribute(key string, value any) {}
func (s *NoopSpan) RecordError(err error)              {}
func (s *NoopSpan) SpanContext() trace.SpanContext     { return trace.SpanContext{} }
