package observability

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestPrometheusMetricsClient(t *testing.T) {
	client := NewPrometheusMetricsClient("style")

	client.RecordAPIOperation("GET", "/api/twin/profile", 200, 15*time.Millisecond)
	client.RecordAPIOperation("GET", "/api/twin/profile", 200, 5*time.Millisecond)
	client.RecordDatabaseOperation("select", "samples", errors.New("down"), time.Millisecond)
	client.RecordEmbedding("amazon.titan-embed-text-v2:0", nil, 120*time.Millisecond)

	api := client.counters["api_requests_total"]
	assert.Equal(t, float64(2), testutil.ToFloat64(api.WithLabelValues("GET", "/api/twin/profile", "200")))

	db := client.counters["database_operations_total"]
	assert.Equal(t, float64(1), testutil.ToFloat64(db.WithLabelValues("select", "samples", "error")))

	t.Run("Handler exposes registry", func(t *testing.T) {
		rec := httptest.NewRecorder()
		client.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		assert.Equal(t, 200, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "style_embedding_requests_total"))
	})

	t.Run("Separate clients do not collide", func(t *testing.T) {
		assert.NotPanics(t, func() {
			NewPrometheusMetricsClient("style").RecordCounter("custom_total", 1, map[string]string{"kind": "a"})
		})
	})
}

func TestStartSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	SetTracer(provider.Tracer("test"))
	defer SetTracer(provider.Tracer("noop"))

	ctx, span := StartSpan(context.Background(), "repository.samples.Create")
	span.SetAttribute("sample.type", "text")
	span.RecordError(errors.New("insert failed"))
	span.End()

	require.NotNil(t, ctx)
	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "repository.samples.Create", ended[0].Name())
	assert.Len(t, ended[0].Events(), 1)
}

func TestInitTracingDisabled(t *testing.T) {
	cleanup, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	require.NoError(t, err)
	cleanup()
}
