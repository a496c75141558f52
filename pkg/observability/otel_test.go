package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestInitOTel_Disabled(t *testing.T) {
	var buf bytes.Buffer
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NewLogger(InfoLevel, &buf))

	require.NoError(t, err)
	assert.Nil(t, providers)
	assert.Contains(t, buf.String(), "OpenTelemetry is disabled")
}

func TestInitOTel_Enabled(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	tests := []struct {
		name string
		cfg  OTelConfig
	}{
		// exporters connect lazily, so no collector is needed
		{"insecure", OTelConfig{Enabled: true, Endpoint: "localhost:4317", ServiceName: "foundry", ServiceVersion: "test", Insecure: true}},
		{"sampled", OTelConfig{Enabled: true, Endpoint: "localhost:4317", ServiceName: "foundry", Insecure: true, SampleRatio: 0.25}},
		{"no service name", OTelConfig{Enabled: true, Endpoint: "localhost:4317", Insecure: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NopLogger()
			providers, err := InitOTel(context.Background(), tt.cfg, logger)
			require.NoError(t, err)
			require.NotNil(t, providers)
			assert.NotNil(t, providers.TracerProvider)
			assert.NotNil(t, providers.MeterProvider)

			fields := otel.GetTextMapPropagator().Fields()
			assert.Contains(t, fields, "traceparent")

			_ = ShutdownOTel(context.Background(), providers, logger)
		})
	}
}

func TestShutdownOTel(t *testing.T) {
	logger := NopLogger()

	assert.NoError(t, ShutdownOTel(context.Background(), nil, logger))
	assert.NoError(t, ShutdownOTel(context.Background(), &OTelProviders{}, logger))

	tp := sdktrace.NewTracerProvider()
	require.NoError(t, ShutdownOTel(context.Background(), &OTelProviders{TracerProvider: tp}, logger))

	// a stopped provider hands out non-recording spans
	_, span := tp.Tracer("test").Start(context.Background(), "after-shutdown")
	assert.False(t, span.IsRecording())
}

func TestUpdateLoggerWithTraceContext(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	t.Run("no span", func(t *testing.T) {
		logger := NopLogger()
		assert.Same(t, logger, UpdateLoggerWithTraceContext(context.Background(), logger))
	})

	t.Run("non-recording span", func(t *testing.T) {
		ctx := trace.ContextWithSpan(context.Background(), trace.SpanFromContext(context.Background()))
		logger := NopLogger()
		assert.Same(t, logger, UpdateLoggerWithTraceContext(ctx, logger))
	})

	t.Run("recording span", func(t *testing.T) {
		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		var buf bytes.Buffer
		UpdateLoggerWithTraceContext(ctx, NewLogger(InfoLevel, &buf).WithField("component", "scoper")).Info("traced")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
		assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
		assert.Equal(t, "scoper", entry["component"])
	})

	t.Run("FromContext carries trace IDs", func(t *testing.T) {
		ctx, span := tp.Tracer("test").Start(context.Background(), "request")
		defer span.End()

		var buf bytes.Buffer
		ctx = WithLogger(ctx, NewLogger(InfoLevel, &buf))
		FromContext(ctx).Info("handled")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	})
}

func TestTracer_NoopWithoutInit(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "noop")
	defer span.End()
	assert.NotNil(t, span)
}
