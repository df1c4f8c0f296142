package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/godilite/qa-review-engine/internal/config"
)

func preserveOTelGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	prevExporter := newExporter
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
		newExporter = prevExporter
	})
}

func TestSetupOTelDisabled(t *testing.T) {
	preserveOTelGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTelConfig{Enabled: false}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestSetupOTelExportsSpans(t *testing.T) {
	preserveOTelGlobals(t)
	exp := tracetest.NewInMemoryExporter()
	newExporter = func(ctx context.Context, opts ...otlptracegrpc.Option) (sdktrace.SpanExporter, error) {
		return exp, nil
	}

	shutdown, err := SetupOTel(context.Background(), config.OTelConfig{
		Enabled:     true,
		Endpoint:    "localhost:4317",
		Insecure:    true,
		ServiceName: "qa-review-engine",
		SampleRatio: 7,
	}, "v0.0.1")
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "ReviewService.process")
	span.End()

	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "ReviewService.process", spans[0].Name)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupOTelExporterFailure(t *testing.T) {
	preserveOTelGlobals(t)
	newExporter = func(ctx context.Context, opts ...otlptracegrpc.Option) (sdktrace.SpanExporter, error) {
		return nil, errors.New("dial failed")
	}

	_, err := SetupOTel(context.Background(), config.OTelConfig{Enabled: true, Endpoint: "x:1"}, "v")
	assert.ErrorContains(t, err, "dial failed")
}
