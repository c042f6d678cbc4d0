package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestInstallExportsGlobalSpans(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()

	p, err := Install(ctx, Config{ServiceName: "legalcode-test", Version: "v0.0.1", SampleRate: 1}, exporter)
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	_, span := otel.Tracer("pipeline").Start(ctx, "pipeline.unit")
	span.End()
	require.NoError(t, p.Shutdown(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "pipeline.unit", spans[0].Name)
	name, ok := spans[0].Resource.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "legalcode-test", name.AsString())
}

func TestInitNoneLeavesTracingOff(t *testing.T) {
	p, err := Init(context.Background(), Config{Exporter: ExporterNone})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{Exporter: "zipkin"})
	assert.ErrorContains(t, err, "unknown trace exporter")
}

func TestSamplerRate(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
