package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
)

type testProvider struct {
	*tracesdk.TracerProvider
}

func (t *testProvider) Close() error {
	return t.TracerProvider.Shutdown(context.Background())
}

func TestInit(t *testing.T) {
	originalProvider := otel.GetTracerProvider()
	originalPropagator := otel.GetTextMapPropagator()
	defer func() {
		otel.SetTracerProvider(originalProvider)
		otel.SetTextMapPropagator(originalPropagator)
	}()

	tp := &testProvider{TracerProvider: tracesdk.NewTracerProvider()}
	defer tp.Close()

	provider, err := Init(func() (Provider, error) { return tp, nil })
	require.NoError(t, err)
	assert.Same(t, tp, provider)
	assert.Same(t, tp, otel.GetTracerProvider())

	carrier := propagation.MapCarrier{}
	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	span.End()
	assert.NotEmpty(t, carrier.Get("traceparent"))
}

func TestInit_BuilderError(t *testing.T) {
	originalProvider := otel.GetTracerProvider()

	provider, err := Init(func() (Provider, error) { return nil, assert.AnError })
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to load tracing provider")
	assert.ErrorIs(t, err, assert.AnError)
	assert.IsType(t, NoopProvider{}, provider)
	assert.Same(t, originalProvider, otel.GetTracerProvider(), "globals untouched")
}

func TestNoopProvider(t *testing.T) {
	var p Provider = NoopProvider{}
	assert.NoError(t, p.Close())

	_, span := p.Tracer("test").Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}
