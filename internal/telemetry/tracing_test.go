package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerProvider(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracerProvider(ctx, "ogproxy-test", "v0.0.0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	_, span := otel.Tracer("test").Start(ctx, "probe")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.SpanContext().IsSampled())
}
