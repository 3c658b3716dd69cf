package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestShutdownWithoutInit(t *testing.T) {
	assert.NoError(t, Shutdown(context.Background()))
}

func TestInitStartSpanShutdown(t *testing.T) {
	require.NoError(t, Init(Config{ServiceName: "conduit-test", Version: "test", SampleRatio: 1}))
	// Second call is a no-op while the provider is installed.
	require.NoError(t, Init(Config{ServiceName: "other"}))

	ctx, span := StartSpan(context.Background(), "unit.op", attribute.String("k", "v"))
	defer span.End()

	assert.True(t, span.SpanContext().IsValid())
	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))

	assert.NoError(t, Shutdown(context.Background()))
}
