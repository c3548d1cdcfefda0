package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "racketoutlet-be", "test", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.False(t, isSDK)
}

func TestInitTracer_Enabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTracer(context.Background(), "racketoutlet-be", "test", "http://127.0.0.1:4318")
	require.NoError(t, err)

	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, isSDK)

	// nothing was recorded, so shutdown has nothing to export
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, shutdown(ctx))
}

func TestInitSentry(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		flush, err := InitSentry("", "test", "")
		require.NoError(t, err)
		assert.NotPanics(t, flush)
	})

	t.Run("Invalid DSN", func(t *testing.T) {
		_, err := InitSentry("not-a-dsn", "test", "")
		assert.Error(t, err)
	})
}
