// AngelaMos | 2026
// telemetry_test.go

package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/carterperez-dev/legalquota/internal/config"
)

func TestTelemetryDisabledIsNoop(t *testing.T) {
	tel, err := NewTelemetry(context.Background(), config.OtelConfig{}, config.AppConfig{Name: "legalquota"})
	require.NoError(t, err)

	assert.False(t, tel.Enabled())
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, (*Telemetry)(nil).Shutdown(context.Background()))
}

func TestTelemetryBuildsGRPCExporter(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	tel, err := NewTelemetry(context.Background(),
		config.OtelConfig{
			Enabled:    true,
			Endpoint:   "127.0.0.1:4317",
			Insecure:   true,
			SampleRate: 1,
		},
		config.AppConfig{Name: "legalquota", Version: "test", Environment: "development"},
	)
	require.NoError(t, err)
	assert.True(t, tel.Enabled())

	ctx, span := StartSpan(context.Background(), "telemetry.test")
	AddSpanEvent(ctx, "built")
	span.End()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	//nolint:errcheck // export to an absent collector may fail; only the build matters
	_ = tel.Shutdown(shutdownCtx)
}
