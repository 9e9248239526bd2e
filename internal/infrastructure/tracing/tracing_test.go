package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nerrad567/garage-relay/internal/infrastructure/config"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: false}, "test")
	require.NoError(t, err)
	defer shutdown(context.Background()) //nolint:errcheck

	_, ok := otel.GetTracerProvider().(noop.TracerProvider)
	assert.True(t, ok, "expected noop provider, got %T", otel.GetTracerProvider())
}

func TestSetup_NoopExporter(t *testing.T) {
	for _, exporter := range []string{ExporterNoop, ""} {
		shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: true, Exporter: exporter}, "test")
		require.NoError(t, err)
		require.NoError(t, shutdown(context.Background()))

		_, ok := otel.GetTracerProvider().(noop.TracerProvider)
		assert.True(t, ok, "exporter %q", exporter)
	}
}

func TestSetup_StdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := setup(context.Background(), config.TracingConfig{Enabled: true, Exporter: ExporterStdout}, "1.2.3", &buf)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "door.toggle")
	RecordError(span, errors.New("relay stuck"))
	span.End()

	require.NoError(t, shutdown(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "door.toggle")
	assert.Contains(t, out, "relay stuck")
	assert.Contains(t, out, "1.2.3")

	otel.SetTracerProvider(noop.NewTracerProvider())
}

func TestSetup_UnsupportedExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TracingConfig{Enabled: true, Exporter: "zipkin"}, "test")
	assert.ErrorContains(t, err, "zipkin")
}
