package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupExportsSpansAndMetricsOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(&buf, "test")
	require.NoError(t, err)

	ctx := context.Background()
	_, span := otel.Tracer("codescape.test").Start(ctx, "ingest")
	span.End()

	counter, err := otel.Meter("codescape.test").Int64Counter("codescape_test_total")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	require.NoError(t, shutdown(ctx))
	out := buf.String()
	assert.Contains(t, out, `"Name":"ingest"`)
	assert.Contains(t, out, "codescape_test_total")
	assert.Contains(t, out, ServiceName)
}
