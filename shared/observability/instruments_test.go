package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func sumByAttr(rm metricdata.ResourceMetrics, name string, key attribute.Key, value string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(key); ok && v.AsString() == value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestRecordStreamLines(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	inst, err := NewInstruments(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	inst.RecordStreamLines(ctx, LineSkipped, 2)
	inst.RecordStreamLines(ctx, LineBare, 3)
	inst.RecordStreamLines(ctx, LineMalformed, 0)

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumByAttr(rm, "characterai.client.stream.lines", "kind", LineSkipped))
	assert.Equal(t, int64(3), sumByAttr(rm, "characterai.client.stream.lines", "kind", LineBare))
	assert.Equal(t, int64(0), sumByAttr(rm, "characterai.client.stream.lines", "kind", LineMalformed))
}

func TestRecordRequest(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	inst, err := NewInstruments(mp.Meter("test"))
	require.NoError(t, err)

	inst.RecordRequest(context.Background(), http.MethodPost, "/chat/streaming/", 200, 120*time.Millisecond)

	rm := collect(t, reader)
	assert.Equal(t, int64(1), sumByAttr(rm, "characterai.client.requests", "endpoint", "/chat/streaming/"))
}

func TestDefaultInstruments_NeverNil(t *testing.T) {
	inst := DefaultInstruments()
	require.NotNil(t, inst)

	inst.RecordStreamLines(context.Background(), LineSkipped, 1)
}

func TestSetupPrometheusMetrics_MountsHandler(t *testing.T) {
	mux := http.NewServeMux()
	mp, err := SetupPrometheusMetrics(mux)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
