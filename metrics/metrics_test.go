package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newManualMeter(t *testing.T) (Meter, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := New(NewDevDefaultConfig("kmis-test"), WithReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	m, err := New(&Config{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, noopMeter{}, m)
}

func TestCounterAndGauge(t *testing.T) {
	m, reader := newManualMeter(t)
	ctx := context.Background()

	c, err := m.Counter("breaker_requests_total", "guarded calls")
	require.NoError(t, err)
	c.Inc(ctx, L("result", "success"))
	c.Add(ctx, 2, L("result", "success"))
	c.Inc(ctx, L("result", "fallback"))

	sum, ok := collect(t, reader, "breaker_requests_total").(metricdata.Sum[int64])
	require.True(t, ok)
	values := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("result"))
		values[v.AsString()] = dp.Value
	}
	assert.Equal(t, int64(3), values["success"])
	assert.Equal(t, int64(1), values["fallback"])

	g, err := m.Gauge("breaker_state", "breaker state")
	require.NoError(t, err)
	g.Set(ctx, 2, L("service", "docai"))
	g.Dec(ctx, L("service", "docai"))

	gauge, ok := collect(t, reader, "breaker_state").(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, 1.0, gauge.DataPoints[0].Value)
}

func TestGinHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, reader := newManualMeter(t)

	httpMetrics, err := NewHTTPServerMetrics(m, "kmis")
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinHTTPMiddleware(httpMetrics))
	r.GET("/documents/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/42", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	sum, ok := collect(t, reader, MetricHTTPServerRequestTotal).(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	route, _ := sum.DataPoints[0].Attributes.Value(LabelRoute)
	class, _ := sum.DataPoints[0].Attributes.Value(LabelStatusClass)
	assert.Equal(t, "/documents/:id", route.AsString())
	assert.Equal(t, "4xx", class.AsString())
}

func TestPrometheusHandler(t *testing.T) {
	m, err := New(&Config{Enabled: true, ServiceName: "kmis"})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	c, err := m.Counter("kmis_documents_indexed", "indexed documents")
	require.NoError(t, err)
	c.Inc(context.Background())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "kmis_documents_indexed"))
}

func TestHTTPStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", HTTPStatusClass(204))
	assert.Equal(t, "5xx", HTTPStatusClass(503))
	assert.Equal(t, "unknown", HTTPStatusClass(42))
	assert.Equal(t, OutcomeSuccess, HTTPOutcome(302))
	assert.Equal(t, OutcomeError, HTTPOutcome(429))
}
