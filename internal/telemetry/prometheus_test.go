package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func familyByName(families []*io_prometheus_client.MetricFamily, name string) *io_prometheus_client.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func gaugeValue(t *testing.T, m *PromMetrics, name string) float64 {
	t.Helper()
	families, err := m.registry.Gather()
	require.NoError(t, err)
	family := familyByName(families, name)
	require.NotNil(t, family, "missing family %s", name)
	require.NotEmpty(t, family.GetMetric())
	return family.GetMetric()[0].GetGauge().GetValue()
}

func TestPromMetrics_ObserveStage(t *testing.T) {
	m := NewPromMetrics()
	m.ObserveStage(StageScore, "ok", 25*time.Millisecond)
	m.ObserveStage(StageScore, "ok", 75*time.Millisecond)

	families, err := m.registry.Gather()
	require.NoError(t, err)
	family := familyByName(families, "snipetrade_stage_duration_seconds")
	require.NotNil(t, family)
	require.Len(t, family.GetMetric(), 1)

	hist := family.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 0.1, hist.GetSampleSum(), 1e-9)
}

func TestPromMetrics_CacheHitRatio(t *testing.T) {
	m := NewPromMetrics()
	m.RecordCacheHit("ohlcv")
	m.RecordCacheHit("ohlcv")
	m.RecordCacheMiss("markets")

	assert.InDelta(t, 2.0/3.0, gaugeValue(t, m, "snipetrade_cache_hit_ratio"), 1e-9)

	m.RecordCacheMiss("ohlcv")
	assert.InDelta(t, 0.5, gaugeValue(t, m, "snipetrade_cache_hit_ratio"), 1e-9)
}

func TestPromMetrics_ScanStarted(t *testing.T) {
	m := NewPromMetrics()

	done := m.ScanStarted()
	assert.Equal(t, 1.0, gaugeValue(t, m, "snipetrade_active_scans"))

	done()
	assert.Zero(t, gaugeValue(t, m, "snipetrade_active_scans"))

	families, err := m.registry.Gather()
	require.NoError(t, err)
	family := familyByName(families, "snipetrade_scans_total")
	require.NotNil(t, family)
	assert.Equal(t, 1.0, family.GetMetric()[0].GetCounter().GetValue())
}

func TestPromMetrics_Handler(t *testing.T) {
	m := NewPromMetrics()
	m.RecordOrder("placed")
	m.RecordGateDrop("rr")
	m.RecordSetup("1h")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `snipetrade_orders_total{status="placed"} 1`)
	assert.Contains(t, body, `snipetrade_gate_drops_total{gate="rr"} 1`)
	assert.Contains(t, body, `snipetrade_setups_total{timeframe="1h"} 1`)
}
