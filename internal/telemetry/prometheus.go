package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// PromMetrics exposes the pipeline to Prometheus. Every instance owns its
// registry so tests can build them freely.
type PromMetrics struct {
	registry *prometheus.Registry

	StageDuration *prometheus.HistogramVec
	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	SetupsFound   *prometheus.CounterVec
	GateDrops     *prometheus.CounterVec
	OrdersTotal   *prometheus.CounterVec
	ActiveScans   prometheus.Gauge
	TotalScans    prometheus.Counter
}

// Cache types reported to the hit-ratio gauge.
var cacheTypes = []string{"markets", "ohlcv", "ticker", "timeframe"}

// NewPromMetrics builds and registers the full metric set.
func NewPromMetrics() *PromMetrics {
	m := &PromMetrics{
		registry: prometheus.NewRegistry(),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snipetrade_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"stage", "result"},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snipetrade_cache_hit_ratio",
				Help: "Current cache hit ratio (0.0 to 1.0)",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snipetrade_cache_hits_total",
				Help: "Total number of cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snipetrade_cache_misses_total",
				Help: "Total number of cache misses by cache type",
			},
			[]string{"cache_type"},
		),

		SetupsFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snipetrade_setups_total",
				Help: "Total number of qualified setups by timeframe",
			},
			[]string{"timeframe"},
		),

		GateDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snipetrade_gate_drops_total",
				Help: "Total number of candidates dropped by quality gate",
			},
			[]string{"gate"},
		),

		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snipetrade_orders_total",
				Help: "Total number of orders by outcome",
			},
			[]string{"status"},
		),

		ActiveScans: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snipetrade_active_scans",
				Help: "Number of currently active scans",
			},
		),

		TotalScans: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "snipetrade_scans_total",
				Help: "Total number of scans initiated",
			},
		),
	}

	m.registry.MustRegister(
		m.StageDuration,
		m.CacheHitRatio,
		m.CacheHits,
		m.CacheMisses,
		m.SetupsFound,
		m.GateDrops,
		m.OrdersTotal,
		m.ActiveScans,
		m.TotalScans,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records one stage execution.
func (m *PromMetrics) ObserveStage(stage Stage, result string, d time.Duration) {
	m.StageDuration.WithLabelValues(string(stage), result).Observe(d.Seconds())
}

// RecordCacheHit counts a hit and refreshes the hit-ratio gauge.
func (m *PromMetrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
	m.updateCacheHitRatio()
}

// RecordCacheMiss counts a miss and refreshes the hit-ratio gauge.
func (m *PromMetrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
	m.updateCacheHitRatio()
}

// RecordSetup counts one qualified setup.
func (m *PromMetrics) RecordSetup(timeframe string) {
	m.SetupsFound.WithLabelValues(timeframe).Inc()
}

// RecordGateDrop counts one gate rejection.
func (m *PromMetrics) RecordGateDrop(gate string) {
	m.GateDrops.WithLabelValues(gate).Inc()
}

// RecordOrder counts one order outcome ("placed", "filled", "failed", ...).
func (m *PromMetrics) RecordOrder(status string) {
	m.OrdersTotal.WithLabelValues(status).Inc()
}

// ScanStarted bumps the scan counters; the returned func marks completion.
func (m *PromMetrics) ScanStarted() func() {
	m.ActiveScans.Inc()
	m.TotalScans.Inc()
	return m.ActiveScans.Dec
}

// updateCacheHitRatio recomputes hits/(hits+misses) across cache types by
// reading the counter pairs back out of the registry.
func (m *PromMetrics) updateCacheHitRatio() {
	var sample io_prometheus_client.Metric
	var hits, misses float64

	for _, cacheType := range cacheTypes {
		if counter, err := m.CacheHits.GetMetricWithLabelValues(cacheType); err == nil {
			if err := counter.Write(&sample); err == nil {
				hits += sample.GetCounter().GetValue()
			}
		}
		if counter, err := m.CacheMisses.GetMetricWithLabelValues(cacheType); err == nil {
			if err := counter.Write(&sample); err == nil {
				misses += sample.GetCounter().GetValue()
			}
		}
	}

	if total := hits + misses; total > 0 {
		m.CacheHitRatio.Set(hits / total)
	}
}
