package telemetry

import "sync"

// Health statuses, ordered by severity.
const (
	StatusGreen  = "green"
	StatusYellow = "yellow"
	StatusRed    = "red"
)

// HealthSnapshot is the point-in-time health verdict.
type HealthSnapshot struct {
	Status        string             `json:"status"`
	LatencyMS     float64            `json:"latency_ms"`
	ErrorRate     float64            `json:"error_rate"`
	TotalRequests int64              `json:"total_requests"`
	Details       map[string]float64 `json:"details"`
}

// Health grades the runtime from recent request outcomes: red above a 10%
// error rate or a 1 s average latency, yellow above 5% or 500 ms.
type Health struct {
	mu        sync.Mutex
	latencies *ring
	success   int64
	errors    int64
}

// NewHealth returns a tracker over the last sampleSize requests
// (120 when non-positive).
func NewHealth(sampleSize int) *Health {
	if sampleSize <= 0 {
		sampleSize = 120
	}
	return &Health{latencies: newRing(sampleSize)}
}

// RecordSuccess notes one successful request and its latency.
func (h *Health) RecordSuccess(latencyMS float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latencies.push(latencyMS)
	h.success++
}

// RecordFailure notes one failed request and its latency.
func (h *Health) RecordFailure(latencyMS float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latencies.push(latencyMS)
	h.errors++
}

// Snapshot computes the current verdict.
func (h *Health) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := h.success + h.errors
	var errorRate float64
	if total > 0 {
		errorRate = float64(h.errors) / float64(total)
	}
	samples := h.latencies.snapshot()
	avgLatency := meanOf(samples)

	status := StatusGreen
	switch {
	case errorRate > 0.1 || avgLatency > 1000:
		status = StatusRed
	case errorRate > 0.05 || avgLatency > 500:
		status = StatusYellow
	}

	return HealthSnapshot{
		Status:        status,
		LatencyMS:     avgLatency,
		ErrorRate:     errorRate,
		TotalRequests: total,
		Details:       map[string]float64{"max_latency_ms": maxOf(samples)},
	}
}
