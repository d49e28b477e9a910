package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealth_Snapshot_Empty(t *testing.T) {
	h := NewHealth(0)

	snap := h.Snapshot()
	assert.Equal(t, StatusGreen, snap.Status)
	assert.Zero(t, snap.ErrorRate)
	assert.Zero(t, snap.LatencyMS)
	assert.Zero(t, snap.TotalRequests)
	assert.Zero(t, snap.Details["max_latency_ms"])
}

func TestHealth_Snapshot_GreenAtThresholds(t *testing.T) {
	h := NewHealth(40)
	for i := 0; i < 19; i++ {
		h.RecordSuccess(500)
	}
	h.RecordFailure(500)

	// Exactly 5% errors and exactly 500 ms average are still green.
	snap := h.Snapshot()
	assert.Equal(t, StatusGreen, snap.Status)
	assert.InDelta(t, 0.05, snap.ErrorRate, 1e-9)
	assert.Equal(t, 500.0, snap.LatencyMS)
	assert.Equal(t, int64(20), snap.TotalRequests)
}

func TestHealth_Snapshot_YellowOnLatency(t *testing.T) {
	h := NewHealth(10)
	h.RecordSuccess(600)

	snap := h.Snapshot()
	assert.Equal(t, StatusYellow, snap.Status)
	assert.Equal(t, 600.0, snap.LatencyMS)
}

func TestHealth_Snapshot_YellowOnErrorRate(t *testing.T) {
	h := NewHealth(20)
	for i := 0; i < 9; i++ {
		h.RecordSuccess(10)
	}
	h.RecordFailure(10)

	snap := h.Snapshot()
	assert.Equal(t, StatusYellow, snap.Status)
	assert.InDelta(t, 0.1, snap.ErrorRate, 1e-9)
}

func TestHealth_Snapshot_RedOnLatency(t *testing.T) {
	h := NewHealth(10)
	h.RecordSuccess(1500)

	snap := h.Snapshot()
	assert.Equal(t, StatusRed, snap.Status)
}

func TestHealth_Snapshot_RedOnErrorRate(t *testing.T) {
	h := NewHealth(20)
	for i := 0; i < 8; i++ {
		h.RecordSuccess(10)
	}
	h.RecordFailure(10)
	h.RecordFailure(10)

	snap := h.Snapshot()
	assert.Equal(t, StatusRed, snap.Status)
	assert.InDelta(t, 0.2, snap.ErrorRate, 1e-9)
}

func TestHealth_Snapshot_TracksMaxLatency(t *testing.T) {
	h := NewHealth(10)
	h.RecordSuccess(50)
	h.RecordSuccess(250)
	h.RecordFailure(90)

	snap := h.Snapshot()
	assert.Equal(t, 250.0, snap.Details["max_latency_ms"])
}
