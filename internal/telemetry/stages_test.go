package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistogram_Percentile_Interpolates(t *testing.T) {
	h := NewHistogram(StageScore, 10)
	for _, ms := range []int{10, 20, 30, 40} {
		h.Record(time.Duration(ms) * time.Millisecond)
	}

	assert.InDelta(t, 10.0, h.Percentile(0), 1e-9)
	assert.InDelta(t, 25.0, h.Percentile(0.5), 1e-9)
	assert.InDelta(t, 40.0, h.Percentile(1), 1e-9)
}

func TestHistogram_Percentile_Empty(t *testing.T) {
	h := NewHistogram(StageData, 10)

	assert.Zero(t, h.Percentile(0.95))
	assert.Zero(t, h.Count())
}

func TestHistogram_WindowWraps(t *testing.T) {
	h := NewHistogram(StageData, 3)
	for _, ms := range []int{1, 2, 3, 4} {
		h.Record(time.Duration(ms) * time.Millisecond)
	}

	assert.Equal(t, 3, h.Count())
	// The 1 ms sample has been evicted.
	assert.InDelta(t, 2.0, h.Percentile(0), 1e-9)
	assert.InDelta(t, 4.0, h.Percentile(1), 1e-9)
}

func TestHistogram_Metrics(t *testing.T) {
	h := NewHistogram(StagePlan, 10)
	h.Record(8 * time.Millisecond)

	m := h.Metrics()
	assert.Equal(t, StagePlan, m.Stage)
	assert.Equal(t, 1, m.Count)
	assert.InDelta(t, 8.0, m.P50, 1e-9)
	assert.InDelta(t, 8.0, m.P99, 1e-9)
}

func TestStageTracker_Metrics_SeedsKnownStages(t *testing.T) {
	tracker := NewStageTracker()

	metrics := tracker.Metrics()
	require.Len(t, metrics, 5)
	for _, stage := range []Stage{StageData, StageScore, StageGate, StagePlan, StageOrder} {
		m, ok := metrics[stage]
		require.True(t, ok, "missing stage %s", stage)
		assert.Zero(t, m.Count)
	}
}

func TestStageTracker_Record_CreatesUnknownStage(t *testing.T) {
	tracker := NewStageTracker()
	tracker.Record(Stage("warmup"), 5*time.Millisecond)

	metrics := tracker.Metrics()
	require.Contains(t, metrics, Stage("warmup"))
	assert.Equal(t, 1, metrics[Stage("warmup")].Count)
}

func TestStageTracker_Timer_RecordsElapsed(t *testing.T) {
	tracker := NewStageTracker()

	timer := tracker.StartTimer(StageGate)
	elapsed := timer.Stop()

	assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	assert.Equal(t, 1, tracker.Metrics()[StageGate].Count)
}
