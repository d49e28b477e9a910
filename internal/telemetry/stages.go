package telemetry

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Stage names the pipeline phases whose latencies are tracked separately.
type Stage string

const (
	StageData  Stage = "data"
	StageScore Stage = "score"
	StageGate  Stage = "gate"
	StagePlan  Stage = "plan"
	StageOrder Stage = "order"
)

// Histogram tracks latencies for one stage over a rolling window and
// answers percentile queries.
type Histogram struct {
	mu     sync.Mutex
	stage  Stage
	window *ring
}

// NewHistogram returns a histogram over the last window samples
// (1000 when non-positive).
func NewHistogram(stage Stage, window int) *Histogram {
	if window <= 0 {
		window = 1000
	}
	return &Histogram{stage: stage, window: newRing(window)}
}

// Record adds one measurement.
func (h *Histogram) Record(d time.Duration) {
	ms := float64(d.Nanoseconds()) / 1e6
	h.mu.Lock()
	defer h.mu.Unlock()
	h.window.push(ms)
}

// Percentile returns the p-th percentile (p in [0,1]) with linear
// interpolation between neighbouring samples, 0 when empty.
func (h *Histogram) Percentile(p float64) float64 {
	h.mu.Lock()
	values := h.window.snapshot()
	h.mu.Unlock()

	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)

	index := p * float64(len(values)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return values[lower]
	}
	weight := index - float64(lower)
	return values[lower]*(1-weight) + values[upper]*weight
}

// Count returns the number of live samples.
func (h *Histogram) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.window.len()
}

// StageMetrics is the serialized percentile summary for one stage.
type StageMetrics struct {
	Stage Stage   `json:"stage"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
	Count int     `json:"count"`
}

// Metrics summarizes the histogram.
func (h *Histogram) Metrics() StageMetrics {
	return StageMetrics{
		Stage: h.stage,
		P50:   h.Percentile(0.5),
		P95:   h.Percentile(0.95),
		P99:   h.Percentile(0.99),
		Count: h.Count(),
	}
}

// StageTracker holds one histogram per pipeline stage, creating them
// lazily for stages it has not seen.
type StageTracker struct {
	mu         sync.RWMutex
	histograms map[Stage]*Histogram
}

// NewStageTracker seeds histograms for the known pipeline stages.
func NewStageTracker() *StageTracker {
	t := &StageTracker{histograms: make(map[Stage]*Histogram)}
	for _, stage := range []Stage{StageData, StageScore, StageGate, StagePlan, StageOrder} {
		t.histograms[stage] = NewHistogram(stage, 1000)
	}
	return t
}

// Record adds a measurement for the stage.
func (t *StageTracker) Record(stage Stage, d time.Duration) {
	t.mu.RLock()
	hist, ok := t.histograms[stage]
	t.mu.RUnlock()

	if !ok {
		t.mu.Lock()
		hist, ok = t.histograms[stage]
		if !ok {
			hist = NewHistogram(stage, 1000)
			t.histograms[stage] = hist
		}
		t.mu.Unlock()
	}
	hist.Record(d)
}

// StartTimer begins timing one operation in the stage.
func (t *StageTracker) StartTimer(stage Stage) *StageTimer {
	return &StageTimer{tracker: t, stage: stage, start: time.Now()}
}

// Metrics summarizes every tracked stage.
func (t *StageTracker) Metrics() map[Stage]StageMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[Stage]StageMetrics, len(t.histograms))
	for stage, hist := range t.histograms {
		out[stage] = hist.Metrics()
	}
	return out
}

// StageTimer measures a single operation; Stop records it.
type StageTimer struct {
	tracker *StageTracker
	stage   Stage
	start   time.Time
}

// Stop records the elapsed time and returns it.
func (st *StageTimer) Stop() time.Duration {
	elapsed := time.Since(st.start)
	st.tracker.Record(st.stage, elapsed)
	return elapsed
}
