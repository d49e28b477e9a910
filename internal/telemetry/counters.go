package telemetry

import "sync"

// Counters is the execution metrics registry: named monotonic counters
// plus a rolling window of the last 100 observed latencies.
type Counters struct {
	mu        sync.Mutex
	counters  map[string]int64
	latencies *ring
}

// NewCounters returns an empty registry.
func NewCounters() *Counters {
	return &Counters{
		counters:  make(map[string]int64),
		latencies: newRing(100),
	}
}

// Incr bumps the named counter by one.
func (c *Counters) Incr(key string) {
	c.Add(key, 1)
}

// Add bumps the named counter by delta.
func (c *Counters) Add(key string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key] += delta
}

// ObserveLatency records one latency sample in milliseconds and counts the
// observation under latency_<key>.
func (c *Counters) ObserveLatency(key string, ms float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters["latency_"+key]++
	c.latencies.push(ms)
}

// Snapshot returns all counters plus latency_avg and latency_max over the
// rolling window when any latencies have been observed.
func (c *Counters) Snapshot() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]float64, len(c.counters)+2)
	for key, value := range c.counters {
		out[key] = float64(value)
	}
	if samples := c.latencies.snapshot(); len(samples) > 0 {
		out["latency_avg"] = meanOf(samples)
		out["latency_max"] = maxOf(samples)
	}
	return out
}
