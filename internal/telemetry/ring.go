// Package telemetry tracks execution counters, rolling latency windows and
// health verdicts for the scanner and the autotrader runtime.
package telemetry

// ring is a fixed-size circular buffer of float64 samples. Once full, new
// samples overwrite the oldest.
type ring struct {
	values []float64
	next   int
	full   bool
}

func newRing(size int) *ring {
	if size <= 0 {
		size = 100
	}
	return &ring{values: make([]float64, size)}
}

func (r *ring) push(v float64) {
	r.values[r.next] = v
	r.next = (r.next + 1) % len(r.values)
	if !r.full && r.next == 0 {
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.values)
	}
	return r.next
}

// snapshot returns the live samples. Order is not meaningful; callers
// aggregate or sort as needed.
func (r *ring) snapshot() []float64 {
	out := make([]float64, r.len())
	copy(out, r.values[:r.len()])
	return out
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
