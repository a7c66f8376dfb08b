package fatigue

import "math"

// EARStats summarizes the recent EAR history. Telemetry only.
type EARStats struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// sampleRing keeps the last N float samples
type sampleRing struct {
	buf  []float64
	next int
	n    int
}

func newSampleRing(size int) *sampleRing {
	return &sampleRing{buf: make([]float64, size)}
}

func (r *sampleRing) push(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

func (r *sampleRing) stats() EARStats {
	if r.n == 0 {
		return EARStats{}
	}
	s := EARStats{Samples: r.n, Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for i := 0; i < r.n; i++ {
		v := r.buf[i]
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(r.n)
	return s
}

func (r *sampleRing) clear() {
	r.next, r.n = 0, 0
}
