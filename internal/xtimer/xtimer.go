// Package xtimer records build-phase wall-clock histograms, grounded on
// the teacher's z.HistogramData (min/max/count/sum over power-of-two
// buckets). It is observability only: nothing in build correctness reads
// these numbers back.
package xtimer

import (
	"fmt"
	"time"
)

// Phase names the build stages a caller may want separate timings for.
type Phase string

const (
	PhaseSketch  Phase = "sketch"
	PhaseLayout  Phase = "layout"
	PhaseInsert  Phase = "insert"
)

// Recorder accumulates per-phase elapsed-time histograms across however
// many times a phase runs in one build (e.g. one sketch pass per user
// bin).
type Recorder struct {
	buckets map[Phase][]int64 // power-of-two microsecond buckets
	count   map[Phase]int64
	sum     map[Phase]int64
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		buckets: make(map[Phase][]int64),
		count:   make(map[Phase]int64),
		sum:     make(map[Phase]int64),
	}
}

// Observe folds one elapsed duration into phase's histogram.
func (r *Recorder) Observe(phase Phase, d time.Duration) {
	us := d.Microseconds()
	r.count[phase]++
	r.sum[phase] += us

	b := r.buckets[phase]
	bucket := bucketFor(us)
	for len(b) <= bucket {
		b = append(b, 0)
	}
	b[bucket]++
	r.buckets[phase] = b
}

// Track starts timing phase and returns a func to call when it ends.
func (r *Recorder) Track(phase Phase) func() {
	start := timeNow()
	return func() { r.Observe(phase, timeNow().Sub(start)) }
}

// Summary returns a one-line human-readable report for phase.
func (r *Recorder) Summary(phase Phase) string {
	n := r.count[phase]
	if n == 0 {
		return fmt.Sprintf("%s: no samples", phase)
	}
	return fmt.Sprintf("%s: n=%d mean=%dus", phase, n, r.sum[phase]/n)
}

func bucketFor(us int64) int {
	if us <= 0 {
		return 0
	}
	b := 0
	for v := us; v > 1; v >>= 1 {
		b++
	}
	return b
}

// timeNow is a var indirection so tests could fake it; the build never
// calls Recorder off the hot path, so no production caller needs this,
// but it keeps Track's "since start" arithmetic in one place.
var timeNow = time.Now
