package capture

import "math"

// Plan is an ordered, strictly increasing list of capture timestamps in
// seconds, each within the media's [0, duration] bounds.
type Plan []float64

// NewPlan materializes the timestamps start, start+step, start+2*step, ...
// up to and including start+window, clipped to [0, duration].
//
// Candidates are computed by direct multiplication (start + k*step) rather
// than accumulation, so rounding error does not compound across the
// sequence, and every retained value is normalized to 6 decimal places.
// Both sides of the boundary comparison are normalized, so a step that lands
// exactly on start+window (within float error) is included.
//
// Non-finite inputs yield an empty plan. Steps finer than the normalization
// grain collapse onto the same instant; such duplicates are dropped so the
// plan stays strictly increasing.
func NewPlan(start, window, step, duration float64) Plan {
	if window <= 0 || step <= 0 || duration < 0 {
		return nil
	}
	if !isFinite(start) || !isFinite(window) || !isFinite(step) || !isFinite(duration) {
		return nil
	}

	limit := roundMicros(start + window)

	var plan Plan
	for k := 0; ; k++ {
		t := roundMicros(start + float64(k)*step)
		// candidates only grow, so past either bound nothing more qualifies
		if t > limit || t > duration {
			break
		}
		if t < 0 {
			continue
		}
		if n := len(plan); n > 0 && t <= plan[n-1] {
			continue
		}
		plan = append(plan, t)
	}
	return plan
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func roundMicros(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
