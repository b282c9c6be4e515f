package estimate

import "time"

// RemainingEstimator adapts an expected total duration into the
// elapsed/fraction interface the progress manager consumes. When the engine
// has no sample for the bucket, the first half of an operation reports no
// ETA; after 50% it extrapolates from the observed pace.
type RemainingEstimator struct {
	engine   *Engine
	features Features
}

func NewRemainingEstimator(engine *Engine, features Features) *RemainingEstimator {
	return &RemainingEstimator{engine: engine, features: features}
}

func (r *RemainingEstimator) Remaining(elapsed time.Duration, fraction float64) (time.Duration, bool) {
	if fraction <= 0 {
		return 0, false
	}
	if fraction >= 1 {
		return 0, true
	}
	if expected, ok := r.engine.Estimate(r.features); ok {
		left := time.Duration(float64(expected) * (1 - fraction))
		// Under-estimates show up as a stale ETA; fall back to pace once
		// the learned total is exceeded.
		if elapsed < expected {
			return left, true
		}
	}
	if fraction < 0.5 {
		return 0, false
	}
	pace := float64(elapsed) / fraction
	return time.Duration(pace * (1 - fraction)), true
}
