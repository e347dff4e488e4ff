package scale

import "math"

// Classifier remembers the last stable weight and turns a settled transition
// away from it into an action
type Classifier struct {
	maxNoise float64

	lastStable    float64
	hasLastStable bool
}

// NewClassifier instantiates a classifier without a baseline
func NewClassifier(maxNoise float64) *Classifier {
	return &Classifier{
		maxNoise: maxNoise,
	}
}

// Classify inspects the window and returns an action and the signed delta if the
// most recent stable reading diverges from the baseline beyond the noise threshold.
// The first stable observation only establishes the baseline.
func (c *Classifier) Classify(window *RollingBuffer) (Action, float64, bool) {
	if !window.IsStable() {
		return 0, 0, false
	}
	last, ok := window.Last()
	if !ok {
		return 0, 0, false
	}

	if !c.hasLastStable {
		c.lastStable, c.hasLastStable = last, true
		return 0, 0, false
	}

	delta := last - c.lastStable
	c.lastStable = last

	// Slow drift within the noise band is absorbed into the baseline
	if math.Abs(delta) <= c.maxNoise {
		return 0, 0, false
	}

	if delta > 0 {
		return ActionRefilled, delta, true
	}
	return ActionServed, delta, true
}

// LastStable returns the current baseline, if any
func (c *Classifier) LastStable() (float64, bool) {
	return c.lastStable, c.hasLastStable
}

// Reset discards the baseline
func (c *Classifier) Reset() {
	c.lastStable, c.hasLastStable = 0, false
}
