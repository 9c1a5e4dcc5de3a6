// Package audio provides the gain-smoothing, mixing and ducking math of the
// playback engine. Everything here is plain arithmetic on volume multipliers;
// no signal processing happens on device.
package audio

import (
	"math"
)

// snapEpsilon is the distance below which the smoother snaps to its target.
const snapEpsilon = 0.001

// GainSmoother is a one-pole exponential smoother with independent attack
// and release time constants. It is not safe for concurrent use; each
// smoother is owned by the control tick.
type GainSmoother struct {
	current   float64
	target    float64
	attackMs  float64
	releaseMs float64
}

// NewGainSmoother returns a smoother with the given time constants in
// milliseconds. Current and target start at zero.
func NewGainSmoother(attackMs, releaseMs float64) *GainSmoother {
	return &GainSmoother{attackMs: attackMs, releaseMs: releaseMs}
}

// SetTarget sets the value the smoother converges toward, clamped to [0,1].
func (g *GainSmoother) SetTarget(v float64) {
	g.target = Clamp01(v)
}

// Target returns the current target value.
func (g *GainSmoother) Target() float64 {
	return g.target
}

// Current returns the smoothed value as of the last update.
func (g *GainSmoother) Current() float64 {
	return g.current
}

// Update advances the smoother by dtMs and returns the new current value.
// Rising values use the attack constant, falling values the release constant.
func (g *GainSmoother) Update(dtMs float64) float64 {
	if dtMs <= 0 {
		return g.current
	}

	tau := g.releaseMs
	if g.target > g.current {
		tau = g.attackMs
	}
	if tau <= 0 {
		g.current = g.target
		return g.current
	}

	alpha := 1 - math.Exp(-dtMs/tau)
	g.current += (g.target - g.current) * alpha

	if math.Abs(g.target-g.current) < snapEpsilon {
		g.current = g.target
	}
	return g.current
}

// Reset sets current and target immediately, with no smoothing. Used when
// loading a new session or rolling-starting from silence.
func (g *GainSmoother) Reset(v float64) {
	v = Clamp01(v)
	g.current = v
	g.target = v
}

// Clamp01 clamps v to the [0,1] range.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
