package audio

import (
	"math"

	"github.com/driftwave/mixengine/internal/types"
)

// Ducking configuration. Duck depths are expressed in dB and converted to
// linear multipliers once at package init.
const (
	// DefaultLookaheadMs anticipates speech so beds dip before the voice enters.
	DefaultLookaheadMs int64 = 80
	// duckEngageMs shapes the drop into the duck; duckRecoverMs shapes the
	// rise back out. Recovery is slow so beds swell back gently.
	duckEngageMs  = 90
	duckRecoverMs = 350
	// MinDuckIntervalMs is the micro-blip tolerance: speech gaps shorter
	// than this are absorbed by the engage/recover constants above rather
	// than by explicit gating.
	MinDuckIntervalMs int64 = 120

	backgroundDuckDB = -4.0
	binauralDuckDB   = -2.0
)

// Linear duck targets: 10^(dB/20).
var (
	backgroundDuckTarget = math.Pow(10, backgroundDuckDB/20) // ≈0.631
	binauralDuckTarget   = math.Pow(10, binauralDuckDB/20)   // ≈0.794
)

// Ducker converts precomputed speech-segment windows into smoothed duck
// multipliers for the bed layers. It assumes playback position never
// decreases between queries; callers must invoke ResetPointer after a seek.
// It is not safe for concurrent use; the ducker is owned by the control tick.
type Ducker struct {
	segments    []types.VoiceActivitySegment
	idx         int
	lookaheadMs int64
	background  *GainSmoother
	binaural    *GainSmoother
}

// NewDucker returns a ducker over the given segment list, which must be
// sorted ascending by start and non-overlapping.
func NewDucker(segments []types.VoiceActivitySegment, lookaheadMs int64) *Ducker {
	if lookaheadMs <= 0 {
		lookaheadMs = DefaultLookaheadMs
	}
	// GainSmoother applies its first constant to rising moves and its
	// second to falling ones; entering the duck is the falling move.
	d := &Ducker{
		segments:    segments,
		lookaheadMs: lookaheadMs,
		background:  NewGainSmoother(duckRecoverMs, duckEngageMs),
		binaural:    NewGainSmoother(duckRecoverMs, duckEngageMs),
	}
	d.background.Reset(1)
	d.binaural.Reset(1)
	return d
}

// IsVoiceActive reports whether speech is active at posMs plus lookahead.
// The scan pointer only moves forward; amortized O(1) under monotonically
// increasing positions.
func (d *Ducker) IsVoiceActive(posMs int64) bool {
	ahead := posMs + d.lookaheadMs
	for d.idx < len(d.segments) && d.segments[d.idx].EndMs <= ahead {
		d.idx++
	}
	return d.idx < len(d.segments) && d.segments[d.idx].StartMs <= ahead
}

// Update advances the duck smoothers by dtMs for the given position and
// returns the current background and binaural multipliers.
func (d *Ducker) Update(posMs int64, dtMs float64) (background, binaural float64) {
	if d.IsVoiceActive(posMs) {
		d.background.SetTarget(backgroundDuckTarget)
		d.binaural.SetTarget(binauralDuckTarget)
	} else {
		d.background.SetTarget(1)
		d.binaural.SetTarget(1)
	}
	return d.background.Update(dtMs), d.binaural.Update(dtMs)
}

// ResetPointer rewinds the scan pointer. Must be called after any seek,
// since the monotonic-scan optimization assumes non-decreasing positions.
func (d *Ducker) ResetPointer() {
	d.idx = 0
}

// BackgroundDuckTarget returns the linear duck depth applied to the
// background bed while speech is active.
func BackgroundDuckTarget() float64 { return backgroundDuckTarget }

// BinauralDuckTarget returns the linear duck depth applied to the
// entrainment tone while speech is active.
func BinauralDuckTarget() float64 { return binauralDuckTarget }
