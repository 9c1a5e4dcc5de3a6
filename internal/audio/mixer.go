package audio

import (
	"math"

	"github.com/driftwave/mixengine/internal/types"
)

// LayerGains holds one multiplier per main layer.
type LayerGains struct {
	Affirmations float64
	Binaural     float64
	Background   float64
}

// UnityGains returns a LayerGains with every component at 1.0.
func UnityGains() LayerGains {
	return LayerGains{Affirmations: 1, Binaural: 1, Background: 1}
}

// ComputeTargetVolumes combines the user mix with state, ducking and
// automation multipliers into per-layer target volumes. The voice layer is
// never ducked; the beds are. Safety ceilings are applied last and are not
// part of the clamped product.
func ComputeTargetVolumes(userMix types.Mix, state, ducking, automation, ceilings LayerGains) LayerGains {
	m := userMix.Clamped()
	return LayerGains{
		Affirmations: Clamp01(m.Affirmations*state.Affirmations*automation.Affirmations) * ceilings.Affirmations,
		Binaural:     Clamp01(m.Binaural*state.Binaural*automation.Binaural*ducking.Binaural) * ceilings.Binaural,
		Background:   Clamp01(m.Background*state.Background*automation.Background*ducking.Background) * ceilings.Background,
	}
}

// CrossfadeGains holds the main-mix and preroll gains of a crossfade point.
type CrossfadeGains struct {
	Main    float64
	Preroll float64
}

// EqualPowerCrossfade returns the sine/cosine gain pair for the given
// progress in [0,1]. Main²+Preroll²=1 for all progress, so perceived
// loudness stays constant through the transition.
func EqualPowerCrossfade(progress float64) CrossfadeGains {
	p := Clamp01(progress)
	return CrossfadeGains{
		Main:    math.Sin(p * math.Pi / 2),
		Preroll: math.Cos(p * math.Pi / 2),
	}
}
