// Package mixer turns user mix settings, intro automation, speech ducking
// and crossfade state into per-layer player volumes once per control tick.
package mixer

import (
	"sync"
	"time"

	"github.com/driftwave/mixengine/internal/audio"
	"github.com/driftwave/mixengine/internal/player"
	"github.com/driftwave/mixengine/internal/preroll"
	"github.com/driftwave/mixengine/internal/types"
)

// Intro automation windows in milliseconds since session start. Each layer
// rises linearly from silence over its window, staggering the entrances.
const (
	backgroundIntroStartMs = 0
	backgroundIntroEndMs   = 4000
	binauralIntroStartMs   = 2000
	binauralIntroEndMs     = 6000
	affirmationsIntroStart = 5000
	affirmationsIntroEnd   = 8000
)

// TickInput carries everything one control tick needs.
type TickInput struct {
	Now        time.Time
	DtMs       float64
	PositionMs int64
	UserMix    types.Mix
	Players    map[types.Layer]player.Player
}

// TickResult reports state transitions the engine must act on.
type TickResult struct {
	// CrossfadeComplete fires on the tick the preroll handoff finishes.
	CrossfadeComplete bool
	// CapFadeComplete fires on the tick the session cap fade reaches
	// silence.
	CapFadeComplete bool
	// AutomationComplete reports that every intro ramp is fully open.
	AutomationComplete bool
}

// Controller holds the per-session gain state. All mutating calls happen
// on the engine goroutines, guarded by a mutex so snapshots can read
// concurrently.
type Controller struct {
	mu sync.Mutex

	smoothers map[types.Layer]*audio.GainSmoother
	ducker    *audio.Ducker
	preroll   *preroll.Manager

	introActive bool
	introStart  time.Time

	crossfadeActive bool
	crossfadeStart  time.Time

	capFadeActive bool
	capFadeFired  bool
	capFadeStart  time.Time
}

// NewController creates a controller wired to the preroll manager.
func NewController(pm *preroll.Manager) *Controller {
	c := &Controller{
		smoothers: make(map[types.Layer]*audio.GainSmoother, len(types.MainLayers)),
		preroll:   pm,
	}
	for _, layer := range types.MainLayers {
		c.smoothers[layer] = audio.NewGainSmoother(80, 250)
	}
	return c
}

// SetDucker installs the speech activity map for the current session.
// Pass nil when the session has no voice activity data.
func (c *Controller) SetDucker(d *audio.Ducker) {
	c.mu.Lock()
	c.ducker = d
	c.mu.Unlock()
}

// Ducker returns the installed ducker, or nil.
func (c *Controller) Ducker() *audio.Ducker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ducker
}

// StartIntroAutomation begins the staggered layer entrances at now.
func (c *Controller) StartIntroAutomation(now time.Time) {
	c.mu.Lock()
	c.introActive = true
	c.introStart = now
	c.mu.Unlock()
}

// StartCrossfade begins the equal-power handoff from preroll to the main
// layers. Intro automation is pinned open for its duration and restarts
// from scratch when the handoff completes, so the staggered entrances
// still happen after a preroll start.
func (c *Controller) StartCrossfade(now time.Time) {
	c.mu.Lock()
	c.crossfadeActive = true
	c.crossfadeStart = now
	c.introActive = false
	c.mu.Unlock()
}

// CrossfadeActive reports whether a preroll handoff is in progress.
func (c *Controller) CrossfadeActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crossfadeActive
}

// StartCapFade begins the linear affirmations fade that silences the voice
// when the session cap is crossed. It fires at most once per load.
func (c *Controller) StartCapFade(now time.Time) {
	c.mu.Lock()
	if !c.capFadeFired {
		c.capFadeFired = true
		c.capFadeActive = true
		c.capFadeStart = now
	}
	c.mu.Unlock()
}

// CapFadeActive reports whether the session cap fade is running.
func (c *Controller) CapFadeActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capFadeActive
}

// Reset clears the per-start state and silences the smoothers. Called on
// every stop and every start. capFadeFired deliberately survives: the cap
// fade fires at most once per loaded bundle, and a stop/play cycle within
// the same load must not rearm it. RearmCapFade clears it on load.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ducker = nil
	c.introActive = false
	c.crossfadeActive = false
	c.capFadeActive = false
	for _, s := range c.smoothers {
		s.Reset(0)
	}
}

// RearmCapFade allows the session cap fade to fire again. Called only
// when a new bundle loads.
func (c *Controller) RearmCapFade() {
	c.mu.Lock()
	c.capFadeActive = false
	c.capFadeFired = false
	c.mu.Unlock()
}

// CurrentGains returns the smoothed per-layer gains for status reporting.
func (c *Controller) CurrentGains() audio.LayerGains {
	c.mu.Lock()
	defer c.mu.Unlock()
	return audio.LayerGains{
		Affirmations: c.smoothers[types.LayerAffirmations].Current(),
		Binaural:     c.smoothers[types.LayerBrain].Current(),
		Background:   c.smoothers[types.LayerBackground].Current(),
	}
}

// ControlTick advances all gain state by one tick and applies the
// resulting volumes to the players.
func (c *Controller) ControlTick(in TickInput) TickResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res TickResult

	ducking := c.duckingGains(in)
	automation, automationDone := c.automationGains(in.Now)
	res.AutomationComplete = automationDone

	targets := audio.ComputeTargetVolumes(in.UserMix, audio.UnityGains(), ducking, automation, audio.UnityGains())
	c.smoothers[types.LayerAffirmations].SetTarget(targets.Affirmations)
	c.smoothers[types.LayerBrain].SetTarget(targets.Binaural)
	c.smoothers[types.LayerBackground].SetTarget(targets.Background)

	gains := audio.LayerGains{
		Affirmations: c.smoothers[types.LayerAffirmations].Update(in.DtMs),
		Binaural:     c.smoothers[types.LayerBrain].Update(in.DtMs),
		Background:   c.smoothers[types.LayerBackground].Update(in.DtMs),
	}

	// The crossfade and cap fade multiply the smoothed gains directly so
	// their durations are exact rather than smeared by the smoothers.
	if c.crossfadeActive {
		progress := msSince(c.crossfadeStart, in.Now) / float64(types.CrossfadeDurationMs)
		xf := audio.EqualPowerCrossfade(progress)
		gains = scaleGains(gains, xf.Main)
		if p := c.preroll.Player(); p != nil {
			p.SetVolume(xf.Preroll * types.PrerollCeiling)
		}
		if progress >= 1 {
			c.crossfadeActive = false
			res.CrossfadeComplete = true
			c.introActive = true
			c.introStart = in.Now
		}
	} else if c.preroll.Active() {
		c.preroll.Tick(in.DtMs)
	}

	// The cap fade silences only the affirmations layer; the beds keep
	// playing.
	if c.capFadeActive {
		frac := msSince(c.capFadeStart, in.Now) / float64(types.CapFadeDurationMs)
		if frac >= 1 {
			frac = 1
			c.capFadeActive = false
			res.CapFadeComplete = true
		}
		gains.Affirmations *= 1 - frac
	} else if c.capFadeFired {
		gains.Affirmations = 0
	}

	for layer, p := range in.Players {
		if p == nil {
			continue
		}
		switch layer {
		case types.LayerAffirmations:
			p.SetVolume(gains.Affirmations)
		case types.LayerBrain:
			p.SetVolume(gains.Binaural)
		case types.LayerBackground:
			p.SetVolume(gains.Background)
		}
	}

	return res
}

// duckingGains evaluates speech ducking at the voice position. Caller
// holds c.mu.
func (c *Controller) duckingGains(in TickInput) audio.LayerGains {
	if c.ducker == nil {
		return audio.UnityGains()
	}
	background, binaural := c.ducker.Update(in.PositionMs, in.DtMs)
	return audio.LayerGains{Affirmations: 1, Binaural: binaural, Background: background}
}

// automationGains evaluates the intro ramps. During a crossfade the ramps
// are pinned fully open so the handoff alone shapes the entrance. Caller
// holds c.mu.
func (c *Controller) automationGains(now time.Time) (audio.LayerGains, bool) {
	if c.crossfadeActive || !c.introActive {
		return audio.UnityGains(), !c.introActive && !c.crossfadeActive
	}

	elapsed := msSince(c.introStart, now)
	gains := audio.LayerGains{
		Affirmations: rampAt(elapsed, affirmationsIntroStart, affirmationsIntroEnd),
		Binaural:     rampAt(elapsed, binauralIntroStartMs, binauralIntroEndMs),
		Background:   rampAt(elapsed, backgroundIntroStartMs, backgroundIntroEndMs),
	}

	done := gains.Affirmations == 1 && gains.Binaural == 1 && gains.Background == 1
	if done {
		c.introActive = false
	}
	return gains, done
}

// rampAt returns the linear ramp value for elapsed ms within [start, end].
func rampAt(elapsed float64, startMs, endMs float64) float64 {
	if elapsed <= startMs {
		return 0
	}
	if elapsed >= endMs {
		return 1
	}
	return (elapsed - startMs) / (endMs - startMs)
}

func scaleGains(g audio.LayerGains, f float64) audio.LayerGains {
	return audio.LayerGains{
		Affirmations: g.Affirmations * f,
		Binaural:     g.Binaural * f,
		Background:   g.Background * f,
	}
}

func msSince(start, now time.Time) float64 {
	return float64(now.Sub(start)) / float64(time.Millisecond)
}
