package engine

import (
	"log/slog"
	"time"

	"github.com/driftwave/mixengine/internal/mixer"
	"github.com/driftwave/mixengine/internal/player"
	"github.com/driftwave/mixengine/internal/types"
	"github.com/driftwave/mixengine/internal/util"
)

// startLoops launches the control tick and position poll if not already
// running. They run only while the engine is prerolling or playing.
func (e *Engine) startLoops() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loopStop != nil {
		return
	}
	stop := make(chan struct{})
	e.loopStop = stop
	e.lastTickAt = time.Time{}
	go e.runLoops(stop)
}

// stopLoopsLocked signals the loop goroutine to exit. Caller holds e.mu.
func (e *Engine) stopLoopsLocked() {
	if e.loopStop != nil {
		close(e.loopStop)
		e.loopStop = nil
	}
}

func (e *Engine) runLoops(stop <-chan struct{}) {
	tick := e.clock.NewTicker(e.tickInterval)
	defer tick.Stop()
	poll := e.clock.NewTicker(e.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-tick.C():
			e.controlTick(now)
		case now := <-poll.C():
			e.positionPoll(now)
		}
	}
}

// controlTick advances all gain state by one step and runs the watchdog.
func (e *Engine) controlTick(now time.Time) {
	e.mu.Lock()
	status := e.snap.Status
	if status != types.StatusPreroll && status != types.StatusPlaying {
		e.mu.Unlock()
		return
	}
	dtMs := float64(e.tickInterval) / float64(time.Millisecond)
	if !e.lastTickAt.IsZero() {
		dtMs = float64(now.Sub(e.lastTickAt)) / float64(time.Millisecond)
	}
	e.lastTickAt = now
	players := e.playersCopyLocked()
	mix := e.snap.Mix
	voice := e.players[types.LayerAffirmations]
	e.mu.Unlock()

	var posMs int64
	if voice != nil {
		posMs = voice.PositionMs()
	}

	res := e.mixer.ControlTick(mixer.TickInput{
		Now:        now,
		DtMs:       dtMs,
		PositionMs: posMs,
		UserMix:    mix,
		Players:    players,
	})

	if res.CrossfadeComplete {
		e.pm.Stop(0)
		e.mu.Lock()
		if e.snap.Status == types.StatusPreroll {
			e.snap.Status = types.StatusPlaying
		}
		e.mu.Unlock()
		e.publish()
		slog.Debug("crossfade complete")
	}
	if res.CapFadeComplete {
		if voice != nil {
			if err := voice.Pause(); err != nil {
				slog.Warn("cap fade: pause voice", "error", err)
			}
		}
		e.mu.Lock()
		played := e.playedMsLocked(now)
		e.mu.Unlock()
		slog.Info("session cap reached, voice layer stopped", "played", util.FormatDuration(played))
	}

	if status == types.StatusPlaying {
		e.runWatchdog(now, players)
	}
}

// positionPoll refreshes the UI-facing position fields and accounts the
// session duration cap.
func (e *Engine) positionPoll(now time.Time) {
	e.mu.Lock()
	status := e.snap.Status
	voice := e.players[types.LayerAffirmations]
	capMs := e.snap.SessionCapMs
	played := e.playedMsLocked(now)
	e.snap.PlayedMs = played
	if voice != nil {
		e.snap.PositionMs = voice.PositionMs()
		e.snap.DurationMs = voice.DurationMs()
	}
	e.mu.Unlock()

	if status == types.StatusPlaying && capMs != types.SessionCapUnlimited && played >= capMs {
		e.mixer.StartCapFade(now)
	}

	e.publish()
}

// runWatchdog evaluates each main layer against its stall state and
// applies the resulting action.
func (e *Engine) runWatchdog(now time.Time, players map[types.Layer]player.Player) {
	e.mu.Lock()
	sessionID := e.snap.SessionID
	started := make(map[types.Layer]time.Time, len(e.layerStarted))
	for k, v := range e.layerStarted {
		started[k] = v
	}
	states := make(map[types.Layer]types.WatchdogState, len(e.watchdogs))
	for k, v := range e.watchdogs {
		states[k] = v
	}
	e.mu.Unlock()

	for layer, p := range players {
		var elapsed int64
		if t, ok := started[layer]; ok {
			elapsed = now.Sub(t).Milliseconds()
		}

		st, action := watchdogStep(states[layer], watchdogInput{
			nowMs:          now.UnixMilli(),
			positionMs:     p.PositionMs(),
			durationMs:     p.DurationMs(),
			loop:           p.Loop(),
			layerElapsedMs: elapsed,
		})
		states[layer] = st

		switch action {
		case watchdogRestart:
			e.restartLayer(layer, p, st.FailedRestarts)
		case watchdogGiveUp:
			slog.Warn("watchdog giving up on layer", "layer", layer, "restarts", st.FailedRestarts)
			if e.notifier != nil {
				e.notifier.PlaybackStallGivenUp(sessionID, layer, st.FailedRestarts)
			}
		}
	}

	e.mu.Lock()
	e.watchdogs = states
	e.mu.Unlock()
}

// restartLayer recovers a stuck player. A non-looping track sitting at its
// end is rewound first, then restarted.
func (e *Engine) restartLayer(layer types.Layer, p player.Player, attempt int) {
	slog.Warn("watchdog restarting stuck layer", "layer", layer, "attempt", attempt)

	if dur := p.DurationMs(); !p.Loop() && dur > 0 && p.PositionMs() >= dur {
		if err := p.SeekMs(0); err != nil {
			slog.Warn("watchdog rewind failed", "layer", layer, "error", err)
		}
	}
	if err := p.Play(); err != nil {
		slog.Warn("watchdog restart failed", "layer", layer, "error", err)
	}
}
