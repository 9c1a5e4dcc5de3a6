package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftwave/mixengine/internal/audio"
	"github.com/driftwave/mixengine/internal/player"
	"github.com/driftwave/mixengine/internal/types"
	"github.com/driftwave/mixengine/internal/util"
)

// Sentinel errors for command validation.
var (
	ErrNoBundle      = errors.New("no playback bundle loaded")
	ErrNilBundle     = errors.New("bundle is nil")
	ErrNoVoicePlayer = errors.New("no voice player")
)

// rollingStartAttempts bounds per-layer play retries during a rolling
// start before the layer is skipped. Each attempt waits up to
// layerStartTimeout for the backend to come up.
const (
	rollingStartAttempts = 2
	layerStartTimeout    = 2 * time.Second
)

// Load resolves the bundle's assets, recreates the three main players and
// leaves the engine ready to play. Loading during an active preroll keeps
// the atmosphere running and hands off to it when done.
func (e *Engine) Load(bundle *types.PlaybackBundle) error {
	if bundle == nil {
		return ErrNilBundle
	}
	return e.enqueue("load", func() error { return e.doLoad(bundle) })
}

// Play dispatches on the current status; see doPlay.
func (e *Engine) Play() error {
	return e.enqueue("play", e.doPlay)
}

// Pause halts the main players and the periodic loops, keeping positions.
func (e *Engine) Pause() error {
	return e.enqueue("pause", e.doPause)
}

// Stop fades out the preroll, silences and rewinds the main players and
// returns to idle. The bundle is retained so replay needs no reload.
func (e *Engine) Stop() error {
	return e.enqueue("stop", e.doStop)
}

// Seek repositions the voice track. Bed tracks loop independently and are
// never seeked.
func (e *Engine) Seek(ms int64) error {
	return e.enqueue("seek", func() error { return e.doSeek(ms) })
}

// SetMix updates the target mix. While playing, the control tick ramps to
// it smoothly; otherwise it applies on the next start.
func (e *Engine) SetMix(mix types.Mix) error {
	return e.enqueue("set_mix", func() error { return e.doSetMix(mix) })
}

// SetVoiceProminence raises the voice over the beds with a single knob:
// the affirmations level becomes x and both beds are pulled down
// proportionally, at full prominence to half their current level.
func (e *Engine) SetVoiceProminence(x float64) error {
	return e.enqueue("set_voice_prominence", func() error {
		x = audio.Clamp01(x)
		e.mu.Lock()
		mix := e.snap.Mix
		e.mu.Unlock()
		mix.Affirmations = x
		mix.Binaural *= 1 - x/2
		mix.Background *= 1 - x/2
		return e.doSetMix(mix)
	})
}

// SetSessionDurationCap sets the cumulative playback cap in milliseconds.
// types.SessionCapUnlimited disables it.
func (e *Engine) SetSessionDurationCap(capMs int64) error {
	if capMs < 0 {
		return fmt.Errorf("invalid session cap %d", capMs)
	}
	return e.enqueue("set_session_cap", func() error {
		e.mu.Lock()
		e.snap.SessionCapMs = capMs
		e.mu.Unlock()
		e.publish()
		return nil
	})
}

// SetPrerollAssetURI configures the atmosphere asset. Must be called
// before the first Play.
func (e *Engine) SetPrerollAssetURI(uri string) error {
	return e.enqueue("set_preroll_asset", func() error {
		e.pm.SetAssetURI(uri)
		return nil
	})
}

func (e *Engine) doLoad(bundle *types.PlaybackBundle) error {
	if err := e.factoryReady(); err != nil {
		return util.WrapError("audio session", err)
	}

	e.mu.Lock()
	sameSession := e.snap.SessionID == bundle.SessionID
	status := e.snap.Status
	keepMix := sameSession && status != types.StatusIdle
	currentMix := e.snap.Mix
	prerolling := e.snap.Status == types.StatusPreroll
	if !prerolling {
		e.snap.Status = types.StatusLoading
	}
	e.snap.Error = ""
	e.mu.Unlock()
	e.publish()

	// Switching sessions never bleeds the old audio into the new one.
	e.mu.Lock()
	if !prerolling {
		e.stopLoopsLocked()
	}
	e.accumulatePlayedLocked(e.clock.Now())
	e.releasePlayersLocked()
	e.mu.Unlock()
	e.mixer.Reset()
	e.mixer.RearmCapFade()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Beds are cached by content; the voice track is generated fresh per
	// session and fetched to a throwaway file.
	backgroundPath, err := e.cache.Fetch(ctx, bundle.Background.URL)
	if err != nil {
		return util.WrapError("fetch background asset", err)
	}
	brainPath, err := e.cache.Fetch(ctx, bundle.BrainAsset().URL)
	if err != nil {
		return util.WrapError("fetch tone asset", err)
	}
	voicePath, err := e.cache.FetchTemp(ctx, bundle.AffirmationsURL)
	if err != nil {
		return util.WrapError("fetch voice asset", err)
	}

	// Beds are forced to loop regardless of the bundle flags; a missing
	// flag must never produce an end-of-track gap.
	background, err := e.factory.NewPlayer(backgroundPath, true)
	if err != nil {
		return util.WrapError("create background player", err)
	}
	brain, err := e.factory.NewPlayer(brainPath, true)
	if err != nil {
		_ = background.Release()
		return util.WrapError("create tone player", err)
	}
	voice, err := e.factory.NewPlayer(voicePath, false)
	if err != nil {
		_ = background.Release()
		_ = brain.Release()
		return util.WrapError("create voice player", err)
	}

	if bundle.VoiceActivity != nil && len(bundle.VoiceActivity.Segments) > 0 {
		e.mixer.SetDucker(audio.NewDucker(bundle.VoiceActivity.Segments, audio.DefaultLookaheadMs))
	}

	// Backends that learn the duration asynchronously get a short grace
	// before the snapshot settles for whatever the player reports.
	durCtx, durCancel := context.WithTimeout(ctx, 2*time.Second)
	voiceDurationMs, err := player.WaitForDuration(durCtx, voice, 50*time.Millisecond)
	durCancel()
	if err != nil {
		slog.Debug("voice duration still unknown after load", "error", err)
		voiceDurationMs = voice.DurationMs()
	}

	e.mu.Lock()
	e.bundle = bundle
	e.voicePath = voicePath
	e.players = map[types.Layer]player.Player{
		types.LayerBackground:   background,
		types.LayerBrain:        brain,
		types.LayerAffirmations: voice,
	}
	e.snap.SessionID = bundle.SessionID
	e.snap.PositionMs = 0
	e.snap.DurationMs = voiceDurationMs
	e.snap.PlayedMs = 0
	e.playedAccumMs = 0
	if keepMix {
		e.snap.Mix = currentMix
	} else {
		e.snap.Mix = bundle.Mix.Clamped()
	}
	prerolling = e.snap.Status == types.StatusPreroll
	wantPlay := e.pendingPlay
	e.pendingPlay = false
	if !prerolling {
		e.snap.Status = types.StatusReady
	}
	e.mu.Unlock()
	e.publish()

	slog.Info("bundle loaded", "session", bundle.SessionID, "same_session", sameSession, "preroll", prerolling)

	if prerolling && wantPlay {
		return e.beginCrossfade()
	}
	return nil
}

// doPlay is a full dispatch over the current status.
func (e *Engine) doPlay() error {
	e.mu.Lock()
	status := e.snap.Status
	bundle := e.bundle
	hasPlayers := len(e.players) == len(types.MainLayers)
	e.mu.Unlock()

	switch status {
	case types.StatusIdle, types.StatusError:
		// Preroll starts immediately; a retained bundle loads behind it.
		if err := e.startPreroll(); err != nil {
			return err
		}
		e.setStatus(types.StatusPreroll)
		e.startLoops()
		if hasPlayers {
			return e.beginCrossfade()
		}
		if bundle != nil {
			e.mu.Lock()
			e.pendingPlay = true
			e.mu.Unlock()
			if _, err := e.enqueueAsync("load", func() error { return e.doLoad(bundle) }); err != nil {
				return err
			}
		} else {
			e.mu.Lock()
			e.pendingPlay = true
			e.mu.Unlock()
		}
		return nil

	case types.StatusPreroll:
		if e.mixer.CrossfadeActive() {
			return nil
		}
		if hasPlayers {
			return e.beginCrossfade()
		}
		e.mu.Lock()
		e.pendingPlay = true
		e.mu.Unlock()
		return nil

	case types.StatusLoading:
		if err := e.startPreroll(); err != nil {
			return err
		}
		e.mu.Lock()
		e.pendingPlay = true
		e.mu.Unlock()
		return nil

	case types.StatusPlaying:
		return nil

	case types.StatusPaused:
		return e.resume()

	case types.StatusReady:
		return e.rollingStart()

	default:
		return fmt.Errorf("play: unexpected status %q", status)
	}
}

// startPreroll is safe to call when already active.
func (e *Engine) startPreroll() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.pm.Start(ctx); err != nil {
		return util.WrapError("start preroll", err)
	}
	return nil
}

// rollingStart brings the session up from silence: smoothers reset to 0,
// then background, brain layer and affirmations start in order with a
// stagger between each. A layer that refuses to start is logged and
// skipped; partial start beats total silence.
func (e *Engine) rollingStart() error {
	now := e.clock.Now()
	e.mixer.Reset()
	e.mixer.StartIntroAutomation(now)
	if e.bundleDucker() != nil {
		e.mixer.SetDucker(e.bundleDucker())
	}

	e.mu.Lock()
	players := e.playersCopyLocked()
	e.mu.Unlock()

	for i, layer := range types.MainLayers {
		if i > 0 {
			<-e.clock.After(types.RollingStartStagger)
		}
		p, ok := players[layer]
		if !ok {
			continue
		}
		p.SetVolume(0)
		if err := e.startLayer(layer, p); err != nil {
			slog.Warn("rolling start: layer failed to start", "layer", layer, "error", err)
			continue
		}
		e.mu.Lock()
		e.layerStarted[layer] = e.clock.Now()
		e.mu.Unlock()
	}

	e.mu.Lock()
	e.playStartedAt = e.clock.Now()
	e.snap.Status = types.StatusPlaying
	e.snap.Error = ""
	e.mu.Unlock()
	e.publish()
	e.startLoops()
	return nil
}

// startLayer plays one layer with a small bounded retry, waiting for the
// backend to be ready before each attempt.
func (e *Engine) startLayer(layer types.Layer, p player.Player) error {
	var lastErr error
	for attempt := 0; attempt < rollingStartAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), layerStartTimeout)
		lastErr = player.PlayWhenReady(ctx, e.factory, p)
		cancel()
		if lastErr == nil {
			return nil
		}
		slog.Debug("layer start retry", "layer", layer, "attempt", attempt+1, "error", lastErr)
	}
	return lastErr
}

// beginCrossfade starts all main players muted and hands the entrance to
// the equal-power crossfade. The status stays preroll until the handoff
// finishes; the control tick flips it to playing on completion.
func (e *Engine) beginCrossfade() error {
	now := e.clock.Now()
	e.mixer.Reset()
	if e.bundleDucker() != nil {
		e.mixer.SetDucker(e.bundleDucker())
	}

	e.mu.Lock()
	players := e.playersCopyLocked()
	e.mu.Unlock()

	for layer, p := range players {
		p.SetVolume(0)
		if err := e.startLayer(layer, p); err != nil {
			slog.Warn("crossfade: layer failed to start", "layer", layer, "error", err)
			continue
		}
		e.mu.Lock()
		e.layerStarted[layer] = now
		e.mu.Unlock()
	}

	e.mixer.StartCrossfade(now)

	e.mu.Lock()
	e.playStartedAt = now
	e.snap.Status = types.StatusPreroll
	e.snap.Error = ""
	e.mu.Unlock()
	e.publish()
	e.startLoops()
	return nil
}

// bundleDucker builds a fresh ducker from the loaded bundle, or nil.
func (e *Engine) bundleDucker() *audio.Ducker {
	e.mu.Lock()
	bundle := e.bundle
	e.mu.Unlock()
	if bundle == nil || bundle.VoiceActivity == nil || len(bundle.VoiceActivity.Segments) == 0 {
		return nil
	}
	return audio.NewDucker(bundle.VoiceActivity.Segments, audio.DefaultLookaheadMs)
}

func (e *Engine) doPause() error {
	e.mu.Lock()
	if e.snap.Status != types.StatusPlaying && e.snap.Status != types.StatusPreroll {
		e.mu.Unlock()
		return nil
	}
	players := e.playersCopyLocked()
	e.accumulatePlayedLocked(e.clock.Now())
	e.stopLoopsLocked()
	e.snap.Status = types.StatusPaused
	e.mu.Unlock()

	if e.pm.Active() {
		e.pm.Stop(types.PrerollPauseFadeMs)
	}
	for layer, p := range players {
		if err := p.Pause(); err != nil {
			slog.Warn("pause player", "layer", layer, "error", err)
		}
	}

	e.publish()
	return nil
}

func (e *Engine) doStop() error {
	e.mu.Lock()
	if e.snap.Status == types.StatusIdle {
		e.mu.Unlock()
		return nil
	}
	players := e.playersCopyLocked()
	e.accumulatePlayedLocked(e.clock.Now())
	e.stopLoopsLocked()
	e.snap.Status = types.StatusStopping
	e.pendingPlay = false
	playedMs := e.playedAccumMs
	e.mu.Unlock()
	e.publish()
	slog.Info("playback stopped", "played", util.FormatDuration(playedMs))

	if e.pm.Active() {
		e.pm.Stop(types.PrerollStopFadeMs)
	}
	for layer, p := range players {
		if err := p.Pause(); err != nil {
			slog.Warn("stop: pause player", "layer", layer, "error", err)
		}
		if err := p.SeekMs(0); err != nil {
			slog.Warn("stop: rewind player", "layer", layer, "error", err)
		}
		p.SetVolume(0)
	}

	e.mixer.Reset()
	if d := e.mixer.Ducker(); d != nil {
		d.ResetPointer()
	}

	e.mu.Lock()
	e.snap.Status = types.StatusIdle
	e.snap.PositionMs = 0
	e.watchdogs = make(map[types.Layer]types.WatchdogState)
	e.mu.Unlock()
	e.publish()
	return nil
}

// resume restarts from pause at the current volumes. The intro automation
// and duration tracking restart; watchdog timers start clean.
func (e *Engine) resume() error {
	e.mu.Lock()
	players := e.playersCopyLocked()
	if len(players) == 0 {
		// Paused mid-preroll, before any players existed: go back to
		// prerolling and wait for the load.
		e.pendingPlay = true
		e.mu.Unlock()
		if err := e.startPreroll(); err != nil {
			return err
		}
		e.setStatus(types.StatusPreroll)
		e.startLoops()
		return nil
	}
	now := e.clock.Now()
	e.playStartedAt = now
	e.watchdogs = make(map[types.Layer]types.WatchdogState)
	for layer := range players {
		e.layerStarted[layer] = now
	}
	e.snap.Status = types.StatusPlaying
	e.snap.Error = ""
	e.mu.Unlock()

	for layer, p := range players {
		if err := e.startLayer(layer, p); err != nil {
			slog.Warn("resume: layer failed to start", "layer", layer, "error", err)
		}
	}
	e.mixer.StartIntroAutomation(now)

	e.publish()
	e.startLoops()
	return nil
}

func (e *Engine) doSeek(ms int64) error {
	if ms < 0 {
		ms = 0
	}

	e.mu.Lock()
	voice := e.players[types.LayerAffirmations]
	e.mu.Unlock()
	if voice == nil {
		return ErrNoVoicePlayer
	}

	// Only the voice track moves; the beds loop independently and seeking
	// them produces an audible gap.
	if err := voice.SeekMs(ms); err != nil {
		return util.WrapError("seek voice track", err)
	}
	if d := e.mixer.Ducker(); d != nil {
		d.ResetPointer()
	}

	e.mu.Lock()
	e.snap.PositionMs = voice.PositionMs()
	e.mu.Unlock()
	e.publish()
	return nil
}

func (e *Engine) doSetMix(mix types.Mix) error {
	mix = mix.Clamped()

	e.mu.Lock()
	e.snap.Mix = mix
	playing := e.snap.Status == types.StatusPlaying
	players := e.playersCopyLocked()
	e.mu.Unlock()

	// While playing, the control tick ramps to the new mix. Otherwise the
	// change lands on the players immediately.
	if !playing {
		for layer, p := range players {
			switch layer {
			case types.LayerAffirmations:
				p.SetVolume(mix.Affirmations)
			case types.LayerBrain:
				p.SetVolume(mix.Binaural)
			case types.LayerBackground:
				p.SetVolume(mix.Background)
			}
		}
	}

	e.publish()
	return nil
}
