// Package types provides shared type definitions used across the engine.
package types

import (
	"time"
)

// EngineStatus represents the current state of the playback engine.
type EngineStatus string

const (
	// StatusIdle indicates no session is playing.
	StatusIdle EngineStatus = "idle"
	// StatusPreroll indicates the atmosphere bed is playing while the main mix loads.
	StatusPreroll EngineStatus = "preroll"
	// StatusLoading indicates a playback bundle is being loaded.
	StatusLoading EngineStatus = "loading"
	// StatusReady indicates all players are created and playback can start.
	StatusReady EngineStatus = "ready"
	// StatusPlaying indicates the main mix is playing.
	StatusPlaying EngineStatus = "playing"
	// StatusPaused indicates playback is paused and can resume.
	StatusPaused EngineStatus = "paused"
	// StatusStopping indicates playback is shutting down.
	StatusStopping EngineStatus = "stopping"
	// StatusError indicates the most recent command failed.
	StatusError EngineStatus = "error"
)

// Layer identifies one of the three main mix layers.
type Layer string

const (
	// LayerAffirmations is the foreground voice track.
	LayerAffirmations Layer = "affirmations"
	// LayerBrain is the binaural or solfeggio entrainment tone.
	LayerBrain Layer = "brain"
	// LayerBackground is the looping ambience bed.
	LayerBackground Layer = "background"
)

// MainLayers lists the three main layers in rolling-start order:
// beds first, voice last.
var MainLayers = []Layer{LayerBackground, LayerBrain, LayerAffirmations}

// Mix holds the user-intended relative level of each layer.
// All components are clamped to [0,1].
type Mix struct {
	Affirmations float64 `json:"affirmations" validate:"gte=0,lte=1"`
	Binaural     float64 `json:"binaural" validate:"gte=0,lte=1"`
	Background   float64 `json:"background" validate:"gte=0,lte=1"`
}

// Clamped returns a copy of the mix with every component clamped to [0,1].
func (m Mix) Clamped() Mix {
	return Mix{
		Affirmations: clamp01(m.Affirmations),
		Binaural:     clamp01(m.Binaural),
		Background:   clamp01(m.Background),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ToneAsset describes a brain-entrainment tone track (binaural or solfeggio).
type ToneAsset struct {
	URL  string  `json:"url" validate:"required,max=2048"`
	Loop bool    `json:"loop"`
	Hz   float64 `json:"hz" validate:"omitempty,gt=0,lte=20000"`
}

// BedAsset describes the background ambience track.
type BedAsset struct {
	URL  string `json:"url" validate:"required,max=2048"`
	Loop bool   `json:"loop"`
}

// VoiceActivitySegment is a half-open speech window [StartMs, EndMs).
type VoiceActivitySegment struct {
	StartMs int64 `json:"start_ms" validate:"gte=0"`
	EndMs   int64 `json:"end_ms" validate:"gtfield=StartMs"`
}

// VoiceActivity holds the precomputed speech windows of the voice track,
// sorted ascending by start and non-overlapping.
type VoiceActivity struct {
	Segments []VoiceActivitySegment `json:"segments" validate:"dive"`
}

// Loudness carries optional server-side loudness metadata for the voice track.
type Loudness struct {
	IntegratedLUFS float64 `json:"integrated_lufs,omitempty"`
	TruePeakDB     float64 `json:"true_peak_db,omitempty"`
}

// PlaybackBundle is the immutable per-load description of a session's audio.
// Exactly one of Binaural and Solfeggio must be present.
type PlaybackBundle struct {
	SessionID       string         `json:"session_id" validate:"required,max=128"`
	AffirmationsURL string         `json:"affirmations_url" validate:"required,max=2048"`
	Binaural        *ToneAsset     `json:"binaural,omitempty" validate:"required_without=Solfeggio,excluded_with=Solfeggio"`
	Solfeggio       *ToneAsset     `json:"solfeggio,omitempty" validate:"required_without=Binaural"`
	Background      *BedAsset      `json:"background" validate:"required"`
	Mix             Mix            `json:"mix"`
	Loudness        *Loudness      `json:"loudness,omitempty"`
	VoiceActivity   *VoiceActivity `json:"voice_activity,omitempty"`
}

// BrainAsset returns whichever tone asset is present.
func (b *PlaybackBundle) BrainAsset() *ToneAsset {
	if b.Binaural != nil {
		return b.Binaural
	}
	return b.Solfeggio
}

// SessionCapUnlimited disables the session duration cap.
const SessionCapUnlimited int64 = 0

// EngineSnapshot is the observable state of the engine. It is mutated only
// by the engine; consumers receive copies via subscription.
type EngineSnapshot struct {
	Status       EngineStatus `json:"status"`
	SessionID    string       `json:"session_id,omitzero"`
	PositionMs   int64        `json:"position_ms"`
	DurationMs   int64        `json:"duration_ms"`
	Mix          Mix          `json:"mix"`
	Error        string       `json:"error,omitzero"`
	SessionCapMs int64        `json:"session_cap_ms"` // 0 = unlimited
	PlayedMs     int64        `json:"played_ms"`      // cumulative playback time
}

// WatchdogState tracks stall detection for a single main layer.
type WatchdogState struct {
	StoppedAtMs    int64 // wall clock ms when position stopped advancing, 0 = not stopped
	LastPositionMs int64 // last observed player position
	FailedRestarts int   // consecutive failed restart attempts
	GivenUp        bool  // restart budget exhausted, layer left stopped
}

// Watchdog timing constants.
const (
	// StallDebounceMs is how long a position must stand still before a
	// player counts as stuck.
	StallDebounceMs int64 = 400
	// MaxFailedRestarts is the per-player restart budget per load.
	MaxFailedRestarts = 3
	// BedDurationGraceMs is the startup grace period for looping beds
	// reporting an invalid duration.
	BedDurationGraceMs int64 = 10000
	// VoiceDurationGraceMs is the startup grace period for the non-looping
	// voice track reporting an invalid duration.
	VoiceDurationGraceMs int64 = 2000
)

// Engine timing constants.
const (
	// DefaultControlTickInterval drives volume, ducking, automation,
	// crossfade and the watchdog. Too slow causes audible volume steps,
	// too fast stresses the device audio threads.
	DefaultControlTickInterval = 50 * time.Millisecond
	// DefaultPositionPollInterval drives UI position updates and
	// duration-cap accounting. Decoupled from the control tick.
	DefaultPositionPollInterval = 250 * time.Millisecond
	// CrossfadeDurationMs is the preroll-to-main crossfade length.
	CrossfadeDurationMs int64 = 1750
	// RollingStartStagger separates layer starts during a rolling start.
	RollingStartStagger = 200 * time.Millisecond
	// CapFadeDurationMs is the one-shot linear fade of the voice layer
	// when the session duration cap is crossed.
	CapFadeDurationMs int64 = 3000
	// PrerollCeiling is the hard volume cap of the atmosphere bed.
	PrerollCeiling = 0.10
	// PrerollStopFadeMs fades the preroll out on stop().
	PrerollStopFadeMs int64 = 250
	// PrerollPauseFadeMs fades the preroll out on pause().
	PrerollPauseFadeMs int64 = 400
)

// Audio output format constants.
const (
	// SampleRate is the engine-wide output sample rate in Hz.
	SampleRate = 48000
	// Channels is the number of output channels (stereo).
	Channels = 2
)

// Asset download retry constants.
const (
	// InitialRetryDelay is the starting delay between download attempts.
	InitialRetryDelay = 1000 * time.Millisecond
	// MaxRetryDelay is the maximum delay between download attempts.
	MaxRetryDelay = 8000 * time.Millisecond
	// MaxDownloadAttempts bounds retries per asset download.
	MaxDownloadAttempts = 3
)

// StallLogEntry is one JSON line in the playback stall log file.
type StallLogEntry struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	SessionID string `json:"session_id,omitempty"`
	Layer     string `json:"layer,omitempty"`
	Restarts  int    `json:"restarts,omitempty"`
}

// WSStatusResponse is sent to clients with the full engine snapshot.
type WSStatusResponse struct {
	Type     string         `json:"type"` // Message type identifier
	Engine   EngineSnapshot `json:"engine"`
	Backend  string         `json:"backend"`  // Active player backend
	Platform string         `json:"platform"` // Operating system platform
	Version  VersionInfo    `json:"version"`
}

// VersionInfo contains release comparison data.
type VersionInfo struct {
	Current     string `json:"current"`
	Latest      string `json:"latest,omitempty"`
	UpdateAvail bool   `json:"update_available"`
	Commit      string `json:"commit,omitempty"`
	BuildTime   string `json:"build_time,omitempty"`
}
