// Package player defines the playback capability interface of the engine and
// its backend adapters. Mixing and control logic depends only on the Player
// and Factory interfaces; one adapter exists per native audio API.
package player

import (
	"context"
	"errors"
)

// Sentinel errors for player operations.
var (
	ErrReleased          = errors.New("player released")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrNotReady          = errors.New("player not ready")
)

// Player is the capability interface every backend adapter implements.
// Implementations are safe for concurrent use.
type Player interface {
	// Play starts or resumes playback at the current position.
	Play() error
	// Pause halts playback, keeping the position.
	Pause() error
	// SeekMs repositions playback to the given millisecond offset.
	SeekMs(ms int64) error
	// Release stops playback and frees the backend resources. The player
	// cannot be used afterwards.
	Release() error

	// Playing reports whether the player is currently producing audio.
	Playing() bool
	// DurationMs returns the track duration, or 0 while still unknown.
	DurationMs() int64
	// PositionMs returns the current playback position.
	PositionMs() int64

	// SetVolume sets the linear volume multiplier, clamped to [0,1].
	SetVolume(v float64)
	// Volume returns the current volume multiplier.
	Volume() float64

	// SetLoop toggles seamless looping.
	SetLoop(loop bool)
	// Loop reports whether looping is enabled.
	Loop() bool
}

// Factory creates players for a specific backend.
type Factory interface {
	// Ready performs the one-time platform audio configuration. It is
	// cached: repeated calls after the first success are cheap no-ops.
	Ready(ctx context.Context) error
	// NewPlayer creates a player for the local audio file at path.
	NewPlayer(path string, loop bool) (Player, error)
	// Backend returns the adapter name for logging and status reporting.
	Backend() string
}
