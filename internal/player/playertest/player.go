// Package playertest provides scripted in-memory players for engine and
// mixer tests. Time never passes on its own: tests call Advance to move
// playback forward, and flip flags to simulate stalls and failures.
package playertest

import (
	"context"
	"sync"
	"time"

	"github.com/driftwave/mixengine/internal/player"
)

// Player is a scripted player.Player implementation.
type Player struct {
	mu         sync.Mutex
	playing    bool
	released   bool
	positionMs int64
	durationMs int64
	volume     float64
	loop       bool

	// Stuck freezes the position while playing, simulating a stalled sink.
	Stuck bool
	// FailPlays makes the next N Play calls return an error.
	FailPlays int
	// PlayCalls counts every Play invocation, including failed ones.
	PlayCalls int
}

// New returns a paused player with the given duration.
func New(durationMs int64) *Player {
	return &Player{durationMs: durationMs}
}

// Advance moves playback forward while playing and not stuck, wrapping at
// the track end when looping and pausing at the end otherwise.
func (p *Player) Advance(dt time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || p.Stuck || p.released {
		return
	}
	p.positionMs += dt.Milliseconds()
	if p.durationMs > 0 && p.positionMs >= p.durationMs {
		if p.loop {
			p.positionMs %= p.durationMs
		} else {
			p.positionMs = p.durationMs
			p.playing = false
		}
	}
}

func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls++
	if p.released {
		return player.ErrReleased
	}
	if p.FailPlays > 0 {
		p.FailPlays--
		return player.ErrNotReady
	}
	p.playing = true
	return nil
}

func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return player.ErrReleased
	}
	p.playing = false
	return nil
}

func (p *Player) SeekMs(ms int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return player.ErrReleased
	}
	if ms < 0 {
		ms = 0
	}
	if p.durationMs > 0 && ms > p.durationMs {
		ms = p.durationMs
	}
	p.positionMs = ms
	return nil
}

func (p *Player) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	p.playing = false
	return nil
}

// Released reports whether Release has been called.
func (p *Player) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) DurationMs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.durationMs
}

func (p *Player) PositionMs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionMs
}

func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.volume = v
}

func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) SetLoop(loop bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loop = loop
}

func (p *Player) Loop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop
}

// Factory is a scripted player.Factory. Paths map to durations; unknown
// paths get DefaultDurationMs.
type Factory struct {
	mu sync.Mutex

	// Durations maps file paths to track durations.
	Durations map[string]int64
	// DefaultDurationMs is used for paths missing from Durations.
	DefaultDurationMs int64
	// CreateDelay blocks NewPlayer, simulating slow decoding.
	CreateDelay time.Duration
	// ReadyErr is returned from Ready when set.
	ReadyErr error

	created []*Player
}

// NewFactory returns a factory whose players default to the given duration.
func NewFactory(defaultDurationMs int64) *Factory {
	return &Factory{DefaultDurationMs: defaultDurationMs}
}

func (f *Factory) Ready(_ context.Context) error { return f.ReadyErr }

func (f *Factory) NewPlayer(path string, loop bool) (player.Player, error) {
	if f.CreateDelay > 0 {
		time.Sleep(f.CreateDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.DefaultDurationMs
	if v, ok := f.Durations[path]; ok {
		d = v
	}
	p := New(d)
	p.loop = loop
	f.created = append(f.created, p)
	return p, nil
}

func (f *Factory) Backend() string { return "test" }

// Created returns every player the factory has handed out, in order.
func (f *Factory) Created() []*Player {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Player, len(f.created))
	copy(out, f.created)
	return out
}

// Advance moves every created player forward.
func (f *Factory) Advance(dt time.Duration) {
	for _, p := range f.Created() {
		p.Advance(dt)
	}
}
