package player

import (
	"context"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/driftwave/mixengine/internal/session"
	"github.com/driftwave/mixengine/internal/util"
)

// OtoFactory creates players backed by the oto output context. This is the
// default backend; it needs no external native library.
type OtoFactory struct {
	mu  sync.Mutex
	ctx *oto.Context
}

// NewOtoFactory returns an unconfigured factory. Ready must succeed before
// NewPlayer can be used.
func NewOtoFactory() *OtoFactory {
	return &OtoFactory{}
}

// Ready acquires the shared audio context, waiting for the device on the
// first call.
func (f *OtoFactory) Ready(ctx context.Context) error {
	c, err := session.Context(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.ctx = c
	f.mu.Unlock()
	return nil
}

// NewPlayer decodes the file at path and wires it to a fresh oto player.
func (f *OtoFactory) NewPlayer(path string, loop bool) (Player, error) {
	f.mu.Lock()
	c := f.ctx
	f.mu.Unlock()
	if c == nil {
		return nil, ErrNotReady
	}

	samples, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}

	track := NewTrack(samples, loop)
	return &otoPlayer{track: track, sink: c.NewPlayer(track)}, nil
}

// Backend returns the adapter name.
func (f *OtoFactory) Backend() string { return "oto" }

type otoPlayer struct {
	track *Track
	sink  *oto.Player

	mu       sync.Mutex
	released bool
}

func (p *otoPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return ErrReleased
	}
	p.sink.Play()
	return nil
}

func (p *otoPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return ErrReleased
	}
	p.sink.Pause()
	return nil
}

// SeekMs repositions the track through the sink so already-buffered audio
// from the old position is flushed rather than played out.
func (p *otoPlayer) SeekMs(ms int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return ErrReleased
	}
	if ms < 0 {
		ms = 0
	}
	_, err := p.sink.Seek(msToFrames(ms)*bytesPerFrame, io.SeekStart)
	if err != nil {
		return util.WrapError("seek", err)
	}
	return nil
}

func (p *otoPlayer) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil
	}
	p.released = true
	p.sink.Pause()
	if err := p.sink.Close(); err != nil {
		return util.WrapError("close player", err)
	}
	return nil
}

func (p *otoPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return false
	}
	return p.sink.IsPlaying()
}

func (p *otoPlayer) DurationMs() int64 {
	return p.track.DurationMs()
}

func (p *otoPlayer) PositionMs() int64 {
	p.mu.Lock()
	released := p.released
	p.mu.Unlock()
	if released {
		return 0
	}
	return p.track.PositionMs(int64(p.sink.BufferedSize()))
}

func (p *otoPlayer) SetVolume(v float64) { p.track.SetVolume(v) }
func (p *otoPlayer) Volume() float64     { return p.track.Volume() }
func (p *otoPlayer) SetLoop(loop bool)   { p.track.SetLoop(loop) }
func (p *otoPlayer) Loop() bool          { return p.track.Loop() }
