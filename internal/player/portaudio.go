package player

import (
	"context"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/driftwave/mixengine/internal/types"
	"github.com/driftwave/mixengine/internal/util"
)

var (
	paOnce sync.Once
	paErr  error
)

// PortAudioFactory creates players backed by a PortAudio callback stream.
// It is the fallback backend for hosts where the default context cannot
// open the output device.
type PortAudioFactory struct{}

// NewPortAudioFactory returns a factory for the PortAudio backend.
func NewPortAudioFactory() *PortAudioFactory {
	return &PortAudioFactory{}
}

// Ready initializes the PortAudio library once per process.
func (f *PortAudioFactory) Ready(_ context.Context) error {
	paOnce.Do(func() {
		if err := portaudio.Initialize(); err != nil {
			paErr = util.WrapError("initialize portaudio", err)
		}
	})
	return paErr
}

// NewPlayer decodes the file at path and opens a callback output stream
// that pulls from the track.
func (f *PortAudioFactory) NewPlayer(path string, loop bool) (Player, error) {
	if err := f.Ready(context.Background()); err != nil {
		return nil, err
	}

	samples, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}

	p := &paPlayer{track: NewTrack(samples, loop)}
	stream, err := portaudio.OpenDefaultStream(0, types.Channels, float64(types.SampleRate), 1024, p.callback)
	if err != nil {
		return nil, util.WrapError("open output stream", err)
	}
	p.stream = stream
	return p, nil
}

// Backend returns the adapter name.
func (f *PortAudioFactory) Backend() string { return "portaudio" }

type paPlayer struct {
	track  *Track
	stream *portaudio.Stream

	mu       sync.Mutex
	playing  bool
	released bool
	buf      []byte
}

// callback pulls volume-scaled samples from the track. PortAudio expects the
// full buffer filled; anything past EOF on a non-looping track is silence.
func (p *paPlayer) callback(out []int16) {
	need := len(out) * 2
	if cap(p.buf) < need {
		p.buf = make([]byte, need)
	}
	buf := p.buf[:need]

	n, _ := p.track.Read(buf)
	for i := 0; i < n/2; i++ {
		out[i] = int16(buf[2*i]) | int16(buf[2*i+1])<<8
	}
	for i := n / 2; i < len(out); i++ {
		out[i] = 0
	}
}

func (p *paPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return ErrReleased
	}
	if p.playing {
		return nil
	}
	if err := p.stream.Start(); err != nil {
		return util.WrapError("start stream", err)
	}
	p.playing = true
	return nil
}

func (p *paPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return ErrReleased
	}
	if !p.playing {
		return nil
	}
	if err := p.stream.Stop(); err != nil {
		return util.WrapError("stop stream", err)
	}
	p.playing = false
	return nil
}

func (p *paPlayer) SeekMs(ms int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return ErrReleased
	}
	p.track.SetPositionMs(ms)
	return nil
}

func (p *paPlayer) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil
	}
	p.released = true
	if p.playing {
		if err := p.stream.Stop(); err != nil {
			return util.WrapError("stop stream", err)
		}
		p.playing = false
	}
	if err := p.stream.Close(); err != nil {
		return util.WrapError("close stream", err)
	}
	return nil
}

func (p *paPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing && !p.released
}

func (p *paPlayer) DurationMs() int64 {
	return p.track.DurationMs()
}

// PositionMs reports the track read position directly. The callback buffer
// is about 21ms at 48kHz, small enough to ignore for control decisions.
func (p *paPlayer) PositionMs() int64 {
	return p.track.PositionMs(0)
}

func (p *paPlayer) SetVolume(v float64) { p.track.SetVolume(v) }
func (p *paPlayer) Volume() float64     { return p.track.Volume() }
func (p *paPlayer) SetLoop(loop bool)   { p.track.SetLoop(loop) }
func (p *paPlayer) Loop() bool          { return p.track.Loop() }
