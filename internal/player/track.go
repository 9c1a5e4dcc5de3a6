package player

import (
	"fmt"
	"io"
	"sync"

	"github.com/driftwave/mixengine/internal/types"
)

// bytesPerFrame is one stereo s16le sample pair.
const bytesPerFrame = 2 * types.Channels

// Track holds a fully decoded PCM asset and serves it to a backend sink.
// It implements io.ReadSeeker over interleaved stereo s16le samples at the
// engine sample rate, applying the volume multiplier and looping in the
// read path. It is safe for concurrent use.
type Track struct {
	mu      sync.Mutex
	samples []int16 // interleaved stereo at types.SampleRate
	frame   int     // current read position in frames
	loop    bool
	volume  float64
}

// NewTrack wraps decoded samples into a track. Volume starts at 0 so a
// freshly created player is always silent until the control tick ramps it.
func NewTrack(samples []int16, loop bool) *Track {
	return &Track{samples: samples, loop: loop}
}

// frames returns the total frame count. Caller must hold t.mu.
func (t *Track) frames() int {
	return len(t.samples) / types.Channels
}

// Read fills p with volume-scaled s16le bytes, looping or returning io.EOF
// at the end of the track depending on the loop flag.
func (t *Track) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := t.frames()
	if total == 0 {
		return 0, io.EOF
	}

	n := 0
	for n+bytesPerFrame <= len(p) {
		if t.frame >= total {
			if !t.loop {
				break
			}
			t.frame = 0
		}
		base := t.frame * types.Channels
		for ch := 0; ch < types.Channels; ch++ {
			s := int16(float64(t.samples[base+ch]) * t.volume)
			p[n] = byte(s)
			p[n+1] = byte(s >> 8)
			n += 2
		}
		t.frame++
	}

	if n == 0 && t.frame >= total && !t.loop {
		return 0, io.EOF
	}
	return n, nil
}

// Seek implements io.Seeker over the byte representation of the track.
// Backend sinks use it to drop already-buffered data after a seek.
func (t *Track) Seek(offset int64, whence int) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	size := int64(t.frames()) * bytesPerFrame
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(t.frame)*bytesPerFrame + offset
	case io.SeekEnd:
		abs = size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative seek offset %d", abs)
	}
	if abs > size {
		abs = size
	}
	t.frame = int(abs / bytesPerFrame)
	return abs, nil
}

// SetVolume sets the linear volume multiplier, clamped to [0,1]. The sink
// buffer adds a few milliseconds of latency before the change is audible.
func (t *Track) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	t.mu.Lock()
	t.volume = v
	t.mu.Unlock()
}

// Volume returns the current volume multiplier.
func (t *Track) Volume() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.volume
}

// SetLoop toggles seamless looping.
func (t *Track) SetLoop(loop bool) {
	t.mu.Lock()
	t.loop = loop
	t.mu.Unlock()
}

// Loop reports whether looping is enabled.
func (t *Track) Loop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loop
}

// DurationMs returns the track duration in milliseconds.
func (t *Track) DurationMs() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return framesToMs(int64(t.frames()))
}

// PositionMs returns the read position in milliseconds. bufferedBytes is
// the amount of data the sink has read but not yet played; it is subtracted
// so the reported position tracks what the listener actually hears.
func (t *Track) PositionMs(bufferedBytes int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos := int64(t.frame) - bufferedBytes/bytesPerFrame
	if pos < 0 {
		if t.loop && t.frames() > 0 {
			pos += int64(t.frames())
		} else {
			pos = 0
		}
	}
	return framesToMs(pos)
}

// SetPositionMs moves the read position to the given millisecond offset,
// clamped to the track bounds.
func (t *Track) SetPositionMs(ms int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	frame := int(msToFrames(ms))
	if total := t.frames(); frame > total {
		frame = total
	}
	if frame < 0 {
		frame = 0
	}
	t.frame = frame
}

func framesToMs(frames int64) int64 {
	return frames * 1000 / types.SampleRate
}

func msToFrames(ms int64) int64 {
	return ms * types.SampleRate / 1000
}
