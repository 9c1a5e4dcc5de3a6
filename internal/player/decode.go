package player

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/driftwave/mixengine/internal/types"
	"github.com/driftwave/mixengine/internal/util"
)

// DecodeFile reads the audio file at path and returns interleaved stereo
// s16le samples at the engine sample rate. The container is picked by file
// extension; mp3, wav and ogg/vorbis are supported.
func DecodeFile(path string) ([]int16, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3", ".wav", ".ogg", ".oga":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, util.WrapError("open audio file", err)
	}
	defer util.SafeCloseFunc(f, "audio file")()

	switch ext {
	case ".mp3":
		return decodeMP3(f)
	case ".wav":
		return decodeWAV(f)
	default:
		return decodeOgg(f)
	}
}

func decodeMP3(r io.Reader) ([]int16, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, util.WrapError("decode mp3", err)
	}

	// go-mp3 always outputs stereo s16le at the source sample rate.
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, util.WrapError("read mp3 stream", err)
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(raw[2*i]) | int16(raw[2*i+1])<<8
	}
	return Resample(samples, d.SampleRate(), types.SampleRate, types.Channels), nil
}

func decodeWAV(r io.ReadSeeker) ([]int16, error) {
	d := wav.NewDecoder(r)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, util.WrapError("decode wav", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, util.WrapError("decode wav", io.ErrUnexpectedEOF)
	}

	samples := pcmToInt16(buf, int(d.BitDepth))
	samples = toStereo(samples, buf.Format.NumChannels)
	return Resample(samples, buf.Format.SampleRate, types.SampleRate, types.Channels), nil
}

// pcmToInt16 rescales an integer PCM buffer of any bit depth to s16.
func pcmToInt16(buf *audio.IntBuffer, bitDepth int) []int16 {
	shift := uint(0)
	if bitDepth > 16 {
		shift = uint(bitDepth - 16)
	}
	scale := 1
	if bitDepth < 16 {
		scale = 1 << (16 - bitDepth)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16((v >> shift) * scale)
	}
	return samples
}

func decodeOgg(r io.Reader) ([]int16, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, util.WrapError("decode ogg", err)
	}

	samples := make([]int16, len(data))
	for i, v := range data {
		switch {
		case v > 1:
			samples[i] = 32767
		case v < -1:
			samples[i] = -32768
		default:
			samples[i] = int16(v * 32767)
		}
	}

	samples = toStereo(samples, format.Channels)
	return Resample(samples, format.SampleRate, types.SampleRate, types.Channels), nil
}

// toStereo widens mono input by duplicating each sample. Inputs with more
// than two channels keep the first two.
func toStereo(in []int16, channels int) []int16 {
	switch {
	case channels == types.Channels:
		return in
	case channels == 1:
		out := make([]int16, len(in)*2)
		for i, s := range in {
			out[2*i] = s
			out[2*i+1] = s
		}
		return out
	default:
		frames := len(in) / channels
		out := make([]int16, frames*types.Channels)
		for f := 0; f < frames; f++ {
			out[2*f] = in[f*channels]
			out[2*f+1] = in[f*channels+1]
		}
		return out
	}
}

// Resample converts interleaved PCM from one sample rate to another using
// linear interpolation per channel. Same-rate input is returned unchanged.
func Resample(in []int16, fromRate, toRate, channels int) []int16 {
	if fromRate == toRate || len(in) == 0 {
		return in
	}

	inFrames := len(in) / channels
	outFrames := int(int64(inFrames) * int64(toRate) / int64(fromRate))
	if outFrames == 0 {
		return nil
	}

	ratio := float64(fromRate) / float64(toRate)
	out := make([]int16, outFrames*channels)
	for f := 0; f < outFrames; f++ {
		srcPos := float64(f) * ratio
		i0 := int(srcPos)
		if i0 >= inFrames-1 {
			i0 = inFrames - 1
		}
		i1 := i0 + 1
		if i1 >= inFrames {
			i1 = inFrames - 1
		}
		frac := srcPos - float64(i0)
		for ch := 0; ch < channels; ch++ {
			a := float64(in[i0*channels+ch])
			b := float64(in[i1*channels+ch])
			out[f*channels+ch] = int16(a + (b-a)*frac)
		}
	}
	return out
}
