package player

import (
	"errors"
	"testing"

	"github.com/driftwave/mixengine/internal/types"
)

func TestResamplePassthroughSameRate(t *testing.T) {
	in := []int16{1, 2, 3, 4}
	out := Resample(in, 48000, 48000, 2)
	if &out[0] != &in[0] {
		t.Error("same-rate resample should return the input unchanged")
	}
}

func TestResampleUpsampleDoublesFrames(t *testing.T) {
	in := []int16{0, 0, 100, 100, 200, 200, 300, 300}
	out := Resample(in, 24000, 48000, 2)

	if len(out) != 16 {
		t.Fatalf("len = %d, want 16 (4 frames doubled, stereo)", len(out))
	}
	// Interpolated frame between 0 and 100 sits at the midpoint.
	if out[2] != 50 || out[3] != 50 {
		t.Errorf("interpolated frame = %d/%d, want 50/50", out[2], out[3])
	}
}

func TestResampleDownsampleHalvesFrames(t *testing.T) {
	in := make([]int16, 8*2)
	out := Resample(in, 48000, 24000, 2)
	if len(out) != 8 {
		t.Errorf("len = %d, want 8 (8 frames halved, stereo)", len(out))
	}
}

func TestToStereoDuplicatesMono(t *testing.T) {
	out := toStereo([]int16{10, 20}, 1)
	want := []int16{10, 10, 20, 20}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out = %v, want %v", out, want)
		}
	}
}

func TestToStereoDropsExtraChannels(t *testing.T) {
	// 5.1 input keeps the front pair.
	in := []int16{1, 2, 3, 4, 5, 6}
	out := toStereo(in, 6)
	if len(out) != types.Channels || out[0] != 1 || out[1] != 2 {
		t.Errorf("out = %v, want [1 2]", out)
	}
}

func TestDecodeFileRejectsUnknownExtension(t *testing.T) {
	_, err := DecodeFile("/tmp/whatever.flac")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}
