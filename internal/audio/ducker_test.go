package audio

import (
	"math"
	"testing"

	"github.com/driftwave/mixengine/internal/types"
)

func testSegments() []types.VoiceActivitySegment {
	return []types.VoiceActivitySegment{
		{StartMs: 0, EndMs: 2000},
		{StartMs: 5000, EndMs: 7000},
	}
}

func TestDuckerVoiceActive(t *testing.T) {
	tests := []struct {
		posMs int64
		want  bool
	}{
		{0, true},
		{1000, true},
		{1900, true},
		{1999, false}, // lookahead position 2079 is already past the segment end
		{3000, false},
		{4919, false}, // 4919+80 < 5000
		{4920, true},  // lookahead reaches the second segment
		{6000, true},
		{7500, false},
	}

	d := NewDucker(testSegments(), 80)
	for _, tt := range tests {
		if got := d.IsVoiceActive(tt.posMs); got != tt.want {
			t.Errorf("IsVoiceActive(%d) = %v, want %v", tt.posMs, got, tt.want)
		}
	}
}

func TestDuckerSettlesToDuckTarget(t *testing.T) {
	d := NewDucker(testSegments(), 80)

	// Let the smoothers settle while speech is active at 1000ms.
	var background, binaural float64
	for i := 0; i < 200; i++ {
		background, binaural = d.Update(1000, 16)
	}

	if math.Abs(background-BackgroundDuckTarget()) > 0.001 {
		t.Errorf("background = %v, want ≈%v (-4dB)", background, BackgroundDuckTarget())
	}
	if math.Abs(binaural-BinauralDuckTarget()) > 0.001 {
		t.Errorf("binaural = %v, want ≈%v (-2dB)", binaural, BinauralDuckTarget())
	}
}

func TestDuckerRelaxesBetweenSegments(t *testing.T) {
	d := NewDucker(testSegments(), 80)

	for i := 0; i < 200; i++ {
		d.Update(1000, 16)
	}

	// One step into the gap: released toward 1.0 but not there yet.
	background, _ := d.Update(3000, 16)
	if background <= BackgroundDuckTarget() || background >= 1 {
		t.Errorf("background = %v, want strictly between duck target and 1 while relaxing", background)
	}

	// Recovery constant is 350ms; well past 5x that it must be fully open.
	for i := 0; i < 200; i++ {
		background, _ = d.Update(3000, 16)
	}
	if background != 1 {
		t.Errorf("background = %v, want 1 after full release", background)
	}
}

func TestDuckerEngagesFasterThanItRecovers(t *testing.T) {
	d := NewDucker(testSegments(), 80)

	// One 90ms step into the duck with the 90ms engage constant covers
	// 1-1/e of the drop: 1 + (0.631-1)*0.632 ≈ 0.767. A 350ms constant
	// here would only reach ≈0.916.
	background, _ := d.Update(1000, 90)
	if background > 0.78 {
		t.Errorf("background = %v after one 90ms step into the duck, want ≤0.78 (fast engage)", background)
	}

	// Settle fully ducked, then take one 90ms step out. The 350ms recover
	// constant allows only ≈0.715; a 90ms constant would jump to ≈0.864.
	for i := 0; i < 200; i++ {
		background, _ = d.Update(1000, 16)
	}
	background, _ = d.Update(3000, 90)
	if background > 0.73 {
		t.Errorf("background = %v after one 90ms recovery step, want ≤0.73 (slow recover)", background)
	}
	if background <= BackgroundDuckTarget() {
		t.Errorf("background = %v, must be rising out of the duck", background)
	}
}

func TestDuckerPointerResetOnSeek(t *testing.T) {
	d := NewDucker(testSegments(), 80)

	// Scan past both segments.
	if d.IsVoiceActive(8000) {
		t.Fatal("no speech expected at 8000ms")
	}

	// Backward query without reset misses the earlier segment: that is the
	// documented hazard of the monotonic pointer.
	if d.IsVoiceActive(1000) {
		t.Fatal("monotonic pointer should not rewind on its own")
	}

	d.ResetPointer()
	if !d.IsVoiceActive(1000) {
		t.Error("after ResetPointer, speech at 1000ms must be detected again")
	}
}

func TestDuckerNoSegments(t *testing.T) {
	d := NewDucker(nil, 80)
	if d.IsVoiceActive(0) {
		t.Error("empty segment list must never report speech")
	}
	background, binaural := d.Update(0, 16)
	if background != 1 || binaural != 1 {
		t.Errorf("multipliers = %v/%v, want 1/1 with no segments", background, binaural)
	}
}
