package audio

import (
	"math"
	"testing"
)

func TestGainSmootherClampsTarget(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
	}
	for _, tt := range tests {
		g := NewGainSmoother(80, 250)
		g.SetTarget(tt.input)
		if got := g.Target(); got != tt.want {
			t.Errorf("SetTarget(%v): target = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestGainSmootherConverges(t *testing.T) {
	// After cumulative dt >= 5*max(attack, release) the smoother must be
	// within snap distance of its target.
	g := NewGainSmoother(80, 250)
	g.SetTarget(1)

	const dt = 16.0
	elapsed := 0.0
	for elapsed < 5*250 {
		g.Update(dt)
		elapsed += dt
	}

	if diff := math.Abs(g.Current() - 1); diff >= 0.001 {
		t.Errorf("after %vms current = %v, want within 0.001 of 1", elapsed, g.Current())
	}
}

func TestGainSmootherAttackFasterThanRelease(t *testing.T) {
	up := NewGainSmoother(80, 250)
	up.SetTarget(1)
	up.Update(80)

	down := NewGainSmoother(80, 250)
	down.Reset(1)
	down.SetTarget(0)
	down.Update(80)

	rise := up.Current()
	fall := 1 - down.Current()
	if rise <= fall {
		t.Errorf("attack should outpace release over equal dt: rose %v, fell %v", rise, fall)
	}
}

func TestGainSmootherSnapsNearTarget(t *testing.T) {
	g := NewGainSmoother(80, 250)
	g.Reset(0.9995)
	g.SetTarget(1)
	g.Update(1)
	if g.Current() != 1 {
		t.Errorf("current = %v, want exact snap to 1", g.Current())
	}
}

func TestGainSmootherReset(t *testing.T) {
	g := NewGainSmoother(80, 250)
	g.SetTarget(1)
	g.Update(500)

	g.Reset(0.3)
	if g.Current() != 0.3 || g.Target() != 0.3 {
		t.Errorf("after Reset(0.3): current=%v target=%v, want both 0.3", g.Current(), g.Target())
	}

	// No drift on subsequent updates.
	g.Update(100)
	if g.Current() != 0.3 {
		t.Errorf("current drifted to %v after reset", g.Current())
	}
}

func TestGainSmootherZeroDt(t *testing.T) {
	g := NewGainSmoother(80, 250)
	g.Reset(0.5)
	g.SetTarget(1)
	if got := g.Update(0); got != 0.5 {
		t.Errorf("Update(0) = %v, want unchanged 0.5", got)
	}
}

func TestGainSmootherMonotonicRise(t *testing.T) {
	g := NewGainSmoother(80, 250)
	g.SetTarget(1)
	prev := g.Current()
	for i := 0; i < 50; i++ {
		cur := g.Update(16)
		if cur < prev {
			t.Fatalf("smoother not monotonic while rising: %v < %v at step %d", cur, prev, i)
		}
		prev = cur
	}
}
