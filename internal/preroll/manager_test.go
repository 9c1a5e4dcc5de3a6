package preroll

import (
	"context"
	"testing"
	"time"

	"github.com/driftwave/mixengine/internal/player/playertest"
	"github.com/driftwave/mixengine/internal/types"
)

type passthroughFetcher struct{}

func (passthroughFetcher) Fetch(_ context.Context, uri string) (string, error) {
	return uri, nil
}

func newTestManager() (*Manager, *playertest.Factory) {
	f := playertest.NewFactory(30000)
	return NewManager(f, passthroughFetcher{}), f
}

func TestStartWithoutAssetIsNoop(t *testing.T) {
	m, f := newTestManager()
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.Active() || len(f.Created()) != 0 {
		t.Error("no asset configured: nothing should start")
	}
}

func TestStartLoopsSilentlyAndRampsToCeiling(t *testing.T) {
	m, f := newTestManager()
	m.SetAssetURI("/audio/atmosphere.ogg")

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !m.Active() {
		t.Fatal("manager should be active after Start")
	}

	players := f.Created()
	if len(players) != 1 {
		t.Fatalf("players created = %d, want 1", len(players))
	}
	p := players[0]
	if !p.Playing() || !p.Loop() {
		t.Error("preroll player must be playing and looping")
	}
	if p.Volume() != 0 {
		t.Errorf("volume = %v, want 0 before the first tick", p.Volume())
	}

	// Drive ticks well past the attack constant; volume settles at the
	// ceiling and never overshoots it.
	for i := 0; i < 300; i++ {
		m.Tick(16)
		if v := p.Volume(); v > types.PrerollCeiling {
			t.Fatalf("volume %v exceeded ceiling %v", v, types.PrerollCeiling)
		}
	}
	if v := p.Volume(); v != types.PrerollCeiling {
		t.Errorf("volume = %v, want settled at ceiling %v", v, types.PrerollCeiling)
	}
}

func TestStartTwiceCreatesOnePlayer(t *testing.T) {
	m, f := newTestManager()
	m.SetAssetURI("/audio/atmosphere.ogg")

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.Created()) != 1 {
		t.Errorf("players created = %d, want 1", len(f.Created()))
	}
}

func TestStopFadesAndReleases(t *testing.T) {
	m, f := newTestManager()
	m.SetAssetURI("/audio/atmosphere.ogg")
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 300; i++ {
		m.Tick(16)
	}
	p := f.Created()[0]

	m.Stop(60)
	if m.Active() {
		t.Error("manager must report inactive as soon as Stop is called")
	}
	if m.Player() != nil {
		t.Error("player must be detached immediately on Stop")
	}

	deadline := time.Now().Add(2 * time.Second)
	for !p.Released() {
		if time.Now().After(deadline) {
			t.Fatal("player was not released after the fade")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if p.Volume() != 0 {
		t.Errorf("volume = %v, want 0 after fade out", p.Volume())
	}
}

func TestStopHoldsSilenceBeforeRelease(t *testing.T) {
	m, f := newTestManager()
	m.SetAssetURI("/audio/atmosphere.ogg")
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	p := f.Created()[0]

	start := time.Now()
	m.Stop(0)

	deadline := time.Now().Add(2 * time.Second)
	for !p.Released() {
		if time.Now().After(deadline) {
			t.Fatal("player was not released")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if elapsed := time.Since(start); elapsed < releaseDelay {
		t.Errorf("released after %v, want at least %v of silence before teardown", elapsed, releaseDelay)
	}
	if p.Volume() != 0 {
		t.Errorf("volume = %v, want 0 while draining", p.Volume())
	}
}

func TestStopWhenInactiveIsNoop(t *testing.T) {
	m, _ := newTestManager()
	m.Stop(types.PrerollStopFadeMs)
}
