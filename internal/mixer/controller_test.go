package mixer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/driftwave/mixengine/internal/audio"
	"github.com/driftwave/mixengine/internal/player"
	"github.com/driftwave/mixengine/internal/player/playertest"
	"github.com/driftwave/mixengine/internal/preroll"
	"github.com/driftwave/mixengine/internal/types"
)

type passthroughFetcher struct{}

func (passthroughFetcher) Fetch(_ context.Context, uri string) (string, error) {
	return uri, nil
}

type fixture struct {
	c       *Controller
	pm      *preroll.Manager
	factory *playertest.Factory
	players map[types.Layer]*playertest.Player
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	factory := playertest.NewFactory(600000)
	pm := preroll.NewManager(factory, passthroughFetcher{})

	players := map[types.Layer]*playertest.Player{
		types.LayerAffirmations: playertest.New(600000),
		types.LayerBrain:        playertest.New(600000),
		types.LayerBackground:   playertest.New(600000),
	}
	return &fixture{c: NewController(pm), pm: pm, factory: factory, players: players}
}

func (f *fixture) tick(now time.Time, dtMs float64) TickResult {
	in := TickInput{
		Now:     now,
		DtMs:    dtMs,
		UserMix: types.Mix{Affirmations: 1, Binaural: 1, Background: 1},
		Players: map[types.Layer]player.Player{
			types.LayerAffirmations: f.players[types.LayerAffirmations],
			types.LayerBrain:        f.players[types.LayerBrain],
			types.LayerBackground:   f.players[types.LayerBackground],
		},
	}
	return f.c.ControlTick(in)
}

// settle repeats ticks at a fixed instant until the smoothers converge.
func (f *fixture) settle(now time.Time) TickResult {
	var res TickResult
	for i := 0; i < 400; i++ {
		res = f.tick(now, 16)
	}
	return res
}

func (f *fixture) volume(layer types.Layer) float64 {
	return f.players[layer].Volume()
}

func TestIntroAutomationStaggersEntrances(t *testing.T) {
	f := newFixture(t)
	t0 := time.Unix(1000, 0)
	f.c.StartIntroAutomation(t0)

	// Mid-intro at 3000ms: background is rising, binaural is behind it,
	// affirmations has not entered yet.
	f.settle(t0.Add(3 * time.Second))
	bg := f.volume(types.LayerBackground)
	bin := f.volume(types.LayerBrain)
	aff := f.volume(types.LayerAffirmations)
	if !(bg > bin && bin > aff) {
		t.Errorf("expected background > binaural > affirmations mid-intro, got %v / %v / %v", bg, bin, aff)
	}
	if aff != 0 {
		t.Errorf("affirmations = %v, want 0 before its 5000ms entrance", aff)
	}

	// Past every ramp end, all layers are fully open.
	res := f.settle(t0.Add(9 * time.Second))
	if !res.AutomationComplete {
		t.Error("AutomationComplete should report true after all ramps finish")
	}
	for _, layer := range types.MainLayers {
		if v := f.volume(layer); math.Abs(v-1) > 0.001 {
			t.Errorf("%s volume = %v, want 1 after intro", layer, v)
		}
	}
}

func TestIntroAutomationRampBoundaries(t *testing.T) {
	tests := []struct {
		elapsed float64
		start   float64
		end     float64
		want    float64
	}{
		{0, 0, 4000, 0},
		{2000, 0, 4000, 0.5},
		{4000, 0, 4000, 1},
		{1999, 2000, 6000, 0},
		{4000, 2000, 6000, 0.5},
		{6500, 5000, 8000, 0.5},
		{8000, 5000, 8000, 1},
	}
	for _, tt := range tests {
		if got := rampAt(tt.elapsed, tt.start, tt.end); got != tt.want {
			t.Errorf("rampAt(%v, %v, %v) = %v, want %v", tt.elapsed, tt.start, tt.end, got, tt.want)
		}
	}
}

func TestCrossfadeHandsOffFromPreroll(t *testing.T) {
	f := newFixture(t)
	f.pm.SetAssetURI("/audio/atmosphere.ogg")
	if err := f.pm.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	prerollPlayer := f.factory.Created()[0]

	t0 := time.Unix(1000, 0)
	f.c.StartIntroAutomation(t0)
	f.c.StartCrossfade(t0)

	// Halfway through: equal-power gains on both sides, and the intro
	// ramps are pinned open so only the crossfade shapes the entrance.
	half := t0.Add(time.Duration(types.CrossfadeDurationMs) * time.Millisecond / 2)
	f.settle(half)

	mainGain := math.Sin(0.5 * math.Pi / 2)
	if v := f.volume(types.LayerAffirmations); math.Abs(v-mainGain) > 0.005 {
		t.Errorf("affirmations = %v, want ≈%v (pinned automation times crossfade)", v, mainGain)
	}
	wantPreroll := math.Cos(0.5*math.Pi/2) * types.PrerollCeiling
	if v := prerollPlayer.Volume(); math.Abs(v-wantPreroll) > 0.0005 {
		t.Errorf("preroll volume = %v, want ≈%v", v, wantPreroll)
	}

	// At the full duration the handoff completes exactly once.
	end := t0.Add(time.Duration(types.CrossfadeDurationMs) * time.Millisecond)
	res := f.tick(end, 16)
	if !res.CrossfadeComplete {
		t.Fatal("crossfade should complete at its full duration")
	}
	if f.c.CrossfadeActive() {
		t.Error("controller still reports an active crossfade")
	}
	if v := prerollPlayer.Volume(); v != 0 {
		t.Errorf("preroll volume = %v, want 0 at handoff end", v)
	}

	// The engine releases the preroll player on completion.
	f.pm.Stop(0)
	if res := f.tick(end.Add(time.Second), 16); res.CrossfadeComplete {
		t.Error("CrossfadeComplete must fire only once")
	}
}

func TestCapFadeSilencesOnlyAffirmations(t *testing.T) {
	f := newFixture(t)
	t0 := time.Unix(1000, 0)
	f.settle(t0)

	f.c.StartCapFade(t0)

	// Halfway through the fade.
	f.tick(t0.Add(1500*time.Millisecond), 16)
	if v := f.volume(types.LayerAffirmations); math.Abs(v-0.5) > 0.005 {
		t.Errorf("affirmations = %v, want ≈0.5 halfway through the cap fade", v)
	}

	res := f.tick(t0.Add(time.Duration(types.CapFadeDurationMs)*time.Millisecond), 16)
	if !res.CapFadeComplete {
		t.Fatal("cap fade should complete at exactly its full duration")
	}
	if v := f.volume(types.LayerAffirmations); v != 0 {
		t.Errorf("affirmations = %v, want 0 after cap fade", v)
	}
	if v := f.volume(types.LayerBackground); math.Abs(v-1) > 0.001 {
		t.Errorf("background = %v, the beds must keep playing", v)
	}

	// Voice stays silent and the fade never rearms within the session.
	f.c.StartCapFade(t0.Add(10 * time.Second))
	f.settle(t0.Add(20 * time.Second))
	if v := f.volume(types.LayerAffirmations); v != 0 {
		t.Errorf("affirmations = %v, want 0 for the rest of the session", v)
	}
}

func TestResetClearsSessionState(t *testing.T) {
	f := newFixture(t)
	t0 := time.Unix(1000, 0)
	f.c.SetDucker(audio.NewDucker([]types.VoiceActivitySegment{{StartMs: 0, EndMs: 1000}}, audio.DefaultLookaheadMs))
	f.c.StartIntroAutomation(t0)
	f.c.StartCapFade(t0)
	f.settle(t0.Add(time.Second))

	f.c.Reset()

	if f.c.Ducker() != nil {
		t.Error("ducker should be cleared on reset")
	}
	if f.c.CapFadeActive() || f.c.CrossfadeActive() {
		t.Error("fades should be cleared on reset")
	}
	g := f.c.CurrentGains()
	if g.Affirmations != 0 || g.Binaural != 0 || g.Background != 0 {
		t.Errorf("gains = %+v, want all 0 after reset", g)
	}

	// Reset alone keeps the cap latched; only a new load rearms it.
	f.c.StartCapFade(t0.Add(time.Minute))
	if f.c.CapFadeActive() {
		t.Error("reset must not rearm the cap fade")
	}
	f.c.RearmCapFade()
	f.c.StartCapFade(t0.Add(2 * time.Minute))
	if !f.c.CapFadeActive() {
		t.Error("cap fade must rearm after a new load")
	}
}

func TestCrossfadeCompletionRestartsEntrances(t *testing.T) {
	f := newFixture(t)
	f.pm.SetAssetURI("/audio/atmosphere.ogg")
	if err := f.pm.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	t0 := time.Unix(1000, 0)
	f.c.StartCrossfade(t0)
	end := t0.Add(time.Duration(types.CrossfadeDurationMs) * time.Millisecond)
	if res := f.tick(end, 16); !res.CrossfadeComplete {
		t.Fatal("crossfade should complete at its full duration")
	}

	// One second after the handoff the staggered entrances have begun
	// again: the background bed is opening while the voice waits for its
	// 5000ms entrance.
	f.settle(end.Add(time.Second))
	if v := f.volume(types.LayerAffirmations); v != 0 {
		t.Errorf("affirmations = %v, want 0 until its entrance after the handoff", v)
	}
	if v := f.volume(types.LayerBackground); v <= 0 || v >= 1 {
		t.Errorf("background = %v, want mid-ramp after the handoff", v)
	}

	// The restarted ramps finish and every layer lands at full mix.
	res := f.settle(end.Add(9 * time.Second))
	if !res.AutomationComplete {
		t.Error("AutomationComplete should report true after the restarted ramps finish")
	}
	if v := f.volume(types.LayerAffirmations); math.Abs(v-1) > 0.001 {
		t.Errorf("affirmations = %v, want 1 after the restarted intro", v)
	}
}

func TestCapFadeDoesNotRearmOnRestartWithinLoad(t *testing.T) {
	f := newFixture(t)
	t0 := time.Unix(1000, 0)
	f.settle(t0)

	f.c.StartCapFade(t0)
	f.tick(t0.Add(time.Duration(types.CapFadeDurationMs)*time.Millisecond), 16)

	// Stop and play within the same load reset the controller but must
	// not give the cap fade a second shot.
	f.c.Reset()
	f.c.StartIntroAutomation(t0.Add(10 * time.Second))
	f.settle(t0.Add(20 * time.Second))

	f.c.StartCapFade(t0.Add(20 * time.Second))
	if f.c.CapFadeActive() {
		t.Fatal("cap fade must not rearm on a stop/play cycle within the same load")
	}
	if v := f.volume(types.LayerAffirmations); v != 0 {
		t.Errorf("affirmations = %v, want silent for the rest of the load", v)
	}
}

func TestDuckingAppliedThroughTick(t *testing.T) {
	f := newFixture(t)
	f.c.SetDucker(audio.NewDucker([]types.VoiceActivitySegment{{StartMs: 0, EndMs: 60000}}, audio.DefaultLookaheadMs))

	t0 := time.Unix(1000, 0)
	f.settle(t0)

	if v := f.volume(types.LayerAffirmations); math.Abs(v-1) > 0.001 {
		t.Errorf("affirmations = %v, want 1 (never ducked)", v)
	}
	if v := f.volume(types.LayerBackground); math.Abs(v-audio.BackgroundDuckTarget()) > 0.005 {
		t.Errorf("background = %v, want ducked to ≈%v", v, audio.BackgroundDuckTarget())
	}
	if v := f.volume(types.LayerBrain); math.Abs(v-audio.BinauralDuckTarget()) > 0.005 {
		t.Errorf("binaural = %v, want ducked to ≈%v", v, audio.BinauralDuckTarget())
	}
}
