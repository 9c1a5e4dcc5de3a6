// Package preroll manages the looping atmosphere bed that plays while a
// session is being prepared, so the listener never waits in silence.
package preroll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/driftwave/mixengine/internal/audio"
	"github.com/driftwave/mixengine/internal/player"
	"github.com/driftwave/mixengine/internal/types"
	"github.com/driftwave/mixengine/internal/util"
)

// Fetcher resolves an asset URI to a local file path.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (string, error)
}

// fadeStepInterval is the volume update cadence of the detached stop fade.
// releaseDelay holds the silenced player a moment longer so the sink
// drains before teardown, avoiding a click on release.
const (
	fadeStepInterval = 20 * time.Millisecond
	releaseDelay     = 50 * time.Millisecond
)

// Manager owns the preroll player. While active, the engine control tick
// drives its smoother; Stop hands the fade-out to a detached goroutine so
// it completes even when the control loop has already moved on.
type Manager struct {
	factory player.Factory
	fetch   Fetcher

	mu       sync.Mutex
	assetURI string
	p        player.Player
	smoother *audio.GainSmoother
	active   bool
}

// NewManager returns an inactive manager with no asset configured.
func NewManager(factory player.Factory, fetch Fetcher) *Manager {
	return &Manager{
		factory:  factory,
		fetch:    fetch,
		smoother: audio.NewGainSmoother(400, float64(types.PrerollStopFadeMs)),
	}
}

// SetAssetURI replaces the atmosphere asset used by the next Start.
func (m *Manager) SetAssetURI(uri string) {
	m.mu.Lock()
	m.assetURI = uri
	m.mu.Unlock()
}

// AssetURI returns the configured atmosphere asset.
func (m *Manager) AssetURI() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assetURI
}

// Start fetches the atmosphere asset and begins a silent loop whose volume
// the control tick then ramps toward the preroll ceiling. Starting while
// already active or with no asset configured is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	uri := m.assetURI
	already := m.active
	m.mu.Unlock()
	if already || uri == "" {
		return nil
	}

	path, err := m.fetch.Fetch(ctx, uri)
	if err != nil {
		return util.WrapError("fetch preroll asset", err)
	}
	if err := m.factory.Ready(ctx); err != nil {
		return err
	}
	p, err := m.factory.NewPlayer(path, true)
	if err != nil {
		return util.WrapError("create preroll player", err)
	}
	p.SetVolume(0)
	if err := p.Play(); err != nil {
		_ = p.Release()
		return util.WrapError("start preroll", err)
	}

	m.mu.Lock()
	m.p = p
	m.active = true
	m.smoother.Reset(0)
	m.smoother.SetTarget(types.PrerollCeiling)
	m.mu.Unlock()

	slog.Info("preroll started", "uri", uri)
	return nil
}

// Active reports whether the preroll loop is playing and still owned by
// the control tick.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Player returns the current preroll player, or nil when inactive.
func (m *Manager) Player() player.Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.p
}

// Smoother exposes the gain smoother so the crossfade can retarget it.
func (m *Manager) Smoother() *audio.GainSmoother {
	return m.smoother
}

// Tick advances the smoother and applies the resulting volume. The engine
// calls this from the control tick while the manager is active.
func (m *Manager) Tick(dtMs float64) {
	m.mu.Lock()
	p := m.p
	active := m.active
	m.mu.Unlock()
	if !active || p == nil {
		return
	}
	p.SetVolume(m.smoother.Update(dtMs))
}

// Stop detaches the player and fades it to silence over fadeMs in a
// background goroutine, then releases it. Subsequent Start calls create a
// fresh player immediately.
func (m *Manager) Stop(fadeMs int64) {
	m.mu.Lock()
	p := m.p
	m.p = nil
	wasActive := m.active
	m.active = false
	m.mu.Unlock()
	if !wasActive || p == nil {
		return
	}

	go func() {
		v0 := p.Volume()
		fade := time.Duration(fadeMs) * time.Millisecond
		start := time.Now()

		t := time.NewTicker(fadeStepInterval)
		defer t.Stop()
		for range t.C {
			elapsed := time.Since(start)
			if elapsed >= fade {
				break
			}
			frac := float64(elapsed) / float64(fade)
			p.SetVolume(v0 * (1 - frac))
		}

		p.SetVolume(0)
		time.Sleep(releaseDelay)
		if err := p.Pause(); err != nil {
			slog.Debug("preroll pause after fade", "error", err)
		}
		if err := p.Release(); err != nil {
			slog.Warn("preroll release failed", "error", err)
		}
		slog.Debug("preroll faded out", "fade_ms", fadeMs)
	}()
}
