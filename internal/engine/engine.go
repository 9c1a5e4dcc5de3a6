// Package engine implements the playback state machine: a serialized
// command queue, two periodic loops (control tick and position poll),
// rolling-start sequencing, the preroll handoff and the stall watchdog.
package engine

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/driftwave/mixengine/internal/assets"
	"github.com/driftwave/mixengine/internal/mixer"
	"github.com/driftwave/mixengine/internal/player"
	"github.com/driftwave/mixengine/internal/preroll"
	"github.com/driftwave/mixengine/internal/types"
)

// StallNotifier is informed when the watchdog exhausts a layer's restart
// budget. The session keeps playing degraded; the notification is for
// operators, not listeners.
type StallNotifier interface {
	PlaybackStallGivenUp(sessionID string, layer types.Layer, restarts int)
}

// Options configures a new engine.
type Options struct {
	Factory  player.Factory
	Cache    *assets.Cache
	Clock    Clock
	Notifier StallNotifier

	ControlTickInterval  time.Duration
	PositionPollInterval time.Duration
}

// Engine owns the three main players, the preroll manager and the
// snapshot. All mutating operations run on a single worker goroutine in
// submission order; the periodic loops run outside the queue so fades keep
// moving while a slow load is in flight.
type Engine struct {
	factory  player.Factory
	cache    *assets.Cache
	pm       *preroll.Manager
	mixer    *mixer.Controller
	clock    Clock
	notifier StallNotifier

	tickInterval time.Duration
	pollInterval time.Duration

	queue   chan *command
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool

	mu            sync.Mutex
	snap          types.EngineSnapshot
	bundle        *types.PlaybackBundle
	players       map[types.Layer]player.Player
	voicePath     string // per-session temp file, removed on teardown
	watchdogs     map[types.Layer]types.WatchdogState
	layerStarted  map[types.Layer]time.Time
	playStartedAt time.Time // zero while not playing
	playedAccumMs int64
	pendingPlay   bool // play() arrived while the bundle was loading
	lastTickAt    time.Time
	loopStop      chan struct{}

	subMu sync.Mutex
	subs  map[int]func(types.EngineSnapshot)
	subID int
}

// New creates an engine and starts its command worker.
func New(opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock{}
	}
	tick := opts.ControlTickInterval
	if tick == 0 {
		tick = types.DefaultControlTickInterval
	}
	poll := opts.PositionPollInterval
	if poll == 0 {
		poll = types.DefaultPositionPollInterval
	}

	pm := preroll.NewManager(opts.Factory, opts.Cache)
	e := &Engine{
		factory:      opts.Factory,
		cache:        opts.Cache,
		pm:           pm,
		mixer:        mixer.NewController(pm),
		clock:        clock,
		notifier:     opts.Notifier,
		tickInterval: tick,
		pollInterval: poll,
		queue:        make(chan *command, 64),
		snap:         types.EngineSnapshot{Status: types.StatusIdle},
		players:      make(map[types.Layer]player.Player),
		watchdogs:    make(map[types.Layer]types.WatchdogState),
		layerStarted: make(map[types.Layer]time.Time),
		subs:         make(map[int]func(types.EngineSnapshot)),
	}

	e.wg.Add(1)
	go e.worker()
	return e
}

// Close stops the worker, the loops and all players. Pending commands are
// still executed before the worker exits.
func (e *Engine) Close() error {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.closeMu.Unlock()

	e.wg.Wait()

	e.mu.Lock()
	e.stopLoopsLocked()
	e.releasePlayersLocked()
	e.mu.Unlock()

	e.pm.Stop(0)
	return nil
}

// Snapshot returns a copy of the current observable state.
func (e *Engine) Snapshot() types.EngineSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

// Backend returns the name of the active player backend.
func (e *Engine) Backend() string {
	return e.factory.Backend()
}

// Subscribe registers a listener that receives the snapshot on every
// mutation, and once immediately. The returned function unsubscribes.
func (e *Engine) Subscribe(fn func(types.EngineSnapshot)) func() {
	e.subMu.Lock()
	e.subID++
	id := e.subID
	e.subs[id] = fn
	e.subMu.Unlock()

	fn(e.Snapshot())

	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

// publish pushes the current snapshot to every subscriber. Never called
// with e.mu held.
func (e *Engine) publish() {
	snap := e.Snapshot()

	e.subMu.Lock()
	listeners := make([]func(types.EngineSnapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		listeners = append(listeners, fn)
	}
	e.subMu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// setStatus mutates the status and publishes.
func (e *Engine) setStatus(status types.EngineStatus) {
	e.mu.Lock()
	e.snap.Status = status
	if status != types.StatusError {
		e.snap.Error = ""
	}
	e.mu.Unlock()
	e.publish()
}

// setError records a command failure. The queue keeps running; the next
// successful command clears the error.
func (e *Engine) setError(err error) {
	e.mu.Lock()
	e.snap.Status = types.StatusError
	e.snap.Error = err.Error()
	e.mu.Unlock()
	e.publish()
}

// releasePlayersLocked tears down the main players and the per-session
// voice file. Caller holds e.mu.
func (e *Engine) releasePlayersLocked() {
	for layer, p := range e.players {
		if err := p.Release(); err != nil {
			slog.Warn("release player", "layer", layer, "error", err)
		}
	}
	e.players = make(map[types.Layer]player.Player)
	e.watchdogs = make(map[types.Layer]types.WatchdogState)
	e.layerStarted = make(map[types.Layer]time.Time)

	if e.voicePath != "" {
		if err := os.Remove(e.voicePath); err != nil && !os.IsNotExist(err) {
			slog.Debug("remove voice temp file", "path", e.voicePath, "error", err)
		}
		e.voicePath = ""
	}
}

// playersCopyLocked returns the player map for a mixer tick. Caller holds
// e.mu.
func (e *Engine) playersCopyLocked() map[types.Layer]player.Player {
	out := make(map[types.Layer]player.Player, len(e.players))
	for k, v := range e.players {
		out[k] = v
	}
	return out
}

// accumulatePlayedLocked folds the running play interval into the
// cumulative total. Caller holds e.mu.
func (e *Engine) accumulatePlayedLocked(now time.Time) {
	if !e.playStartedAt.IsZero() {
		e.playedAccumMs += now.Sub(e.playStartedAt).Milliseconds()
		e.playStartedAt = time.Time{}
		e.snap.PlayedMs = e.playedAccumMs
	}
}

// playedMsLocked returns cumulative playback time including the running
// interval. Caller holds e.mu.
func (e *Engine) playedMsLocked(now time.Time) int64 {
	total := e.playedAccumMs
	if !e.playStartedAt.IsZero() {
		total += now.Sub(e.playStartedAt).Milliseconds()
	}
	return total
}

func (e *Engine) factoryReady() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.factory.Ready(ctx)
}
