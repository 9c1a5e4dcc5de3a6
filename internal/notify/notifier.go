// Package notify delivers playback stall alerts to the configured
// webhook and log file channels.
package notify

import (
	"sync"

	"github.com/driftwave/mixengine/internal/config"
	"github.com/driftwave/mixengine/internal/types"
	"github.com/driftwave/mixengine/internal/util"
)

// StallNotifier manages notifications for playback stall events. A layer
// that exhausts its restart budget produces at most one notification per
// channel per session load.
type StallNotifier struct {
	cfg *config.Config

	// mu protects the per-layer sent tracking below
	mu   sync.Mutex
	sent map[string]bool
}

// NewStallNotifier returns a StallNotifier configured with the given config.
func NewStallNotifier(cfg *config.Config) *StallNotifier {
	return &StallNotifier{cfg: cfg, sent: make(map[string]bool)}
}

// PlaybackStallGivenUp triggers notifications when the watchdog abandons
// a layer. It is called from the engine's control loop and must not block.
func (n *StallNotifier) PlaybackStallGivenUp(sessionID string, layer types.Layer, restarts int) {
	key := sessionID + "/" + string(layer)
	n.mu.Lock()
	alreadySent := n.sent[key]
	n.sent[key] = true
	n.mu.Unlock()
	if alreadySent {
		return
	}

	cfg := n.cfg.Snapshot()

	if cfg.HasWebhook() {
		go n.sendStallWebhook(cfg, sessionID, layer, restarts)
	}
	if cfg.HasLogPath() {
		go n.logStall(cfg, sessionID, layer, restarts)
	}
}

// Reset clears the sent tracking.
func (n *StallNotifier) Reset() {
	n.mu.Lock()
	n.sent = make(map[string]bool)
	n.mu.Unlock()
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *StallNotifier) sendStallWebhook(cfg config.Snapshot, sessionID string, layer types.Layer, restarts int) {
	util.LogNotifyResult(
		func() error { return SendStallWebhook(cfg.WebhookURL, sessionID, layer, restarts) },
		"Stall webhook",
	)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *StallNotifier) logStall(cfg config.Snapshot, sessionID string, layer types.Layer, restarts int) {
	util.LogNotifyResult(
		func() error { return LogStall(cfg.LogPath, sessionID, layer, restarts) },
		"Stall log",
	)
}
