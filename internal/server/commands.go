package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/driftwave/mixengine/internal/config"
	"github.com/driftwave/mixengine/internal/engine"
	"github.com/driftwave/mixengine/internal/notify"
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg    *config.Config
	engine *engine.Engine
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, eng *engine.Engine) *CommandHandler {
	return &CommandHandler{
		cfg:    cfg,
		engine: eng,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "playback/play",
// "mix/update").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	// Parse command into namespace and action
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "session":
		h.handleSession(action, cmd, send)
	case "playback":
		h.handlePlayback(action, cmd, send)
	case "mix":
		h.handleMix(action, cmd, send)
	case "preroll":
		h.handlePreroll(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "config":
		h.handleConfig(action, send)
	case "status":
		h.handleStatus(action, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleSession routes session/* commands
func (h *CommandHandler) handleSession(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "load":
		h.handleLoad(cmd, send)
	case "cap":
		HandleCommand(cmd, send, func(req *CapRequest) error {
			return h.engine.SetSessionDurationCap(req.CapMs)
		})
	default:
		slog.Warn("unknown session action", "action", action)
	}
}

// handleLoad validates the bundle synchronously, then loads it without
// blocking the reader while assets download.
func (h *CommandHandler) handleLoad(cmd WSCommand, send chan<- any) {
	var req LoadRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		return nil, h.engine.Load(&req.Bundle)
	})
}

// handlePlayback routes playback/* commands
func (h *CommandHandler) handlePlayback(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "play":
		h.handleSimple(cmd, send, h.engine.Play)
	case "pause":
		h.handleSimple(cmd, send, h.engine.Pause)
	case "stop":
		h.handleSimple(cmd, send, h.engine.Stop)
	case "seek":
		HandleCommand(cmd, send, func(req *SeekRequest) error {
			return h.engine.Seek(req.PositionMs)
		})
	default:
		slog.Warn("unknown playback action", "action", action)
	}
}

// handleSimple runs a parameterless engine command.
func (h *CommandHandler) handleSimple(cmd WSCommand, send chan<- any, run func() error) {
	if err := run(); err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, nil)
}

// handleMix routes mix/* commands
func (h *CommandHandler) handleMix(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		HandleCommand(cmd, send, func(req *MixUpdateRequest) error {
			return h.engine.SetMix(req.Mix)
		})
	case "prominence":
		HandleCommand(cmd, send, func(req *ProminenceRequest) error {
			return h.engine.SetVoiceProminence(req.Value)
		})
	default:
		slog.Warn("unknown mix action", "action", action)
	}
}

// handlePreroll routes preroll/* commands
func (h *CommandHandler) handlePreroll(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "set":
		HandleCommand(cmd, send, func(req *PrerollRequest) error {
			if err := h.cfg.SetPrerollAssetURI(req.URI); err != nil {
				return err
			}
			return h.engine.SetPrerollAssetURI(req.URI)
		})
	default:
		slog.Warn("unknown preroll action", "action", action)
	}
}

// handleNotifications routes notifications/*/* commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "webhook":
		switch subaction {
		case "update":
			HandleCommand(cmd, send, func(req *WebhookUpdateRequest) error {
				return h.cfg.SetWebhookURL(req.URL)
			})
		case "test":
			h.handleSimple(cmd, send, func() error {
				return notify.SendTestWebhook(h.cfg.Snapshot().WebhookURL)
			})
		case "get":
			SendSuccess(send, cmd.Type, map[string]string{"url": h.cfg.Snapshot().WebhookURL})
		default:
			slog.Warn("unknown webhook action", "subaction", subaction)
		}
	case "log":
		switch subaction {
		case "update":
			HandleCommand(cmd, send, func(req *LogUpdateRequest) error {
				return h.cfg.SetLogPath(req.Path)
			})
		case "test":
			h.handleSimple(cmd, send, func() error {
				return notify.WriteTestLog(h.cfg.Snapshot().LogPath)
			})
		case "get":
			SendSuccess(send, cmd.Type, map[string]string{"path": h.cfg.Snapshot().LogPath})
		default:
			slog.Warn("unknown log action", "subaction", subaction)
		}
	default:
		slog.Warn("unknown notifications action", "action", action)
	}
}

// handleConfig routes config/* commands
func (h *CommandHandler) handleConfig(action string, send chan<- any) {
	switch action {
	case "get":
		cfg := h.cfg.Snapshot()
		SendSuccess(send, "config/get", map[string]any{
			"backend":           cfg.Backend,
			"control_tick_ms":   cfg.ControlTickMs,
			"position_poll_ms":  cfg.PositionPollMs,
			"preroll_asset_uri": cfg.PrerollAssetURI,
			"session_cap_ms":    cfg.SessionCapMs,
			"cache_dir":         cfg.CacheDir,
			"webhook_url":       cfg.WebhookURL,
			"log_path":          cfg.LogPath,
		})
	default:
		slog.Warn("unknown config action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string, send chan<- any) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
