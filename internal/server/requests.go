package server

import "github.com/driftwave/mixengine/internal/types"

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.

// --- Session ---

// LoadRequest is the request body for session/load. The bundle's own
// validation tags enforce the exactly-one-tone rule.
type LoadRequest struct {
	Bundle types.PlaybackBundle `json:"bundle" validate:"required"`
}

// CapRequest is the request body for session/cap. A zero cap disables
// the duration limit.
type CapRequest struct {
	CapMs int64 `json:"cap_ms" validate:"gte=0"`
}

// --- Playback ---

// SeekRequest is the request body for playback/seek.
type SeekRequest struct {
	PositionMs int64 `json:"position_ms" validate:"gte=0"`
}

// --- Mix ---

// MixUpdateRequest is the request body for mix/update.
type MixUpdateRequest struct {
	Mix types.Mix `json:"mix"`
}

// ProminenceRequest is the request body for mix/prominence.
type ProminenceRequest struct {
	Value float64 `json:"value" validate:"gte=0,lte=1"`
}

// --- Preroll ---

// PrerollRequest is the request body for preroll/set. An empty URI
// disables the atmosphere bed.
type PrerollRequest struct {
	URI string `json:"uri" validate:"omitempty,max=2048"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for notifications/webhook/update.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,max=2048"`
}

// LogUpdateRequest is the request body for notifications/log/update.
type LogUpdateRequest struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}
