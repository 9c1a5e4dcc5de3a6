// Package config provides application configuration management.
package config

import (
	"cmp"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/driftwave/mixengine/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultPort             = 8820
	DefaultBackend          = "oto"
	DefaultControlTickMs    = 50
	DefaultPositionPollMs   = 250
	DefaultCacheDir         = "cache"
	DefaultCacheMaxAgeHours = 336 // two weeks
	DefaultHTTPTimeoutMs    = 60000
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Port   int    `json:"port"`    // HTTP server port
	APIKey string `json:"api_key"` // API key for REST and WebSocket control
}

// AudioConfig holds playback backend and loop timing settings.
type AudioConfig struct {
	Backend        string `json:"backend"`          // Player backend: oto or portaudio
	ControlTickMs  int64  `json:"control_tick_ms"`  // Control loop interval
	PositionPollMs int64  `json:"position_poll_ms"` // Position poll interval
}

// PlaybackConfig holds session playback settings.
type PlaybackConfig struct {
	PrerollAssetURI string `json:"preroll_asset_uri"` // Atmosphere bed played while loading
	SessionCapMs    int64  `json:"session_cap_ms"`    // Cumulative playback cap, 0 = unlimited
}

// S3Config holds credentials for s3:// asset URIs.
type S3Config struct {
	Endpoint        string `json:"endpoint"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// OAuthConfig holds client-credentials settings for authenticated CDN
// asset downloads.
type OAuthConfig struct {
	TokenURL     string `json:"token_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// AssetsConfig holds asset cache and transport settings.
type AssetsConfig struct {
	CacheDir         string      `json:"cache_dir"`           // On-disk asset cache directory
	CacheMaxAgeHours int         `json:"cache_max_age_hours"` // Cleanup threshold, 0 = keep forever
	HTTPTimeoutMs    int64       `json:"http_timeout_ms"`     // Per-download timeout
	S3               S3Config    `json:"s3"`
	OAuth            OAuthConfig `json:"oauth"`
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"` // Webhook URL for playback stall alerts
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path"` // Log file path for playback stall events
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"`
	Log     LogConfig     `json:"log"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Audio         AudioConfig         `json:"audio"`
	Playback      PlaybackConfig      `json:"playback"`
	Assets        AssetsConfig        `json:"assets"`
	Notifications NotificationsConfig `json:"notifications"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port: DefaultPort,
		},
		Audio: AudioConfig{
			Backend:        DefaultBackend,
			ControlTickMs:  DefaultControlTickMs,
			PositionPollMs: DefaultPositionPollMs,
		},
		Assets: AssetsConfig{
			CacheDir:         DefaultCacheDir,
			CacheMaxAgeHours: DefaultCacheMaxAgeHours,
			HTTPTimeoutMs:    DefaultHTTPTimeoutMs,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validate()
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	switch c.Audio.Backend {
	case "oto", "portaudio":
	default:
		return fmt.Errorf("invalid backend %q: must be oto or portaudio", c.Audio.Backend)
	}
	if c.Audio.ControlTickMs < 10 || c.Audio.ControlTickMs > 200 {
		return fmt.Errorf("invalid control_tick_ms %d: must be 10-200", c.Audio.ControlTickMs)
	}
	if c.Audio.PositionPollMs < c.Audio.ControlTickMs {
		return fmt.Errorf("invalid position_poll_ms %d: must be at least control_tick_ms", c.Audio.PositionPollMs)
	}
	if c.Playback.SessionCapMs < 0 {
		return fmt.Errorf("invalid session_cap_ms %d: must be non-negative", c.Playback.SessionCapMs)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultPort
	}
	if c.Audio.Backend == "" {
		c.Audio.Backend = DefaultBackend
	}
	if c.Audio.ControlTickMs == 0 {
		c.Audio.ControlTickMs = DefaultControlTickMs
	}
	if c.Audio.PositionPollMs == 0 {
		c.Audio.PositionPollMs = DefaultPositionPollMs
	}
	if c.Assets.CacheDir == "" {
		c.Assets.CacheDir = DefaultCacheDir
	}
	if c.Assets.HTTPTimeoutMs == 0 {
		c.Assets.HTTPTimeoutMs = DefaultHTTPTimeoutMs
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Setters for individual settings ---

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetLogPath updates the log file path and saves the configuration.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Log.Path = path
	return c.saveLocked()
}

// SetPrerollAssetURI updates the atmosphere asset and saves the
// configuration.
func (c *Config) SetPrerollAssetURI(uri string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Playback.PrerollAssetURI = uri
	return c.saveLocked()
}

// SetAPIKey updates the control API key and saves the configuration.
func (c *Config) SetAPIKey(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.System.APIKey = key
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	Port   int
	APIKey string

	// Audio
	Backend        string
	ControlTickMs  int64
	PositionPollMs int64

	// Playback
	PrerollAssetURI string
	SessionCapMs    int64

	// Assets
	CacheDir          string
	CacheMaxAgeHours  int
	HTTPTimeoutMs     int64
	S3Endpoint        string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string

	// Notifications
	WebhookURL string
	LogPath    string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Port:   cmp.Or(c.System.Port, DefaultPort),
		APIKey: c.System.APIKey,

		Backend:        cmp.Or(c.Audio.Backend, DefaultBackend),
		ControlTickMs:  cmp.Or(c.Audio.ControlTickMs, int64(DefaultControlTickMs)),
		PositionPollMs: cmp.Or(c.Audio.PositionPollMs, int64(DefaultPositionPollMs)),

		PrerollAssetURI: c.Playback.PrerollAssetURI,
		SessionCapMs:    c.Playback.SessionCapMs,

		CacheDir:          cmp.Or(c.Assets.CacheDir, DefaultCacheDir),
		CacheMaxAgeHours:  c.Assets.CacheMaxAgeHours,
		HTTPTimeoutMs:     cmp.Or(c.Assets.HTTPTimeoutMs, int64(DefaultHTTPTimeoutMs)),
		S3Endpoint:        c.Assets.S3.Endpoint,
		S3Bucket:          c.Assets.S3.Bucket,
		S3AccessKeyID:     c.Assets.S3.AccessKeyID,
		S3SecretAccessKey: c.Assets.S3.SecretAccessKey,
		OAuthTokenURL:     c.Assets.OAuth.TokenURL,
		OAuthClientID:     c.Assets.OAuth.ClientID,
		OAuthClientSecret: c.Assets.OAuth.ClientSecret,

		WebhookURL: c.Notifications.Webhook.URL,
		LogPath:    c.Notifications.Log.Path,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasLogPath reports whether a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasS3 reports whether S3 asset fetching is configured.
func (s *Snapshot) HasS3() bool {
	return s.S3Bucket != "" && s.S3AccessKeyID != "" && s.S3SecretAccessKey != ""
}

// HasOAuth reports whether authenticated CDN downloads are configured.
func (s *Snapshot) HasOAuth() bool {
	return s.OAuthTokenURL != "" && s.OAuthClientID != "" && s.OAuthClientSecret != ""
}

// GenerateAPIKey generates a new random 32-character alphanumeric API key.
func GenerateAPIKey() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 32
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[n.Int64()]
	}
	return string(result), nil
}
