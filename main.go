// Package main provides a layered audio playback engine that mixes a voice
// track with entrainment tone and ambience beds, controlled over WebSocket
// and a small REST API.
//
// Usage:
//
//	mixengine [-config path/to/config.json]
//
// If -config is not specified, the engine looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/driftwave/mixengine/internal/assets"
	"github.com/driftwave/mixengine/internal/config"
	"github.com/driftwave/mixengine/internal/engine"
	"github.com/driftwave/mixengine/internal/notify"
	"github.com/driftwave/mixengine/internal/player"
	"github.com/driftwave/mixengine/internal/util"
)

// Set at build time via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	snap := cfg.Snapshot()

	cache, err := assets.NewCache(buildCacheConfig(snap))
	if err != nil {
		slog.Error("failed to create asset cache", "error", err)
		os.Exit(1)
	}

	cleanupStop := make(chan struct{})
	if snap.CacheMaxAgeHours > 0 {
		cache.StartCleanupScheduler(cleanupStop, time.Duration(snap.CacheMaxAgeHours)*time.Hour)
	}

	eng := engine.New(engine.Options{
		Factory:              buildFactory(snap.Backend),
		Cache:                cache,
		Notifier:             notify.NewStallNotifier(cfg),
		ControlTickInterval:  time.Duration(snap.ControlTickMs) * time.Millisecond,
		PositionPollInterval: time.Duration(snap.PositionPollMs) * time.Millisecond,
	})

	if snap.PrerollAssetURI != "" {
		if err := eng.SetPrerollAssetURI(snap.PrerollAssetURI); err != nil {
			slog.Warn("failed to set preroll asset", "uri", snap.PrerollAssetURI, "error", err)
		}
	}
	if snap.SessionCapMs > 0 {
		if err := eng.SetSessionDurationCap(snap.SessionCapMs); err != nil {
			slog.Warn("failed to set session cap", "cap_ms", snap.SessionCapMs, "error", err)
		}
	}

	srv := NewServer(cfg, eng)

	// Start web server.
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker and cache cleanup goroutines
	srv.version.Stop()
	close(cleanupStop)

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := eng.Close(); err != nil {
		slog.Error("error closing engine", "error", err)
	}

	slog.Info("shutdown complete")
}

// buildFactory selects the playback backend from config.
func buildFactory(backend string) player.Factory {
	if backend == "portaudio" {
		return player.NewPortAudioFactory()
	}
	return player.NewOtoFactory()
}

// buildCacheConfig maps the config snapshot onto the asset cache.
//
//nolint:gocritic // hugeParam: built once at startup
func buildCacheConfig(snap config.Snapshot) assets.Config {
	cacheCfg := assets.Config{
		Dir:         snap.CacheDir,
		HTTPTimeout: time.Duration(snap.HTTPTimeoutMs) * time.Millisecond,
		S3: &assets.S3Config{
			Endpoint:        snap.S3Endpoint,
			Bucket:          snap.S3Bucket,
			AccessKeyID:     snap.S3AccessKeyID,
			SecretAccessKey: snap.S3SecretAccessKey,
		},
	}
	if snap.HasOAuth() {
		cacheCfg.OAuth = &clientcredentials.Config{
			TokenURL:     snap.OAuthTokenURL,
			ClientID:     snap.OAuthClientID,
			ClientSecret: snap.OAuthClientSecret,
		}
	}
	return cacheCfg
}
