package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("Load should write a default config file when none exists")
	}

	s := c.Snapshot()
	if s.Port != DefaultPort || s.Backend != DefaultBackend {
		t.Errorf("snapshot = %+v, want defaults", s)
	}
	if s.ControlTickMs != DefaultControlTickMs || s.PositionPollMs != DefaultPositionPollMs {
		t.Errorf("tick intervals = %d/%d, want defaults", s.ControlTickMs, s.PositionPollMs)
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	partial := `{"system":{"port":9001},"playback":{"preroll_asset_uri":"/audio/atmosphere.ogg"}}`
	if err := os.WriteFile(path, []byte(partial), 0o600); err != nil {
		t.Fatal(err)
	}

	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatal(err)
	}

	s := c.Snapshot()
	if s.Port != 9001 {
		t.Errorf("port = %d, want 9001", s.Port)
	}
	if s.PrerollAssetURI != "/audio/atmosphere.ogg" {
		t.Errorf("preroll uri = %q", s.PrerollAssetURI)
	}
	if s.Backend != DefaultBackend || s.CacheDir != DefaultCacheDir {
		t.Errorf("defaults not applied: %+v", s)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"unknown backend", `{"audio":{"backend":"pulse"}}`},
		{"tick too fast", `{"audio":{"control_tick_ms":5}}`},
		{"poll faster than tick", `{"audio":{"control_tick_ms":50,"position_poll_ms":20}}`},
		{"negative session cap", `{"playback":{"session_cap_ms":-1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(tt.json), 0o600); err != nil {
				t.Fatal(err)
			}
			if err := New(path).Load(); err == nil {
				t.Error("Load should reject the invalid config")
			}
		})
	}
}

func TestSettersPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	c := New(path)
	if err := c.Load(); err != nil {
		t.Fatal(err)
	}
	if err := c.SetWebhookURL("https://hooks.example.com/stalls"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetPrerollAssetURI("s3://beds/atmosphere.ogg"); err != nil {
		t.Fatal(err)
	}

	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	s := reloaded.Snapshot()
	if s.WebhookURL != "https://hooks.example.com/stalls" {
		t.Errorf("webhook = %q", s.WebhookURL)
	}
	if s.PrerollAssetURI != "s3://beds/atmosphere.ogg" {
		t.Errorf("preroll uri = %q", s.PrerollAssetURI)
	}
	if !s.HasWebhook() || s.HasLogPath() {
		t.Error("Has helpers disagree with values")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 32 || a == b {
		t.Errorf("keys %q / %q: want 32 chars and distinct", a, b)
	}
}
