package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/driftwave/mixengine/internal/config"
	"github.com/driftwave/mixengine/internal/types"
)

func TestSendStallWebhook(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	if err := SendStallWebhook(srv.URL, "sess-42", types.LayerAffirmations, 3); err != nil {
		t.Fatal(err)
	}
	if got.Event != "playback_stall" || got.SessionID != "sess-42" || got.Layer != "affirmations" || got.Restarts != 3 {
		t.Errorf("payload = %+v", got)
	}
	if got.Timestamp == "" {
		t.Error("payload is missing a timestamp")
	}
}

func TestSendWebhookRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := SendStallWebhook(srv.URL, "sess-1", types.LayerBackground, 1); err == nil {
		t.Error("want error for non-2xx response")
	}
}

func TestSendWebhookSkipsWhenUnconfigured(t *testing.T) {
	if err := sendWebhook("", &WebhookPayload{Event: "playback_stall"}); err != nil {
		t.Errorf("unconfigured webhook should be a no-op, got %v", err)
	}
}

func TestLogStallAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stalls.log")

	if err := LogStall(path, "sess-1", types.LayerBrain, 3); err != nil {
		t.Fatal(err)
	}
	if err := LogStall(path, "sess-2", types.LayerAffirmations, 3); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var entry types.StallLogEntry
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.SessionID != "sess-2" || entry.Layer != "affirmations" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestStallNotifierSendsOncePerLayer(t *testing.T) {
	hits := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
	}))
	defer srv.Close()

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetWebhookURL(srv.URL); err != nil {
		t.Fatal(err)
	}

	n := NewStallNotifier(cfg)
	n.PlaybackStallGivenUp("sess-1", types.LayerAffirmations, 3)
	n.PlaybackStallGivenUp("sess-1", types.LayerAffirmations, 3)

	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never called")
	}
	select {
	case <-hits:
		t.Fatal("duplicate webhook for the same layer")
	case <-time.After(100 * time.Millisecond):
	}

	// A new session load rearms the channel.
	n.Reset()
	n.PlaybackStallGivenUp("sess-2", types.LayerAffirmations, 3)
	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called after Reset")
	}
}
