package player_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftwave/mixengine/internal/player"
	"github.com/driftwave/mixengine/internal/player/playertest"
)

func TestWaitForDurationReturnsImmediatelyWhenKnown(t *testing.T) {
	p := playertest.New(30000)
	d, err := player.WaitForDuration(context.Background(), p, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if d != 30000 {
		t.Errorf("duration = %d, want 30000", d)
	}
}

func TestWaitForDurationHonorsContext(t *testing.T) {
	p := playertest.New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := player.WaitForDuration(ctx, p, 5*time.Millisecond); err == nil {
		t.Fatal("want a context error for a player that never learns its duration")
	}
}

func TestPlayWhenReadyGatesOnTheBackend(t *testing.T) {
	f := playertest.NewFactory(30000)
	f.ReadyErr = errors.New("no output device")
	p := playertest.New(30000)

	if err := player.PlayWhenReady(context.Background(), f, p); err == nil {
		t.Fatal("want the backend readiness error")
	}
	if p.Playing() {
		t.Error("player must not start while the backend is not ready")
	}

	f.ReadyErr = nil
	if err := player.PlayWhenReady(context.Background(), f, p); err != nil {
		t.Fatal(err)
	}
	if !p.Playing() {
		t.Error("player should be playing once the backend is ready")
	}
}
