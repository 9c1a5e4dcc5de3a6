package player

import (
	"context"
	"time"
)

// WaitForDuration polls the player until it reports a nonzero duration or
// the context is cancelled. Backends that decode upfront return on the
// first poll; it exists for sinks that learn the duration asynchronously.
func WaitForDuration(ctx context.Context, p Player, poll time.Duration) (int64, error) {
	if d := p.DurationMs(); d > 0 {
		return d, nil
	}

	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-t.C:
			if d := p.DurationMs(); d > 0 {
				return d, nil
			}
		}
	}
}

// PlayWhenReady waits for the factory to become ready, then starts the
// player. It is bounded by ctx.
func PlayWhenReady(ctx context.Context, f Factory, p Player) error {
	if err := f.Ready(ctx); err != nil {
		return err
	}
	return p.Play()
}
