// Package session owns the process-wide audio output context. The native
// audio device can only be configured once per process, so creation is
// cached behind a sync.Once and every player shares the same context.
package session

import (
	"context"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/driftwave/mixengine/internal/types"
	"github.com/driftwave/mixengine/internal/util"
)

var (
	once   sync.Once
	otoCtx *oto.Context
	otoErr error
)

// Context returns the shared output context, creating it on first call and
// waiting until the hardware is ready or ctx is cancelled.
func Context(ctx context.Context) (*oto.Context, error) {
	once.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   types.SampleRate,
			ChannelCount: types.Channels,
			Format:       oto.FormatSignedInt16LE,
		}
		c, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = util.WrapError("create audio context", err)
			return
		}
		select {
		case <-ready:
			otoCtx = c
		case <-ctx.Done():
			otoErr = util.WrapError("wait for audio device", ctx.Err())
		}
	})
	return otoCtx, otoErr
}
