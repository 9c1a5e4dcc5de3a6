package engine

import "github.com/driftwave/mixengine/internal/types"

// watchdogAction is what the engine must do to a layer after one watchdog
// evaluation.
type watchdogAction int

const (
	watchdogNone watchdogAction = iota
	watchdogRestart
	watchdogGiveUp
)

// watchdogInput is one observation of a main-layer player.
type watchdogInput struct {
	nowMs          int64
	positionMs     int64
	durationMs     int64
	loop           bool
	layerElapsedMs int64
}

// watchdogStep evaluates one layer against its previous state. It is a pure
// reducer: the engine applies the returned action and stores the new state.
//
// A layer is stuck only when its position has stood still for at least the
// debounce window. Players that have not yet reported a valid duration get
// a startup grace period, longer for looping beds than for the voice track.
func watchdogStep(st types.WatchdogState, in watchdogInput) (types.WatchdogState, watchdogAction) {
	if st.GivenUp {
		return st, watchdogNone
	}

	grace := types.VoiceDurationGraceMs
	if in.loop {
		grace = types.BedDurationGraceMs
	}
	if in.durationMs <= 0 && in.layerElapsedMs < grace {
		st.StoppedAtMs = 0
		st.LastPositionMs = in.positionMs
		return st, watchdogNone
	}

	if in.positionMs != st.LastPositionMs {
		st.LastPositionMs = in.positionMs
		st.StoppedAtMs = 0
		st.FailedRestarts = 0
		return st, watchdogNone
	}

	if st.StoppedAtMs == 0 {
		st.StoppedAtMs = in.nowMs
		return st, watchdogNone
	}

	if in.nowMs-st.StoppedAtMs < types.StallDebounceMs {
		return st, watchdogNone
	}

	if st.FailedRestarts >= types.MaxFailedRestarts {
		st.GivenUp = true
		return st, watchdogGiveUp
	}

	st.FailedRestarts++
	st.StoppedAtMs = 0
	return st, watchdogRestart
}
