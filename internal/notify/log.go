package notify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/driftwave/mixengine/internal/types"
	"github.com/driftwave/mixengine/internal/util"
)

// LogStall records a layer left stopped by the watchdog.
func LogStall(logPath, sessionID string, layer types.Layer, restarts int) error {
	return appendLogEntry(logPath, &types.StallLogEntry{
		Timestamp: util.TimestampUTC(),
		Event:     "playback_stall",
		SessionID: sessionID,
		Layer:     string(layer),
		Restarts:  restarts,
	})
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &types.StallLogEntry{
		Timestamp: util.TimestampUTC(),
		Event:     "test",
	})
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *types.StallLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(jsonData); err != nil {
		return util.WrapError("write log entry", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return util.WrapError("write newline", err)
	}

	return nil
}
