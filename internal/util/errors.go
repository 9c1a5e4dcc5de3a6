package util

import (
	"fmt"
	"io"
	"log/slog"
)

// WrapError wraps an error with a descriptive operation context.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// SafeCloseFunc returns a function that closes c and logs any error.
// Intended for deferred cleanup of response bodies and files.
func SafeCloseFunc(c io.Closer, name string) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Debug("close failed", "target", name, "error", err)
		}
	}
}

// IsConfigured reports whether an optional setting has a value.
func IsConfigured(value string) bool {
	return value != ""
}

// LogNotifyResult runs a notification sender and logs the outcome.
func LogNotifyResult(send func() error, name string) {
	if err := send(); err != nil {
		slog.Error("notification failed", "channel", name, "error", err)
		return
	}
	slog.Info("notification sent", "channel", name)
}
